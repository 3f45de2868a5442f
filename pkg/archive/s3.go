package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scribedocs/scribe/pkg/config"
)

// S3Client uploads archive objects to an S3-compatible bucket.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates an S3 client from archive settings and ensures the
// bucket exists (for local dev with MinIO).
func NewS3Client(ctx context.Context, cfg config.ArchiveConfig) (*S3Client, error) {
	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials, for MinIO or AWS with explicit keys
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if err := createBucketIfNotExists(ctx, client, cfg.S3Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return &S3Client{client: client, bucket: cfg.S3Bucket}, nil
}

// Upload stores one object under the given key.
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies bucket connectivity.
func (c *S3Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isBucketAlreadyExistsError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "BucketAlreadyExists") ||
		strings.Contains(err.Error(), "BucketAlreadyOwnedByYou"))
}
