// Package archive moves aged analytics events to cold storage. Events past
// the retention window are exported to S3 as newline-delimited JSON, one
// object per calendar day, and then purged from PostgreSQL. Export always
// precedes purge, so a failed upload leaves the rows in place for the next
// run.
package archive
