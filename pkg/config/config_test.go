package config

import (
	"os"
	"testing"
	"time"

	"github.com/scribedocs/scribe/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "250ms")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("getEnvDuration() = %v, want 250ms", got)
	}
	if got := getEnvDuration("TEST_DURATION_UNSET", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() default = %v, want 1s", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"info", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"bogus", observability.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Analytics.IsProduction() {
		t.Error("Default environment should not be production")
	}
	if cfg.Analytics.RecordTimeout != 3*time.Second {
		t.Errorf("Expected default record timeout 3s, got %v", cfg.Analytics.RecordTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return cfg
	}

	t.Run("valid default config", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Expected valid config, got %v", err)
		}
	})

	t.Run("same port and health port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HealthPort = cfg.Server.Port
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for identical ports")
		}
	})

	t.Run("missing postgres URL", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.PostgresURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing postgres URL")
		}
	})

	t.Run("archive enabled without bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.Enabled = true
		cfg.Archive.S3Bucket = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing archive bucket")
		}
	})

	t.Run("non-positive record timeout", func(t *testing.T) {
		cfg := valid()
		cfg.Analytics.RecordTimeout = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for zero record timeout")
		}
	})
}

func TestAnalyticsConfig_IsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"Production", true},
		{"staging", false},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		cfg := AnalyticsConfig{Environment: tt.env}
		if got := cfg.IsProduction(); got != tt.want {
			t.Errorf("IsProduction(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}
