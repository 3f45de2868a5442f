// Package config loads application configuration from environment variables
// with the SCRIBE_ prefix and validates it at startup.
package config
