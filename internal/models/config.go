package models

import "time"

const (
	DefaultRetentionDays  = 7
	DefaultMaxUploadBytes = 10 * 1024 * 1024 // 10MB
	DefaultPurgeInterval  = time.Hour
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// Canonical schema file; empty means the embedded GETS table
	SchemaPath string `yaml:"schema_path"`

	// Reports
	Reports ReportsConfig `yaml:"reports"`

	// Uploads
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// ReportsConfig controls report retention
type ReportsConfig struct {
	RetentionDays int           `yaml:"retention_days"` // Default: 7
	PurgeInterval time.Duration `yaml:"purge_interval"` // Default: 1h
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Reports.RetentionDays <= 0 {
		c.Reports.RetentionDays = DefaultRetentionDays
	}
	if c.Reports.PurgeInterval <= 0 {
		c.Reports.PurgeInterval = DefaultPurgeInterval
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Retention is the report lifetime
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Reports.RetentionDays) * 24 * time.Hour
}
