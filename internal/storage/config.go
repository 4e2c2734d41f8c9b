package storage

import "github.com/qmdoc/doccontrol/internal/config"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// FromConfig maps the application config section.
func FromConfig(c config.MinIOConfig) *MinIOConfig {
	bucket := c.Bucket
	if bucket == "" {
		bucket = "qmdoc"
	}
	return &MinIOConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Bucket:    bucket,
	}
}
