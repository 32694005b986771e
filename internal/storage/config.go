package storage

import (
	"fmt"
	"strings"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// PublicURL is the externally reachable base for object URLs. When empty
	// the endpoint is used.
	PublicURL string
}

// FromConfig returns the MinIO settings, or nil when no endpoint is configured.
func FromConfig(c config.StorageConfig) *MinIOConfig {
	if c.Endpoint == "" {
		return nil
	}
	return &MinIOConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Bucket:    c.Bucket,
		PublicURL: c.PublicURL,
	}
}

// ObjectURL is the stored URL of key: <base>/<bucket>/<key>.
func (c *MinIOConfig) ObjectURL(key string) string {
	base := strings.TrimRight(c.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if c.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, c.Endpoint)
	}
	return fmt.Sprintf("%s/%s/%s", base, c.Bucket, strings.TrimLeft(key, "/"))
}
