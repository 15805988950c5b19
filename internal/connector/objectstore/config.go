package objectstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nucleus/ingest-core/internal/source"
)

const defaultPageSize = 1000

// Config captures the object.s3 adapter configuration. The same adapter
// serves any S3-compatible endpoint (AWS, GCS interop, MinIO).
type Config struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	PageSize        int
}

// ParseConfig builds a Config from loose parameters.
func ParseConfig(params map[string]any) *Config {
	cfg := &Config{
		EndpointURL:     firstString(params, "endpointUrl", "endpoint_url", "url"),
		Region:          firstString(params, "region"),
		UseSSL:          firstBool(params, false, "useSSL", "use_ssl"),
		AccessKeyID:     firstString(params, "accessKeyId", "access_key_id", "accessKeyID"),
		SecretAccessKey: firstString(params, "secretAccessKey", "secret_access_key", "secretKey"),
		PageSize:        firstInt(params, defaultPageSize, "pageSize", "page_size"),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return cfg
}

// Validate enforces required fields.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return source.WrapError(source.CodeEndpointUnreachable, true, fmt.Errorf("endpointUrl is required"))
	}
	if _, err := url.Parse(c.EndpointURL); err != nil {
		return source.WrapError(source.CodeEndpointUnreachable, true, err)
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return source.WrapError(source.CodeAuthInvalid, false, fmt.Errorf("accessKeyId and secretAccessKey are required"))
	}
	return nil
}

func firstString(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstBool(params map[string]any, defaultVal bool, keys ...string) bool {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case bool:
				return t
			case string:
				lowered := strings.ToLower(strings.TrimSpace(t))
				if lowered == "true" {
					return true
				}
				if lowered == "false" {
					return false
				}
			}
		}
	}
	return defaultVal
}

func firstInt(params map[string]any, defaultVal int, keys ...string) int {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			switch t := v.(type) {
			case int:
				return t
			case float64:
				return int(t)
			}
		}
	}
	return defaultVal
}
