package outlook

import "fmt"

const defaultPageSize = 50

// Config holds Outlook OAuth 2.0 configuration.
type Config struct {
	ClientID     string // Azure App Client ID
	ClientSecret string // Azure App Client Secret
	TenantID     string // Azure Tenant ID (or "common" for multi-tenant)
	RefreshToken string // OAuth 2.0 refresh token
	PageSize     int    // messages per Graph page
}

// ParseConfig extracts configuration from a map.
func ParseConfig(m map[string]any) (*Config, error) {
	cfg := &Config{
		ClientID:     getString(m, "clientId", getString(m, "client_id", "")),
		ClientSecret: getString(m, "clientSecret", getString(m, "client_secret", "")),
		TenantID:     getString(m, "tenantId", getString(m, "tenant_id", "common")),
		RefreshToken: getString(m, "refreshToken", getString(m, "refresh_token", "")),
		PageSize:     getInt(m, "pageSize", defaultPageSize),
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required")
	}
	if cfg.RefreshToken == "" && cfg.ClientSecret == "" {
		return nil, fmt.Errorf("either refreshToken or clientSecret is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return cfg, nil
}

func getString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}
