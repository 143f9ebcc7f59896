package keyrunes

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds each HTTP round trip when the caller does not
// override it. There is no retry; one request, one deadline.
const DefaultTimeout = 30 * time.Second

// Config collects every construction-time setting of a [Client]. The zero
// value plus a BaseURL is a working configuration; [Configure] and
// [ConfigFromEnv] build one for the composition root.
type Config struct {
	// BaseURL is the root of the Keyrunes service, e.g.
	// "https://auth.example.com". A trailing slash is stripped.
	BaseURL string
	// APIKey, when set, is sent as X-API-Key on every request.
	APIKey string
	// OrganizationKey, when set, is sent as X-Organization-Key on every
	// request. Multi-tenant deployments use it to select the tenant.
	OrganizationKey string
	// Namespace is the default namespace for registrations and logins.
	// Empty means [DefaultNamespace].
	Namespace string
	// Timeout bounds each round trip. Zero means [DefaultTimeout].
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	Audit   AuditConfig
	Metrics MetricsConfig
}

// AuditConfig controls the async audit event stream. Disabled by default;
// enabling it starts one dispatcher goroutine owned by the Client.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process instrumentation. Disabled by default.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Validate checks that the configuration can produce a working client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: base URL is required", ErrValidation)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q must be absolute", ErrValidation, c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrValidation)
	}
	return nil
}

// Env variable names read by [ConfigFromEnv]. ADMIN_KEY is intentionally
// not part of Config; it belongs to individual admin registrations.
const (
	EnvBaseURL         = "KEYRUNES_BASE_URL"
	EnvAPIKey          = "KEYRUNES_API_KEY"
	EnvOrganizationKey = "KEYRUNES_ORG_KEY"
	EnvNamespace       = "KEYRUNES_NAMESPACE"
	EnvTimeout         = "KEYRUNES_TIMEOUT"
)

// ConfigFromEnv builds a Config from KEYRUNES_* environment variables.
// Unset variables leave the corresponding zero value in place, so defaults
// still apply. KEYRUNES_TIMEOUT accepts a Go duration string ("45s").
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:         os.Getenv(EnvBaseURL),
		APIKey:          os.Getenv(EnvAPIKey),
		OrganizationKey: os.Getenv(EnvOrganizationKey),
		Namespace:       os.Getenv(EnvNamespace),
	}

	if raw := os.Getenv(EnvTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q is not a duration", ErrValidation, EnvTimeout, raw)
		}
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
