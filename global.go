package keyrunes

import "sync"

// The process-wide default client is a composition-root convenience: set it
// once during startup, and guards built with a nil client fall back to it.
// Library code should receive a *Client explicitly instead of reaching for
// the default.
var defaultClient struct {
	mu sync.RWMutex
	c  *Client
}

// SetDefault installs c as the process default. Passing nil clears it.
func SetDefault(c *Client) {
	defaultClient.mu.Lock()
	defaultClient.c = c
	defaultClient.mu.Unlock()
}

// Default returns the process default client, or nil when none is set.
func Default() *Client {
	defaultClient.mu.RLock()
	defer defaultClient.mu.RUnlock()
	return defaultClient.c
}

// ClearDefault removes the process default client. The client itself is
// not closed; its owner decides that.
func ClearDefault() {
	SetDefault(nil)
}

// Configure builds a client from cfg, installs it as the process default,
// and returns it. It is the one-call composition root for applications
// that use guard fallback resolution.
func Configure(cfg Config, opts ...Option) (*Client, error) {
	c, err := NewFromConfig(cfg, opts...)
	if err != nil {
		return nil, err
	}
	SetDefault(c)
	return c, nil
}

// ConfigureFromEnv is [Configure] fed by [ConfigFromEnv].
func ConfigureFromEnv(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Configure(cfg, opts...)
}
