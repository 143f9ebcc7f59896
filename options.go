package keyrunes

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a [Client] during [New]. Options are applied in order,
// so later options win over earlier ones and over [WithConfig].
type Option func(*clientOptions)

type clientOptions struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink
}

// WithConfig replaces the whole configuration in one call. Field-level
// options applied after it still override individual values.
func WithConfig(cfg Config) Option {
	return func(o *clientOptions) {
		base := o.cfg.BaseURL
		o.cfg = cfg
		if o.cfg.BaseURL == "" {
			o.cfg.BaseURL = base
		}
	}
}

// WithHTTPClient supplies a caller-owned *http.Client. The client's Timeout
// is left untouched, and [Client.Close] will not close its idle connections.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithTimeout bounds each HTTP round trip. Ignored when [WithHTTPClient]
// is also given.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.cfg.Timeout = d
	}
}

// WithAPIKey sends the given key as X-API-Key on every request.
func WithAPIKey(key string) Option {
	return func(o *clientOptions) {
		o.cfg.APIKey = key
	}
}

// WithOrganizationKey sends the given key as X-Organization-Key on every
// request.
func WithOrganizationKey(key string) Option {
	return func(o *clientOptions) {
		o.cfg.OrganizationKey = key
	}
}

// WithNamespace sets the default namespace for registrations and logins.
func WithNamespace(ns string) Option {
	return func(o *clientOptions) {
		o.cfg.Namespace = ns
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		o.cfg.UserAgent = ua
	}
}

// WithLogger attaches a structured logger. The client logs each request at
// debug level (method, path, status, duration) and never logs credentials
// or tokens.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithAuditSink enables the audit event stream into sink. When the
// configuration does not set Audit.Enabled, audit is enabled with a
// 64-event drop-if-full buffer.
func WithAuditSink(sink AuditSink) Option {
	return func(o *clientOptions) {
		o.auditSink = sink
		if !o.cfg.Audit.Enabled {
			o.cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}
		}
	}
}

// WithMetrics enables in-process counters. Latency histograms stay off
// unless [WithLatencyHistograms] is also applied.
func WithMetrics(enabled bool) Option {
	return func(o *clientOptions) {
		o.cfg.Metrics.Enabled = enabled
	}
}

// WithLatencyHistograms enables the request latency histogram. Implies
// nothing unless metrics are enabled.
func WithLatencyHistograms(enabled bool) Option {
	return func(o *clientOptions) {
		o.cfg.Metrics.EnableLatencyHistograms = enabled
	}
}
