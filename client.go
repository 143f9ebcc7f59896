package keyrunes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	internalaudit "github.com/keyrunes/keyrunes-go/internal/audit"
	internalmetrics "github.com/keyrunes/keyrunes-go/internal/metrics"
)

// Client talks to one Keyrunes service. It is safe for concurrent use after
// construction; the only mutable state is the active session token, which is
// mutex-guarded. A Client holds at most one token at a time: Login replaces
// it, ClearToken releases it.
type Client struct {
	baseURL         string
	apiKey          string
	organizationKey string
	namespace       string
	userAgent       string

	httpClient    *http.Client
	ownsTransport bool
	logger        *slog.Logger

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	// checks collapses concurrent identical membership lookups into one
	// round trip. Deduplication only; verdicts are never stored here.
	checks *singleflight.Group

	// owner is false on [Client.WithToken] copies, which share the
	// transport and dispatcher but must not tear them down.
	owner bool

	session *sessionState
}

// sessionState is shared via pointer only within one Client; WithToken
// copies get their own.
type sessionState struct {
	mu     sync.RWMutex
	token  string
	claims *SessionClaims
}

const defaultUserAgent = "keyrunes-go/1"

// New returns a Client for the service at baseURL. A trailing slash on
// baseURL is stripped. Construction performs no I/O.
func New(baseURL string, opts ...Option) (*Client, error) {
	o := &clientOptions{cfg: Config{BaseURL: baseURL}}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.cfg.BaseURL == "" {
		o.cfg.BaseURL = baseURL
	}
	return newClient(o)
}

// NewFromConfig is [New] for callers that already hold a [Config].
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	o := &clientOptions{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return newClient(o)
}

func newClient(o *clientOptions) (*Client, error) {
	cfg := o.cfg
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		organizationKey: cfg.OrganizationKey,
		namespace:       cfg.Namespace,
		userAgent:       cfg.UserAgent,
		logger:          o.logger,
		checks:          &singleflight.Group{},
		owner:           true,
		session:         &sessionState{},
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	if o.httpClient != nil {
		c.httpClient = o.httpClient
	} else {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
		c.ownsTransport = true
	}

	c.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, o.auditSink)
	c.metrics = internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.Enabled && cfg.Metrics.EnableLatencyHistograms,
	})

	return c, nil
}

// BaseURL returns the normalized service root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Namespace returns the default namespace applied to registrations and
// logins, resolving the package default.
func (c *Client) Namespace() string {
	if c.namespace == "" {
		return DefaultNamespace
	}
	return c.namespace
}

// Token returns the active session token, or "" when logged out.
func (c *Client) Token() string {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.token
}

// SessionClaims returns the claim snapshot decoded from the active token,
// or nil when there is no session or the token is not JWT-shaped. The
// returned value is a copy.
func (c *Client) SessionClaims() *SessionClaims {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	if c.session.claims == nil {
		return nil
	}
	claims := *c.session.claims
	claims.Groups = append([]string(nil), c.session.claims.Groups...)
	return &claims
}

// SetToken installs a token obtained out of band (for example from a stored
// session file) as the active session.
func (c *Client) SetToken(token string) {
	c.session.mu.Lock()
	c.session.token = token
	c.session.claims, _ = decodeSessionClaims(token)
	c.session.mu.Unlock()
}

// ClearToken discards the active session. The service keeps no session
// state for bearer tokens, so release is purely local.
func (c *Client) ClearToken() {
	c.session.mu.Lock()
	had := c.session.token != ""
	userID := ""
	if c.session.claims != nil {
		userID = c.session.claims.Subject
	}
	c.session.token = ""
	c.session.claims = nil
	c.session.mu.Unlock()

	if had {
		c.emitAudit(context.Background(), auditEventTokenCleared, true, userID, "", nil, nil)
	}
}

// WithToken returns a shallow copy of the client bound to the given token.
// The copy shares the transport, audit dispatcher, and metrics; its Close
// is a no-op. Useful for serving concurrent principals over one client.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.owner = false
	clone.session = &sessionState{}
	clone.SetToken(token)
	return &clone
}

// Close flushes the audit dispatcher and releases idle connections on a
// transport the client created itself. Copies from [Client.WithToken] and
// clients built on a caller-supplied http.Client leave those resources
// alone.
func (c *Client) Close() error {
	if c == nil || !c.owner {
		return nil
	}
	c.audit.Close()
	if c.ownsTransport {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

// Health reports whether the service answers GET /api/health with success.
// Any failure, transport or HTTP, wraps ErrServiceUnavailable.
func (c *Client) Health(ctx context.Context) error {
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/health"})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

// call describes one HTTP round trip for do.
type call struct {
	method string
	path   string
	// body is JSON-encoded when non-nil.
	body any
	// out receives the decoded 2xx response body when non-nil.
	out any
	// auth attaches the bearer token when one is held.
	auth bool
	// session makes do fail with ErrUnauthenticated before any I/O
	// when no token is held. Implies auth.
	session bool
	// notFound selects the sentinel for a 404 on this endpoint.
	notFound notFoundKind
	// admin marks the admin registration endpoint, whose 403 means the
	// provisioning key was rejected.
	admin bool
}

// do performs one synchronous round trip. No retries, no redirect of
// failures into defaults: every non-2xx response surfaces as an *APIError
// wrapping the sentinel for its status.
func (c *Client) do(ctx context.Context, call call) error {
	endpoint := call.method + " " + call.path

	token := ""
	if call.auth || call.session {
		token = c.Token()
		if call.session && token == "" {
			return fmt.Errorf("keyrunes: %s: %w", endpoint, ErrUnauthenticated)
		}
	}

	var body io.Reader
	if call.body != nil {
		data, err := json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("keyrunes: %s: encode request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, c.baseURL+call.path, body)
	if err != nil {
		return fmt.Errorf("keyrunes: %s: build request: %w", endpoint, err)
	}

	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.organizationKey != "" {
		req.Header.Set("X-Organization-Key", c.organizationKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	c.metrics.Observe(internalmetrics.MetricRequestLatency, elapsed)

	if err != nil {
		c.metrics.Inc(internalmetrics.MetricRequestError)
		c.logger.LogAttrs(ctx, slog.LevelDebug, "keyrunes request failed",
			slog.String("method", call.method),
			slog.String("path", call.path),
			slog.String("request_id", requestID),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return fmt.Errorf("keyrunes: %s: %w: %w", endpoint, ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.Inc(internalmetrics.MetricRequestError)
		return fmt.Errorf("keyrunes: %s: %w: read response: %w", endpoint, ErrServiceUnavailable, err)
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "keyrunes request",
		slog.String("method", call.method),
		slog.String("path", call.path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("elapsed", elapsed),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if call.out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, call.out); err != nil {
			return fmt.Errorf("keyrunes: %s: decode response: %w", endpoint, err)
		}
		return nil
	}

	c.metrics.Inc(internalmetrics.MetricRequestError)
	return c.apiError(resp.StatusCode, data, requestID, endpoint, call)
}

// maxResponseBytes bounds response reads. Keyrunes payloads are small; the
// cap only guards against a misbehaving endpoint streaming forever.
const maxResponseBytes = 1 << 20

// wireError tolerates the error body shapes the service has used across
// versions.
type wireError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func (c *Client) apiError(status int, body []byte, requestID, endpoint string, call call) error {
	var we wireError
	_ = json.Unmarshal(body, &we)

	message := we.Message
	if message == "" {
		message = we.Error
	}
	if message == "" {
		message = we.Detail
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if we.RequestID != "" {
		requestID = we.RequestID
	}

	return &APIError{
		Status:    status,
		Code:      we.Code,
		Message:   message,
		RequestID: requestID,
		Endpoint:  endpoint,
		sentinel:  statusSentinel(status, call.notFound, call.admin),
	}
}
