package keyrunes

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	internalaudit "github.com/keyrunes/keyrunes-go/internal/audit"
	internalmetrics "github.com/keyrunes/keyrunes-go/internal/metrics"
)

// DefaultNamespace is applied to registration and login requests that do not
// set one explicitly.
const DefaultNamespace = "public"

// AdminGroup is the group whose members the service treats as administrators.
// Membership implies User.IsAdmin even when the service omits the flag.
const AdminGroup = "admins"

// User is an immutable snapshot of a Keyrunes identity at the time of the
// call that produced it. The SDK never caches users.
type User struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Groups     []string          `json:"groups,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at,omitzero"`
	UpdatedAt  time.Time         `json:"updated_at,omitzero"`
	IsActive   bool              `json:"is_active"`
	IsAdmin    bool              `json:"is_admin"`
}

// InGroup reports whether the user belongs to the named group.
func (u *User) InGroup(group string) bool {
	if u == nil {
		return false
	}
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// InAnyGroup reports whether the user belongs to at least one of the groups.
func (u *User) InAnyGroup(groups ...string) bool {
	for _, g := range groups {
		if u.InGroup(g) {
			return true
		}
	}
	return false
}

// InAllGroups reports whether the user belongs to every one of the groups.
func (u *User) InAllGroups(groups ...string) bool {
	if u == nil {
		return false
	}
	for _, g := range groups {
		if !u.InGroup(g) {
			return false
		}
	}
	return true
}

// Group is a named collection of users with associated permissions.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Token is a bearer credential issued by POST /api/login. AccessToken is
// opaque to callers; when it happens to be a JWT the client additionally
// decodes a [SessionClaims] snapshot from it.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// GroupCheck is the service's record of a single membership verification.
type GroupCheck struct {
	UserID    string    `json:"user_id"`
	GroupID   string    `json:"group_id"`
	HasAccess bool      `json:"has_access"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// RegisterRequest is the input for [Client.Register]. Namespace defaults to
// [DefaultNamespace] when empty.
type RegisterRequest struct {
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Namespace  string            `json:"namespace"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
)

// Validate enforces the service's registration constraints before any I/O.
// Violations wrap [ErrValidation].
func (r *RegisterRequest) Validate() error {
	n := utf8.RuneCountInString(r.Username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d to %d characters, got %d", ErrValidation, minUsernameLen, maxUsernameLen, n)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, r.Email)
	}
	if utf8.RuneCountInString(r.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	return nil
}

// AdminRegisterRequest is the input for [Client.RegisterAdmin]. AdminKey is
// the out-of-band provisioning secret required by the admin endpoint.
type AdminRegisterRequest struct {
	RegisterRequest
	AdminKey string `json:"admin_key"`
}

// Validate extends [RegisterRequest.Validate] with the AdminKey requirement.
func (r *AdminRegisterRequest) Validate() error {
	if err := r.RegisterRequest.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.AdminKey) == "" {
		return fmt.Errorf("%w: admin key is required", ErrValidation)
	}
	return nil
}

// LoginCredentials is the wire form of a login request. Identity accepts a
// username or an email address.
type LoginCredentials struct {
	Identity  string `json:"identity"`
	Password  string `json:"password"`
	Namespace string `json:"namespace"`
}

// wireUser tolerates the two identifier spellings the service emits and the
// optional {"user": {...}} envelope around registration responses.
type wireUser struct {
	ID         string            `json:"id"`
	ExternalID string            `json:"external_id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Groups     []string          `json:"groups"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	IsActive   *bool             `json:"is_active"`
	IsAdmin    bool              `json:"is_admin"`
}

type userEnvelope struct {
	User *wireUser `json:"user"`
	wireUser
}

func (w *wireUser) toUser() *User {
	u := &User{
		ID:         w.ID,
		Username:   w.Username,
		Email:      w.Email,
		Groups:     w.Groups,
		Attributes: w.Attributes,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
		IsAdmin:    w.IsAdmin,
		IsActive:   true,
	}
	if u.ID == "" {
		u.ID = w.ExternalID
	}
	if w.IsActive != nil {
		u.IsActive = *w.IsActive
	}
	if !u.IsAdmin {
		u.IsAdmin = u.InGroup(AdminGroup)
	}
	return u
}

func (e *userEnvelope) toUser() *User {
	if e.User != nil {
		return e.User.toUser()
	}
	return e.wireUser.toUser()
}

// AuditEvent is a structured security event emitted by the client.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess     = internalmetrics.MetricLoginSuccess
	MetricLoginFailure     = internalmetrics.MetricLoginFailure
	MetricRegisterSuccess  = internalmetrics.MetricRegisterSuccess
	MetricRegisterConflict = internalmetrics.MetricRegisterConflict
	MetricAuthzAllowed     = internalmetrics.MetricAuthzAllowed
	MetricAuthzDenied      = internalmetrics.MetricAuthzDenied
	MetricCacheHit         = internalmetrics.MetricCacheHit
	MetricCacheMiss        = internalmetrics.MetricCacheMiss
	MetricRequestError     = internalmetrics.MetricRequestError
	MetricRequestLatency   = internalmetrics.MetricRequestLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When enabled is false all
// operations are no-ops.
func NewMetrics(enabled, latency bool) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       enabled,
		EnableLatency: enabled && latency,
	})
}
