package keyrunes

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess    = "login_success"
	auditEventLoginFailure    = "login_failure"
	auditEventRegisterUser    = "register_user"
	auditEventRegisterAdmin   = "register_admin"
	auditEventAuthzAllowed    = "authz_allowed"
	auditEventAuthzDenied     = "authz_denied"
	auditEventSessionReleased = "session_released"
	auditEventTokenCleared    = "token_cleared"
)

// AuditErrorCode is the stable machine code recorded in [AuditEvent.Error].
// Raw error strings never reach sinks, so credentials cannot leak through
// the audit stream.
type AuditErrorCode string

const (
	auditErrValidation      AuditErrorCode = "validation"
	auditErrConflict        AuditErrorCode = "conflict"
	auditErrAuthentication  AuditErrorCode = "authentication_failed"
	auditErrUnauthenticated AuditErrorCode = "unauthenticated"
	auditErrAuthorization   AuditErrorCode = "authorization_denied"
	auditErrPermission      AuditErrorCode = "permission_denied"
	auditErrUnavailable     AuditErrorCode = "service_unavailable"
	auditErrNotFound        AuditErrorCode = "not_found"
	auditErrInternal        AuditErrorCode = "internal_error"
)

// auditCodes maps sentinel errors to wire codes. Sentinels are independent
// values, so match order carries no meaning.
var auditCodes = []struct {
	err  error
	code AuditErrorCode
}{
	{ErrValidation, auditErrValidation},
	{ErrConflict, auditErrConflict},
	{ErrAuthentication, auditErrAuthentication},
	{ErrUnauthenticated, auditErrUnauthenticated},
	{ErrAuthorization, auditErrAuthorization},
	{ErrPermission, auditErrPermission},
	{ErrServiceUnavailable, auditErrUnavailable},
	{ErrUserNotFound, auditErrNotFound},
	{ErrGroupNotFound, auditErrNotFound},
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	for _, m := range auditCodes {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return auditErrInternal
}

// emitAudit hands one event to the dispatcher. buildMetadata runs only when
// audit is enabled, keeping map allocation off the disabled path.
func (c *Client) emitAudit(ctx context.Context, eventType string, success bool, userID, identity string, err error, buildMetadata func() map[string]string) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Identity:  identity,
		Namespace: c.resolveNamespace(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Error:     string(auditErrorCode(err)),
	}
	if buildMetadata != nil {
		event.Metadata = buildMetadata()
	}

	c.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full. Always zero when audit is disabled.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}
