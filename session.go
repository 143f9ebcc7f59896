package keyrunes

import (
	"context"
	"fmt"
	"sync"
)

// Session logs in, runs fn with the authenticated client, and releases the
// session when fn returns. Release is unconditional: it happens on success,
// on error, and on panic (the panic continues after the token is cleared).
// Release is a local discard; the service holds no per-token state to
// revoke.
//
//	err := client.Session(ctx, "alice", password, func(ctx context.Context, c *keyrunes.Client) error {
//		me, err := c.CurrentUser(ctx)
//		...
//	})
func (c *Client) Session(ctx context.Context, identity, password string, fn func(ctx context.Context, c *Client) error) error {
	if fn == nil {
		return fmt.Errorf("%w: session body is required", ErrValidation)
	}

	if _, err := c.Login(ctx, identity, password); err != nil {
		return err
	}
	defer c.releaseSession(ctx)

	return fn(ctx, c)
}

func (c *Client) releaseSession(ctx context.Context) {
	userID := ""
	if claims := c.SessionClaims(); claims != nil {
		userID = claims.Subject
	}
	c.emitAudit(ctx, auditEventSessionReleased, true, userID, "", nil, nil)
	c.ClearToken()
}

// SessionHandle is the defer-style form of [Client.Session] for callers
// whose scope does not fit a closure.
//
//	handle, err := keyrunes.NewSession(ctx, client, "alice", password)
//	if err != nil { ... }
//	defer handle.Close()
type SessionHandle struct {
	client    *Client
	closeOnce sync.Once
}

// NewSession logs the client in and returns a handle whose Close releases
// the session. Close is idempotent.
func NewSession(ctx context.Context, c *Client, identity, password string) (*SessionHandle, error) {
	if _, err := c.Login(ctx, identity, password); err != nil {
		return nil, err
	}
	return &SessionHandle{client: c}, nil
}

// Client returns the authenticated client the handle guards.
func (h *SessionHandle) Client() *Client {
	return h.client
}

// Close releases the session. Safe to call more than once.
func (h *SessionHandle) Close() error {
	if h == nil || h.client == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		h.client.releaseSession(context.Background())
	})
	return nil
}
