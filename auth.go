package keyrunes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	internalmetrics "github.com/keyrunes/keyrunes-go/internal/metrics"
)

// Register creates a regular user account via POST /api/users. The request
// is validated locally first, so malformed input fails with ErrValidation
// before any I/O. A username or email collision surfaces as ErrConflict.
// Registration does not log the new user in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if req.Namespace == "" {
		req.Namespace = c.resolveNamespace(ctx)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var envelope userEnvelope
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/users",
		body:   &req,
		out:    &envelope,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.metricInc(internalmetrics.MetricRegisterConflict)
		}
		c.emitAudit(ctx, auditEventRegisterUser, false, "", req.Username, err, nil)
		return nil, err
	}

	user := envelope.toUser()
	c.metricInc(internalmetrics.MetricRegisterSuccess)
	c.emitAudit(ctx, auditEventRegisterUser, true, user.ID, req.Username, nil, nil)
	return user, nil
}

// RegisterAdmin creates an administrator account via POST /api/admin/register.
// The request must carry the provisioning AdminKey; a rejected key surfaces
// as ErrPermission, never as ErrAuthentication.
func (c *Client) RegisterAdmin(ctx context.Context, req AdminRegisterRequest) (*User, error) {
	if req.Namespace == "" {
		req.Namespace = c.resolveNamespace(ctx)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var envelope userEnvelope
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/admin/register",
		body:   &req,
		out:    &envelope,
		admin:  true,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.metricInc(internalmetrics.MetricRegisterConflict)
		}
		c.emitAudit(ctx, auditEventRegisterAdmin, false, "", req.Username, err, nil)
		return nil, err
	}

	user := envelope.toUser()
	c.metricInc(internalmetrics.MetricRegisterSuccess)
	c.emitAudit(ctx, auditEventRegisterAdmin, true, user.ID, req.Username, nil, nil)
	return user, nil
}

// wireToken tolerates both login response shapes the service has used: the
// legacy {"token": "..."} and the OAuth-style
// {"access_token", "token_type", "expires_in"}.
type wireToken struct {
	Token        string    `json:"token"`
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         *wireUser `json:"user"`
}

func (w *wireToken) toToken() *Token {
	t := &Token{
		AccessToken:  w.AccessToken,
		TokenType:    w.TokenType,
		ExpiresIn:    w.ExpiresIn,
		RefreshToken: w.RefreshToken,
	}
	if t.AccessToken == "" {
		t.AccessToken = w.Token
	}
	if t.TokenType == "" {
		t.TokenType = "bearer"
	}
	if t.ExpiresIn == 0 {
		t.ExpiresIn = 3600
	}
	if w.User != nil {
		t.User = w.User.toUser()
	}
	return t
}

// Login authenticates identity (username or email) with password via
// POST /api/login and installs the returned token as the client's active
// session, replacing any previous one. Rejected credentials surface as
// ErrAuthentication; the previous session survives a failed login.
func (c *Client) Login(ctx context.Context, identity, password string) (*Token, error) {
	if strings.TrimSpace(identity) == "" || password == "" {
		return nil, fmt.Errorf("%w: identity and password are required", ErrValidation)
	}

	creds := LoginCredentials{
		Identity:  identity,
		Password:  password,
		Namespace: c.resolveNamespace(ctx),
	}

	var wire wireToken
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/login",
		body:   &creds,
		out:    &wire,
	})
	if err != nil {
		c.metricInc(internalmetrics.MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", identity, err, nil)
		return nil, err
	}

	token := wire.toToken()
	if token.AccessToken == "" {
		c.metricInc(internalmetrics.MetricLoginFailure)
		return nil, fmt.Errorf("keyrunes: POST /api/login: response carried no token")
	}

	c.SetToken(token.AccessToken)
	c.metricInc(internalmetrics.MetricLoginSuccess)

	userID := ""
	if claims := c.SessionClaims(); claims != nil {
		userID = claims.Subject
	}
	c.emitAudit(ctx, auditEventLoginSuccess, true, userID, identity, nil, nil)

	return token, nil
}
