package keyrunes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CurrentUser fetches the identity behind the active session via
// GET /api/users/me. Without a session it fails locally with
// ErrUnauthenticated; there is never a default or anonymous user.
// This is the authoritative lookup; [Client.SessionClaims] is only the
// local snapshot.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var envelope userEnvelope
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/users/me",
		out:      &envelope,
		session:  true,
		notFound: notFoundUser,
	})
	if err != nil {
		return nil, err
	}
	return envelope.toUser(), nil
}

// GetUser fetches a user by ID via GET /api/users/{id}. Unknown IDs map to
// ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	var envelope userEnvelope
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/users/" + url.PathEscape(userID),
		out:      &envelope,
		auth:     true,
		notFound: notFoundUser,
	})
	if err != nil {
		return nil, err
	}
	return envelope.toUser(), nil
}

type wireGroups struct {
	UserID string   `json:"user_id"`
	Groups []string `json:"groups"`
}

// UserGroups returns the group names a user belongs to. With an empty
// userID it answers for the active session from the local claim snapshot,
// without a network round trip; otherwise it calls
// GET /api/users/{id}/groups.
func (c *Client) UserGroups(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		claims := c.SessionClaims()
		if claims == nil {
			return nil, fmt.Errorf("keyrunes: user groups: %w", ErrUnauthenticated)
		}
		return claims.Groups, nil
	}

	var wire wireGroups
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/users/" + url.PathEscape(userID) + "/groups",
		out:      &wire,
		auth:     true,
		notFound: notFoundUser,
	})
	if err != nil {
		return nil, err
	}
	return wire.Groups, nil
}

// CheckGroup verifies one membership via
// GET /api/users/{id}/groups/{group}/check and returns the service's full
// verdict record. A 404 on this endpoint maps to ErrGroupNotFound; use
// [Client.HasGroup] when absence should read as a plain "no".
func (c *Client) CheckGroup(ctx context.Context, userID, group string) (*GroupCheck, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if group == "" {
		return nil, fmt.Errorf("%w: group is required", ErrValidation)
	}

	var check GroupCheck
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/users/" + url.PathEscape(userID) + "/groups/" + url.PathEscape(group) + "/check",
		out:      &check,
		auth:     true,
		notFound: notFoundGroup,
	})
	if err != nil {
		return nil, err
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}
	return &check, nil
}

// HasGroup reports whether the user belongs to the group. A membership
// check against an unknown user or group answers false rather than failing:
// absence of the subject is absence of the membership.
func (c *Client) HasGroup(ctx context.Context, userID, group string) (bool, error) {
	check, err := c.CheckGroup(ctx, userID, group)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return check.HasAccess, nil
}
