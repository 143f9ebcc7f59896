package keyrunes

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the client-side snapshot decoded from a Keyrunes access
// token. The signature is NOT verified; only the service can do that. The
// snapshot exists so callers and middleware can read the session identity
// without a network round trip. [Client.CurrentUser] is the authoritative
// lookup.
type SessionClaims struct {
	// Subject is the user ID the token was issued for.
	Subject   string
	Username  string
	Email     string
	Groups    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the token's exp claim has passed at the given
// instant. Tokens without an exp claim never report expired.
func (c *SessionClaims) ExpiredAt(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// decodeSessionClaims extracts the claim snapshot from a JWT-shaped token.
// Opaque tokens are tolerated: ok is false and the session simply has no
// snapshot.
func decodeSessionClaims(raw string) (*SessionClaims, bool) {
	if raw == "" {
		return nil, false
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}

	claims := &SessionClaims{}
	claims.Subject, _ = mc["sub"].(string)
	claims.Username, _ = mc["username"].(string)
	claims.Email, _ = mc["email"].(string)

	if raw, ok := mc["groups"].([]interface{}); ok {
		groups := make([]string, 0, len(raw))
		for _, g := range raw {
			if s, ok := g.(string); ok {
				groups = append(groups, s)
			}
		}
		claims.Groups = groups
	}

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	return claims, true
}
