package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	keyrunes "github.com/keyrunes/keyrunes-go"
)

type userContextKey struct{}

// UserFromContext returns the user injected by [Authenticate].
func UserFromContext(ctx context.Context) (*keyrunes.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*keyrunes.User)
	return user, ok
}

// Authenticate resolves the request's bearer token into a live user via
// GET /api/users/me and injects it into the request context for the
// guards downstream. Missing or rejected tokens answer 401; an unreachable
// Keyrunes service answers 503 so callers can tell outage from rejection.
func Authenticate(client *keyrunes.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := parseBearer(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := client.WithToken(token).CurrentUser(r.Context())
			if err != nil {
				if errors.Is(err, keyrunes.ErrServiceUnavailable) {
					writeError(w, http.StatusServiceUnavailable, "authorization backend unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
