package keyrunestest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// DefaultAdminKey is the provisioning key a fresh [Server] accepts on
// POST /api/admin/register until [WithAdminKey] overrides it.
const DefaultAdminKey = "admin-dev-key"

const defaultNamespace = "public"

type account struct {
	ID        string
	Username  string
	Email     string
	Password  string
	Namespace string
	Groups    []string
	Active    bool
	CreatedAt time.Time
}

// Server is a fake Keyrunes service bound to a local listener.
type Server struct {
	// URL is the service root, for example "http://127.0.0.1:41327".
	URL string

	srv         *httptest.Server
	adminKey    string
	tokenTTL    time.Duration
	legacyToken bool
	secret      []byte

	mu     sync.Mutex
	users  map[string]*account
	groups map[string]struct{}
}

// Option adjusts a Server before it starts serving.
type Option func(*Server)

// WithAdminKey sets the provisioning key required by admin registration.
func WithAdminKey(key string) Option {
	return func(s *Server) { s.adminKey = key }
}

// WithTokenTTL sets the lifetime stamped into issued session tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithGroups registers group names as known, so membership checks against
// them answer a verdict instead of 404.
func WithGroups(names ...string) Option {
	return func(s *Server) {
		for _, name := range names {
			s.groups[name] = struct{}{}
		}
	}
}

// WithLegacyTokenResponse makes login answer the old {"token": "..."} shape
// instead of the OAuth-style one.
func WithLegacyTokenResponse() Option {
	return func(s *Server) { s.legacyToken = true }
}

// New starts a fake Keyrunes service. Callers own the returned Server and
// must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		adminKey: DefaultAdminKey,
		tokenTTL: time.Hour,
		secret:   []byte(uuid.NewString()),
		users:    make(map[string]*account),
		groups:   map[string]struct{}{"admins": {}},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/users", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/register", s.handleRegisterAdmin).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/users/me", s.handleCurrentUser).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/groups", s.handleUserGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/groups/{group}/check", s.handleCheckGroup).Methods(http.MethodGet)

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	return s
}

// Close shuts the listener down and discards all state.
func (s *Server) Close() {
	s.srv.Close()
}

// AdminKey returns the provisioning key admin registration expects.
func (s *Server) AdminKey() string {
	return s.adminKey
}

// Reset drops every account while keeping known groups and the signing key,
// so tokens issued before a Reset no longer resolve to a user.
func (s *Server) Reset() {
	s.mu.Lock()
	s.users = make(map[string]*account)
	s.mu.Unlock()
}

// SeedUser creates an account directly, bypassing the HTTP surface, and
// returns its ID. The account lands in the "public" namespace and its groups
// become known.
func (s *Server) SeedUser(username, email, password string, groups ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &account{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Password:  password,
		Namespace: defaultNamespace,
		Groups:    append([]string(nil), groups...),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.users[a.ID] = a
	for _, g := range groups {
		s.groups[g] = struct{}{}
	}
	return a.ID
}

// SetActive flips an account's active flag. Unknown IDs report an error.
func (s *Server) SetActive(userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("keyrunestest: unknown user %q", userID)
	}
	a.Active = active
	return nil
}

// TokenFor signs a session token for a seeded account, as if it had logged
// in.
func (s *Server) TokenFor(userID string) (string, error) {
	s.mu.Lock()
	a, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("keyrunestest: unknown user %q", userID)
	}
	return s.signToken(a)
}

func (s *Server) signToken(a *account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      a.ID,
		"username": a.Username,
		"email":    a.Email,
		"groups":   a.Groups,
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// authUser resolves the bearer token on r to its account, or nil.
func (s *Server) authUser(r *http.Request) *account {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	sub, _ := claims["sub"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[sub]
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerBody struct {
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Namespace  string            `json:"namespace"`
	Attributes map[string]string `json:"attributes"`
	AdminKey   string            `json:"admin_key"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "malformed request body")
		return
	}
	s.register(w, r, body, nil)
}

func (s *Server) handleRegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	key := body.AdminKey
	if key == "" {
		key = r.Header.Get("X-Admin-Key")
	}
	if key != s.adminKey {
		writeError(w, r, http.StatusForbidden, "invalid admin key")
		return
	}
	s.register(w, r, body, []string{"admins"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, body registerBody, groups []string) {
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "username, email and password are required")
		return
	}
	ns := body.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Namespace != ns {
			continue
		}
		if existing.Username == body.Username || existing.Email == body.Email {
			writeError(w, r, http.StatusConflict, "username or email already registered")
			return
		}
	}

	a := &account{
		ID:        uuid.NewString(),
		Username:  body.Username,
		Email:     body.Email,
		Password:  body.Password,
		Namespace: ns,
		Groups:    append([]string(nil), groups...),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.users[a.ID] = a

	writeJSON(w, http.StatusCreated, map[string]any{"user": userJSON(a)})
}

type loginBody struct {
	Identity  string `json:"identity"`
	Password  string `json:"password"`
	Namespace string `json:"namespace"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "malformed request body")
		return
	}

	ns := body.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	s.mu.Lock()
	var match *account
	for _, a := range s.users {
		if a.Namespace != ns {
			continue
		}
		if a.Username == body.Identity || a.Email == body.Identity {
			match = a
			break
		}
	}
	s.mu.Unlock()

	if match == nil || match.Password != body.Password || !match.Active {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.signToken(match)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token signing failed")
		return
	}

	if s.legacyToken {
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
		"user":         userJSON(match),
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	a := s.authUser(r)
	if a == nil {
		writeError(w, r, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(a))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.users[mux.Vars(r)["id"]]
	s.mu.Unlock()

	if a == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(a)})
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.users[mux.Vars(r)["id"]]
	s.mu.Unlock()

	if a == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": a.ID,
		"groups":  a.Groups,
	})
}

func (s *Server) handleCheckGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	a := s.users[vars["id"]]
	_, known := s.groups[vars["group"]]
	s.mu.Unlock()

	if a == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if !known {
		writeError(w, r, http.StatusNotFound, "group not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    a.ID,
		"group_id":   vars["group"],
		"has_access": slices.Contains(a.Groups, vars["group"]),
		"checked_at": time.Now().UTC(),
	})
}

func userJSON(a *account) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"username":   a.Username,
		"email":      a.Email,
		"groups":     a.Groups,
		"is_active":  a.Active,
		"created_at": a.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError mirrors the service's error body, echoing the caller's request
// ID when one was sent.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]string{"error": message}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, status, body)
}
