package keyrunestest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return resp, decoded
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	srv := New()
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/api/users", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "sw0rdfish-9",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	user, ok := body["user"].(map[string]any)
	if !ok || user["username"] != "alice" {
		t.Fatalf("expected user envelope for alice, got %v", body)
	}

	resp, body = postJSON(t, srv.URL+"/api/login", map[string]string{
		"identity": "alice",
		"password": "sw0rdfish-9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in login response, got %v", body)
	}
	if body["token_type"] != "bearer" {
		t.Fatalf("expected bearer token type, got %v", body["token_type"])
	}

	resp, body = getJSON(t, srv.URL+"/api/users/me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /users/me, got %d", resp.StatusCode)
	}
	if body["username"] != "alice" {
		t.Fatalf("expected alice from /users/me, got %v", body)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv := New()
	defer srv.Close()

	payload := map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "sw0rdfish-9",
	}
	if resp, _ := postJSON(t, srv.URL+"/api/users", payload); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", resp.StatusCode)
	}
	resp, body := postJSON(t, srv.URL+"/api/users", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second register: expected 409, got %d", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatalf("expected error message, got %v", body)
	}
}

func TestAdminRegisterKeyContract(t *testing.T) {
	srv := New(WithAdminKey("prov-key-77"))
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/api/admin/register", map[string]string{
		"username":  "root",
		"email":     "root@example.com",
		"password":  "sw0rdfish-9",
		"admin_key": "wrong",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong key, got %d", resp.StatusCode)
	}

	resp, body := postJSON(t, srv.URL+"/api/admin/register", map[string]string{
		"username":  "root",
		"email":     "root@example.com",
		"password":  "sw0rdfish-9",
		"admin_key": "prov-key-77",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for correct key, got %d", resp.StatusCode)
	}
	user, _ := body["user"].(map[string]any)
	groups, _ := user["groups"].([]any)
	if len(groups) != 1 || groups[0] != "admins" {
		t.Fatalf("expected admins membership, got %v", user)
	}
}

func TestCurrentUserRequiresToken(t *testing.T) {
	srv := New()
	defer srv.Close()

	id := srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9")

	resp, _ := getJSON(t, srv.URL+"/api/users/me", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token, err := srv.TokenFor(id)
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}
	resp, body := getJSON(t, srv.URL+"/api/users/me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if body["id"] != id {
		t.Fatalf("expected id %s, got %v", id, body["id"])
	}
}

func TestGroupCheckContract(t *testing.T) {
	srv := New(WithGroups("ops"))
	defer srv.Close()

	id := srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9", "staff")

	resp, body := getJSON(t, srv.URL+"/api/users/"+id+"/groups/staff/check", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["has_access"] != true {
		t.Fatalf("expected membership verdict true, got %v", body)
	}

	resp, body = getJSON(t, srv.URL+"/api/users/"+id+"/groups/ops/check", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for known group, got %d", resp.StatusCode)
	}
	if body["has_access"] != false {
		t.Fatalf("expected membership verdict false, got %v", body)
	}

	resp, _ = getJSON(t, srv.URL+"/api/users/"+id+"/groups/ghosts/check", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown group, got %d", resp.StatusCode)
	}

	resp, _ = getJSON(t, srv.URL+"/api/users/nope/groups/staff/check", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
}

func TestLegacyTokenResponseShape(t *testing.T) {
	srv := New(WithLegacyTokenResponse())
	defer srv.Close()

	srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9")

	resp, body := postJSON(t, srv.URL+"/api/login", map[string]string{
		"identity": "alice",
		"password": "sw0rdfish-9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if tok, _ := body["token"].(string); tok == "" {
		t.Fatalf("expected legacy token field, got %v", body)
	}
	if _, present := body["access_token"]; present {
		t.Fatalf("legacy shape must not carry access_token, got %v", body)
	}
}

func TestResetOrphansIssuedTokens(t *testing.T) {
	srv := New()
	defer srv.Close()

	id := srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9")
	token, err := srv.TokenFor(id)
	if err != nil {
		t.Fatalf("TokenFor failed: %v", err)
	}

	srv.Reset()

	resp, _ := getJSON(t, srv.URL+"/api/users/me", token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after reset, got %d", resp.StatusCode)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	srv := New()
	defer srv.Close()

	id := srv.SeedUser("alice", "alice@example.com", "sw0rdfish-9")
	if err := srv.SetActive(id, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	resp, _ := postJSON(t, srv.URL+"/api/login", map[string]string{
		"identity": "alice",
		"password": "sw0rdfish-9",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", resp.StatusCode)
	}
}
