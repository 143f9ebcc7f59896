package keyrunes

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRegisterRequestValidate(t *testing.T) {
	valid := RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "sw0rdfish-9",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name     string
		mutate   func(*RegisterRequest)
		fragment string
	}{
		{"username too short", func(r *RegisterRequest) { r.Username = "al" }, "username"},
		{"username too long", func(r *RegisterRequest) { r.Username = strings.Repeat("a", 51) }, "username"},
		{"email malformed", func(r *RegisterRequest) { r.Email = "not-an-email" }, "email"},
		{"email empty", func(r *RegisterRequest) { r.Email = "" }, "email"},
		{"password too short", func(r *RegisterRequest) { r.Password = "short" }, "password"},
	}

	for _, tc := range cases {
		req := valid
		tc.mutate(&req)
		err := req.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.fragment) {
			t.Fatalf("%s: expected %q in message, got %q", tc.name, tc.fragment, err)
		}
	}
}

func TestRegisterRequestValidateCountsRunes(t *testing.T) {
	// Three runes, more than three bytes.
	req := RegisterRequest{
		Username: "äöü",
		Email:    "u@example.com",
		Password: "pässwörd",
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected rune-counted lengths to pass, got %v", err)
	}
}

func TestAdminRegisterRequestRequiresKey(t *testing.T) {
	req := AdminRegisterRequest{
		RegisterRequest: RegisterRequest{
			Username: "root",
			Email:    "root@example.com",
			Password: "sw0rdfish-9",
		},
	}
	err := req.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing admin key, got %v", err)
	}

	req.AdminKey = "prov-key-77"
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid admin request, got %v", err)
	}
}

func TestUserGroupHelpers(t *testing.T) {
	user := &User{Groups: []string{"staff", "ops"}}

	if !user.InGroup("staff") || user.InGroup("admins") {
		t.Fatal("InGroup verdicts wrong")
	}
	if !user.InAnyGroup("admins", "ops") {
		t.Fatal("expected any-of to match ops")
	}
	if user.InAnyGroup("admins", "security") {
		t.Fatal("expected any-of miss")
	}
	if !user.InAllGroups("staff", "ops") {
		t.Fatal("expected all-of to match")
	}
	if user.InAllGroups("staff", "admins") {
		t.Fatal("expected all-of miss")
	}
	if user.InAllGroups() != true {
		t.Fatal("all-of over no groups is vacuously true")
	}

	var nilUser *User
	if nilUser.InGroup("staff") || nilUser.InAnyGroup("staff") || nilUser.InAllGroups("staff") {
		t.Fatal("nil user belongs to nothing")
	}
}

func TestWireUserNormalization(t *testing.T) {
	// external_id fallback, is_active default, admin derivation.
	var w wireUser
	if err := json.Unmarshal([]byte(`{
		"external_id": "u-ext-1",
		"username": "alice",
		"email": "alice@example.com",
		"groups": ["admins", "staff"]
	}`), &w); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	u := w.toUser()
	if u.ID != "u-ext-1" {
		t.Fatalf("expected external_id fallback, got %q", u.ID)
	}
	if !u.IsActive {
		t.Fatal("expected is_active to default true when omitted")
	}
	if !u.IsAdmin {
		t.Fatal("expected admin derivation from admins membership")
	}
}

func TestWireUserExplicitFields(t *testing.T) {
	var w wireUser
	if err := json.Unmarshal([]byte(`{
		"id": "u1",
		"external_id": "u-ext-1",
		"username": "bob",
		"email": "bob@example.com",
		"is_active": false,
		"is_admin": true
	}`), &w); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	u := w.toUser()
	if u.ID != "u1" {
		t.Fatalf("expected id to win over external_id, got %q", u.ID)
	}
	if u.IsActive {
		t.Fatal("expected explicit is_active=false to be honored")
	}
	if !u.IsAdmin {
		t.Fatal("expected explicit is_admin to be honored without admins membership")
	}
}

func TestUserEnvelopeBothShapes(t *testing.T) {
	var enveloped userEnvelope
	if err := json.Unmarshal([]byte(`{"user": {"id": "u1", "username": "alice"}}`), &enveloped); err != nil {
		t.Fatalf("unmarshal enveloped failed: %v", err)
	}
	if got := enveloped.toUser(); got.ID != "u1" || got.Username != "alice" {
		t.Fatalf("enveloped decode wrong: %+v", got)
	}

	var flat userEnvelope
	if err := json.Unmarshal([]byte(`{"id": "u2", "username": "bob"}`), &flat); err != nil {
		t.Fatalf("unmarshal flat failed: %v", err)
	}
	if got := flat.toUser(); got.ID != "u2" || got.Username != "bob" {
		t.Fatalf("flat decode wrong: %+v", got)
	}
}

func TestWireTokenShapes(t *testing.T) {
	var modern wireToken
	if err := json.Unmarshal([]byte(`{
		"access_token": "tok-modern",
		"token_type": "Bearer",
		"expires_in": 900,
		"user": {"id": "u1", "username": "alice"}
	}`), &modern); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	token := modern.toToken()
	if token.AccessToken != "tok-modern" || token.TokenType != "Bearer" || token.ExpiresIn != 900 {
		t.Fatalf("modern shape decoded wrong: %+v", token)
	}
	if token.User == nil || token.User.ID != "u1" {
		t.Fatalf("expected embedded user, got %+v", token.User)
	}

	var legacy wireToken
	if err := json.Unmarshal([]byte(`{"token": "tok-legacy"}`), &legacy); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	token = legacy.toToken()
	if token.AccessToken != "tok-legacy" {
		t.Fatalf("expected legacy token field honored, got %q", token.AccessToken)
	}
	if token.TokenType != "bearer" {
		t.Fatalf("expected default token type bearer, got %q", token.TokenType)
	}
	if token.ExpiresIn != 3600 {
		t.Fatalf("expected default expiry 3600, got %d", token.ExpiresIn)
	}
}
