package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tickshare/tickshare/go/clients/timerapi"
	"github.com/tickshare/tickshare/go/internal/auth"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newLoginFixture(t *testing.T, issued string) (*Services, *atomic.Int32) {
	t.Helper()

	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %q", r.URL.Path)
		}
		logins.Add(1)
		var req timerapi.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@b.c" || req.Password != "pw" {
			t.Errorf("credentials = %q/%q", req.Email, req.Password)
		}
		json.NewEncoder(w).Encode(timerapi.AuthResponse{Token: issued})
	}))
	t.Cleanup(srv.Close)

	tokens := auth.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	return &Services{
		Tokens: tokens,
		API:    timerapi.NewClient(srv.URL, tokens),
	}, &logins
}

func TestEnsureTokenLogsInAndPersists(t *testing.T) {
	issued := signedToken(t, time.Now().Add(time.Hour))
	services, logins := newLoginFixture(t, issued)
	t.Setenv("TICKSHARE_EMAIL", "a@b.c")
	t.Setenv("TICKSHARE_PASSWORD", "pw")

	ensureToken(context.Background(), services)

	if got := logins.Load(); got != 1 {
		t.Fatalf("login calls = %d, want 1", got)
	}
	got, err := services.Tokens.Token()
	if err != nil {
		t.Fatalf("Token after login: %v", err)
	}
	if got != issued {
		t.Errorf("stored token = %q, want the issued one", got)
	}
}

func TestEnsureTokenSkipsLoginWhenTokenValid(t *testing.T) {
	services, logins := newLoginFixture(t, "unused")
	if err := services.Tokens.SetToken(signedToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	t.Setenv("TICKSHARE_EMAIL", "a@b.c")
	t.Setenv("TICKSHARE_PASSWORD", "pw")

	ensureToken(context.Background(), services)

	if got := logins.Load(); got != 0 {
		t.Errorf("login calls = %d, want 0 with a valid stored token", got)
	}
}

func TestEnsureTokenWithoutCredentials(t *testing.T) {
	services, logins := newLoginFixture(t, "unused")
	t.Setenv("TICKSHARE_EMAIL", "")
	t.Setenv("TICKSHARE_PASSWORD", "")

	ensureToken(context.Background(), services)

	if got := logins.Load(); got != 0 {
		t.Errorf("login calls = %d, want 0 without credentials", got)
	}
}

func TestEnsureTokenRefreshesExpiredToken(t *testing.T) {
	issued := signedToken(t, time.Now().Add(time.Hour))
	services, logins := newLoginFixture(t, issued)
	if err := services.Tokens.SetToken(signedToken(t, time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	t.Setenv("TICKSHARE_EMAIL", "a@b.c")
	t.Setenv("TICKSHARE_PASSWORD", "pw")

	ensureToken(context.Background(), services)

	if got := logins.Load(); got != 1 {
		t.Fatalf("login calls = %d, want 1 for an expired token", got)
	}
	got, _ := services.Tokens.Token()
	if got != issued {
		t.Errorf("stored token = %q, want the refreshed one", got)
	}
}
