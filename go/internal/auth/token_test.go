package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "token.json")
	fs := NewFileStore(path)

	if _, err := fs.Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token on empty store: %v, want ErrNoToken", err)
	}

	if err := fs.SetToken("tok-abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	got, err := fs.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "tok-abc" {
		t.Errorf("Token = %q, want tok-abc", got)
	}

	// A fresh store over the same path reads it back from disk.
	reread := NewFileStore(path)
	got, err = reread.Token()
	if err != nil {
		t.Fatalf("Token after reopen: %v", err)
	}
	if got != "tok-abc" {
		t.Errorf("Token after reopen = %q", got)
	}

	if err := fs.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := fs.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token after clear: %v, want ErrNoToken", err)
	}
}

func TestFileStoreClearMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	if err := fs.Clear(); err != nil {
		t.Errorf("Clear on missing file: %v", err)
	}
}

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

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if Expired(signedToken(t, now.Add(time.Hour)), now) {
		t.Error("token expiring in an hour reported expired")
	}
	if !Expired(signedToken(t, now.Add(-time.Hour)), now) {
		t.Error("token expired an hour ago reported valid")
	}
	if !Expired("garbage", now) {
		t.Error("unparseable token reported valid")
	}
}
