package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no credential has been stored yet.
var ErrNoToken = errors.New("no auth token stored")

// Store is the credential-storage interface the engine depends on.
type Store interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

// StaticToken is a Store over a fixed token, handy for tests and for
// environments that inject the credential directly.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

func (s StaticToken) SetToken(string) error { return nil }
func (s StaticToken) Clear() error          { return nil }

// FileStore persists the bearer token in a JSON file, the daemon's
// equivalent of the browser's local storage.
type FileStore struct {
	path string

	mu     sync.Mutex
	cached string
	loaded bool
}

type tokenFile struct {
	Token string `json:"token"`
}

// NewFileStore creates a store backed by the given path. The file is
// created on first SetToken.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded {
		if f.cached == "" {
			return "", ErrNoToken
		}
		return f.cached, nil
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.loaded = true
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parse token file: %w", err)
	}

	f.cached = tf.Token
	f.loaded = true
	if f.cached == "" {
		return "", ErrNoToken
	}
	return f.cached, nil
}

func (f *FileStore) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(tokenFile{Token: token})
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	f.cached = token
	f.loaded = true
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cached = ""
	f.loaded = true
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Expired reports whether a JWT's exp claim has passed. The signature is
// not verified; only the server can do that, this is a local heuristic to
// prompt a re-login before the server rejects us. Tokens without an exp
// claim, or that don't parse, are treated as expired.
func Expired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.After(exp.Time)
}
