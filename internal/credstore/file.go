package credstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"majorpath.org/internal/obs"
)

const (
	tokenFile   = "token.json"
	sessionFile = "session.json"

	// The token's persistence window mirrors the 7-day cookie expiry of the
	// web client, independent of the access token's own exp claim.
	defaultTokenTTL = 7 * 24 * time.Hour
)

type tokenRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionRecord struct {
	User          *User `json:"user,omitempty"`
	Authenticated bool  `json:"authenticated"`
}

// FileStore persists credentials under a single application-owned directory:
// the token (with its expiry window) in one file and the user record plus
// authenticated flag in another.
type FileStore struct {
	dir      string
	tokenTTL time.Duration
	now      func() time.Time
}

var _ Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithTokenTTL overrides the token persistence window.
func WithTokenTTL(ttl time.Duration) FileOption {
	return func(s *FileStore) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) FileOption {
	return func(s *FileStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, opts ...FileOption) *FileStore {
	s := &FileStore{dir: dir, tokenTTL: defaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the stored token unless it is missing or past its window.
func (s *FileStore) Token() (string, bool) {
	var rec tokenRecord
	if !s.read(tokenFile, &rec) {
		return "", false
	}
	if rec.Token == "" || s.now().After(rec.ExpiresAt) {
		return "", false
	}
	return rec.Token, true
}

// SetToken persists the token with a fresh expiry window.
func (s *FileStore) SetToken(token string) {
	s.write(tokenFile, tokenRecord{
		Token:     token,
		ExpiresAt: s.now().Add(s.tokenTTL),
	})
}

// RemoveToken deletes the stored token.
func (s *FileStore) RemoveToken() {
	s.remove(tokenFile)
}

// StoredUser returns the persisted user record, if any.
func (s *FileStore) StoredUser() (*User, bool) {
	var rec sessionRecord
	if !s.read(sessionFile, &rec) {
		return nil, false
	}
	if rec.User == nil {
		return nil, false
	}
	return rec.User, true
}

// SaveUser persists the user and the authenticated flag in a single atomic
// write (temp file + rename), so the two can never diverge on disk.
func (s *FileStore) SaveUser(u *User) {
	s.write(sessionFile, sessionRecord{User: u, Authenticated: u != nil})
}

// RemoveUser deletes the user record and the authenticated flag.
func (s *FileStore) RemoveUser() {
	s.remove(sessionFile)
}

// Authenticated reports whether both the token and the persisted flag agree.
func (s *FileStore) Authenticated() bool {
	if _, ok := s.Token(); !ok {
		return false
	}
	var rec sessionRecord
	if !s.read(sessionFile, &rec) {
		return false
	}
	return rec.Authenticated
}

// Clear removes all persisted credential state.
func (s *FileStore) Clear() {
	s.RemoveToken()
	s.RemoveUser()
}

func (s *FileStore) read(name string, out any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		obs.Warn("credential file corrupt", map[string]any{"file": name, "error": err.Error()})
		return false
	}
	return true
}

func (s *FileStore) write(name string, v any) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		obs.Warn("credential dir create failed", map[string]any{"dir": s.dir, "error": err.Error()})
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		obs.Warn("credential marshal failed", map[string]any{"file": name, "error": err.Error()})
		return
	}
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		obs.Warn("credential write failed", map[string]any{"file": name, "error": err.Error()})
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		obs.Warn("credential write failed", map[string]any{"file": name, "error": err.Error()})
		return
	}
	if err := tmp.Chmod(0o600); err != nil {
		obs.Warn("credential chmod failed", map[string]any{"file": name, "error": err.Error()})
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		obs.Warn("credential write failed", map[string]any{"file": name, "error": err.Error()})
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		obs.Warn("credential write failed", map[string]any{"file": name, "error": err.Error()})
	}
}

func (s *FileStore) remove(name string) {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		obs.Warn("credential remove failed", map[string]any{"file": name, "error": err.Error()})
	}
}
