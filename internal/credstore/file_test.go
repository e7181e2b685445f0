package credstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreTokenRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewFileStore(t.TempDir())
	if _, ok := s.Token(); ok {
		t.Fatal("empty store returned a token")
	}

	s.SetToken("tok-1")
	tok, ok := s.Token()
	if !ok || tok != "tok-1" {
		t.Fatalf("Token() = %q, %v", tok, ok)
	}

	s.RemoveToken()
	if _, ok := s.Token(); ok {
		t.Fatal("token survived removal")
	}
	s.RemoveToken() // removing twice must be harmless
}

func TestFileStoreTokenWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewFileStore(t.TempDir(), WithClock(clock))

	s.SetToken("tok-1")

	now = now.Add(7*24*time.Hour - time.Minute)
	if _, ok := s.Token(); !ok {
		t.Fatal("token expired before its window")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := s.Token(); ok {
		t.Fatal("token survived past its window")
	}
	if s.Authenticated() {
		t.Fatal("expired token still counts as authenticated")
	}
}

func TestFileStoreCustomTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewFileStore(t.TempDir(), WithClock(clock), WithTokenTTL(time.Hour))

	s.SetToken("tok-1")
	now = now.Add(61 * time.Minute)
	if _, ok := s.Token(); ok {
		t.Fatal("token survived past the custom window")
	}
}

func TestFileStoreUserRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewFileStore(t.TempDir())
	if _, ok := s.StoredUser(); ok {
		t.Fatal("empty store returned a user")
	}

	want := &User{ID: "u1", Email: "ada@example.com", FullName: "Ada Lovelace", Role: "student"}
	s.SaveUser(want)

	got, ok := s.StoredUser()
	if !ok {
		t.Fatal("user record not persisted")
	}
	if *got != *want {
		t.Fatalf("StoredUser() = %+v, want %+v", got, want)
	}

	s.RemoveUser()
	if _, ok := s.StoredUser(); ok {
		t.Fatal("user record survived removal")
	}
}

func TestFileStoreAuthenticated(t *testing.T) {
	t.Parallel()

	s := NewFileStore(t.TempDir())
	if s.Authenticated() {
		t.Fatal("empty store reports authenticated")
	}

	// A token alone is not an authenticated session.
	s.SetToken("tok-1")
	if s.Authenticated() {
		t.Fatal("token without a user record reports authenticated")
	}

	s.SaveUser(&User{ID: "u1"})
	if !s.Authenticated() {
		t.Fatal("token plus user record does not report authenticated")
	}

	// Nor is a user record without its token.
	s.RemoveToken()
	if s.Authenticated() {
		t.Fatal("user record without a token reports authenticated")
	}
}

func TestFileStoreClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewFileStore(dir)
	s.SetToken("tok-1")
	s.SaveUser(&User{ID: "u1"})

	s.Clear()

	if _, ok := s.Token(); ok {
		t.Fatal("token survived Clear")
	}
	if _, ok := s.StoredUser(); ok {
		t.Fatal("user record survived Clear")
	}
	for _, name := range []string{tokenFile, sessionFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s still on disk after Clear", name)
		}
	}
}

func TestFileStoreToleratesCorruptFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{tokenFile, sessionFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	s := NewFileStore(dir)
	if _, ok := s.Token(); ok {
		t.Fatal("corrupt token file yielded a token")
	}
	if _, ok := s.StoredUser(); ok {
		t.Fatal("corrupt session file yielded a user")
	}
	if s.Authenticated() {
		t.Fatal("corrupt files report authenticated")
	}

	// The store must recover by overwriting.
	s.SetToken("tok-1")
	s.SaveUser(&User{ID: "u1"})
	if !s.Authenticated() {
		t.Fatal("store did not recover from corrupt files")
	}
}

func TestFileStoreFileMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewFileStore(dir)
	s.SetToken("tok-1")

	info, err := os.Stat(filepath.Join(dir, tokenFile))
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Fatalf("token file mode = %o, want 600", mode)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := NewFileStore(dir)
	first.SetToken("tok-1")
	first.SaveUser(&User{ID: "u1", Email: "ada@example.com"})

	second := NewFileStore(dir)
	if !second.Authenticated() {
		t.Fatal("session did not survive reopening the store")
	}
	u, ok := second.StoredUser()
	if !ok || u.Email != "ada@example.com" {
		t.Fatalf("StoredUser() = %+v, %v", u, ok)
	}
}
