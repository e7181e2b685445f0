package credstore

import "sync"

// MemStore is an in-memory Store for tests and embedding applications that
// do not want on-disk persistence.
type MemStore struct {
	mu            sync.Mutex
	token         string
	hasToken      bool
	user          *User
	authenticated bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasToken {
		return "", false
	}
	return s.token, true
}

func (s *MemStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.hasToken = true
}

func (s *MemStore) RemoveToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.hasToken = false
}

func (s *MemStore) StoredUser() (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *MemStore) SaveUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		s.authenticated = false
		return
	}
	copied := *u
	s.user = &copied
	s.authenticated = true
}

func (s *MemStore) RemoveUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.authenticated = false
}

func (s *MemStore) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasToken && s.authenticated
}

func (s *MemStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.hasToken = false
	s.user = nil
	s.authenticated = false
}
