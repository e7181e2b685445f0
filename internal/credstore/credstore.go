// Package credstore is the persistence boundary for the bearer token and
// session flags. The token and the user record live in two separate
// partitions behind one interface so either can be faked independently.
package credstore

// User is the persisted account record. It round-trips through SaveUser and
// StoredUser unchanged.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role,omitempty"`
}

// Store provides access to the persisted credential and session state.
//
// Write failures are non-fatal by contract: implementations log and swallow
// them so loss of persistence never blocks the in-memory session for the
// current process lifetime.
type Store interface {
	// Token returns the stored bearer token, or false when absent or past
	// its persistence window.
	Token() (string, bool)
	SetToken(token string)
	RemoveToken()

	// StoredUser returns the persisted user record, or false when absent.
	StoredUser() (*User, bool)
	// SaveUser persists the user record and sets the authenticated flag in
	// one write; both succeed or neither does.
	SaveUser(u *User)
	RemoveUser()

	// Authenticated reports whether a token is present AND the persisted
	// authenticated flag is set. A stale flag without a token, or vice
	// versa, counts as unauthenticated.
	Authenticated() bool

	// Clear removes the token, the user record and the authenticated flag.
	Clear()
}
