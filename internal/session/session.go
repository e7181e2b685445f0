// Package session owns the in-memory authentication state and keeps it in
// sync with the credential store.
package session

import (
	"context"
	"sync"

	"majorpath.org/internal/api"
	"majorpath.org/internal/credstore"
	"majorpath.org/internal/obs"
)

const fallbackLoginError = "invalid email or password"

// State is the session snapshot handed to observers.
type State struct {
	User          *credstore.User
	Authenticated bool
	Loading       bool
	Err           string
}

// Backend is the slice of the API client the controller needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*credstore.User, error)
}

// Controller drives login/logout/fetch-user over the backend and the
// credential store. Safe for concurrent use.
type Controller struct {
	backend  Backend
	creds    credstore.Store
	onChange func(State)

	mu    sync.Mutex
	state State
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver installs a state-change callback. It runs with the
// controller's internal lock held; do not call back into the controller.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New constructs a Controller. The initial state is restored from the
// credential store: authenticated only when the token and the persisted flag
// agree.
func New(backend Backend, creds credstore.Store, opts ...Option) *Controller {
	c := &Controller{backend: backend, creds: creds}
	for _, opt := range opts {
		opt(c)
	}
	if creds.Authenticated() {
		if u, ok := creds.StoredUser(); ok {
			c.state = State{User: u, Authenticated: true}
		}
	}
	return c
}

// State returns the current session snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login authenticates and persists the credential on success. Failures are
// recorded in the state and also returned, so callers can both display the
// message and react to the outcome.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.mu.Lock()
	c.state.Loading = true
	c.state.Err = ""
	c.emitLocked()
	c.mu.Unlock()

	res, err := c.backend.Login(ctx, email, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		msg := api.Message(err)
		if msg == "" {
			msg = fallbackLoginError
		}
		c.state.Err = msg
		c.emitLocked()
		return err
	}
	c.creds.SetToken(res.Token)
	c.creds.SaveUser(res.User)
	c.state = State{User: res.User, Authenticated: true}
	c.emitLocked()
	return nil
}

// Logout tells the backend best-effort and then unconditionally clears all
// local session state. A server failure never leaves the client signed in.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.backend.Logout(ctx); err != nil {
		obs.Warn("logout request failed", map[string]any{"error": err.Error()})
	}
	c.creds.Clear()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
	c.emitLocked()
}

// FetchUser silently validates the stored session. Without a token it just
// marks the session unauthenticated; on any fetch failure it clears all
// session state, treating the token as invalid. No error surfaces.
func (c *Controller) FetchUser(ctx context.Context) {
	if _, ok := c.creds.Token(); !ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state = State{}
		c.emitLocked()
		return
	}

	c.mu.Lock()
	c.state.Loading = true
	c.emitLocked()
	c.mu.Unlock()

	u, err := c.backend.Me(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.creds.Clear()
		c.state = State{}
		c.emitLocked()
		return
	}
	c.creds.SaveUser(u)
	c.state = State{User: u, Authenticated: true}
	c.emitLocked()
}

// ClearError resets the error message without touching authentication state.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Err == "" {
		return
	}
	c.state.Err = ""
	c.emitLocked()
}

func (c *Controller) emitLocked() {
	if c.onChange != nil {
		c.onChange(c.state)
	}
}
