// Package auth carries operator identity: the session signal the dashboard
// consumes, password hashing, and token issue/verification for the API.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrUnauthenticated is returned by protected actions when nobody is signed in.
var ErrUnauthenticated = errors.New("not authenticated")

// Identity is the signed-in operator.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// State is the lifecycle of a session.
type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Session is the explicitly passed "current user" signal. It starts in the
// initializing state until a login attempt resolves it.
type Session struct {
	mu    sync.RWMutex
	state State
	user  *Identity
	token string
}

func NewSession() *Session {
	return &Session{state: StateInitializing}
}

// SignIn moves the session to authenticated.
func (s *Session) SignIn(user Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.user = &user
	s.token = token
}

// SignOut moves the session to unauthenticated and forgets the token.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnauthenticated
	s.user = nil
	s.token = ""
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Loading reports whether the session is still being resolved.
func (s *Session) Loading() bool {
	return s.State() == StateInitializing
}

// CurrentUser returns nil unless the session is authenticated.
func (s *Session) CurrentUser() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the bearer token of the signed-in user, if any.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Require returns the current user or ErrUnauthenticated.
func (s *Session) Require() (Identity, error) {
	if u := s.CurrentUser(); u != nil {
		return *u, nil
	}
	return Identity{}, ErrUnauthenticated
}

type ctxKey struct{}

// WithIdentity attaches an identity to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
