// Package auth owns the login credential and turns authorization failures
// into a forced logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"DocChat/internal/gateway"
	"DocChat/internal/store"
)

// ErrMissingCredentials is returned when email or password is empty.
var ErrMissingCredentials = errors.New("email and password are required")

// Authenticator is the part of the gateway the guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (gateway.Credential, error)
	Signup(ctx context.Context, email, password string) error
}

// Guard holds the current credential. It is safe for concurrent use.
type Guard struct {
	store  store.Store
	authn  Authenticator
	logger *slog.Logger

	mu         sync.RWMutex
	credential *gateway.Credential
	onLogout   []func()
}

// NewGuard hydrates the credential from s. authn may be set later with
// SetAuthenticator when the gateway itself depends on the guard's token.
func NewGuard(ctx context.Context, s store.Store, authn Authenticator, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	g := &Guard{store: s, authn: authn, logger: logger}

	token, ok, err := s.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if ok && token != "" {
		userID, _, err := s.Get(ctx, store.KeyUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user id: %w", err)
		}
		g.credential = &gateway.Credential{Token: token, UserID: userID}
		logger.Info("restored credential", "user_id", userID)
	}

	return g, nil
}

// SetAuthenticator sets the gateway used for login and signup.
func (g *Guard) SetAuthenticator(authn Authenticator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authn = authn
}

// OnLogout registers fn to run after every forced or explicit logout.
// Callbacks run without the guard's lock held.
func (g *Guard) OnLogout(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLogout = append(g.onLogout, fn)
}

// Token returns the bearer token, or "" when logged out.
func (g *Guard) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.credential == nil {
		return ""
	}
	return g.credential.Token
}

// Credential returns the current credential, if any.
func (g *Guard) Credential() (gateway.Credential, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.credential == nil {
		return gateway.Credential{}, false
	}
	return *g.credential, true
}

// Authenticated reports whether a credential is held.
func (g *Guard) Authenticated() bool {
	_, ok := g.Credential()
	return ok
}

// Login validates the form, authenticates and persists the credential.
func (g *Guard) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	authn := g.authenticator()
	if authn == nil {
		return fmt.Errorf("no authenticator configured")
	}

	cred, err := authn.Authenticate(ctx, email, password)
	if err != nil {
		g.logger.Warn("login failed", "email", email, "error", err)
		return err
	}

	if err := g.store.Set(ctx, store.KeyAccessToken, cred.Token); err != nil {
		g.logger.Error("failed to persist access token", "error", err)
	}
	if err := g.store.Set(ctx, store.KeyUserID, cred.UserID); err != nil {
		g.logger.Error("failed to persist user id", "error", err)
	}

	g.mu.Lock()
	g.credential = &cred
	g.mu.Unlock()

	g.logger.Info("logged in", "user_id", cred.UserID)
	return nil
}

// Signup validates the form and registers a new account. It does not log in.
func (g *Guard) Signup(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	authn := g.authenticator()
	if authn == nil {
		return fmt.Errorf("no authenticator configured")
	}

	if err := authn.Signup(ctx, email, password); err != nil {
		g.logger.Warn("signup failed", "email", email, "error", err)
		return err
	}

	g.logger.Info("signed up", "email", email)
	return nil
}

// HandleUnauthorized reacts to a server-reported authorization failure. It
// returns false when already logged out, in which case nothing happens.
func (g *Guard) HandleUnauthorized(ctx context.Context) bool {
	if !g.clear(ctx) {
		return false
	}
	g.logger.Warn("credential rejected by server, logged out")
	g.notify()
	return true
}

// Logout clears the credential and every persisted key. Idempotent.
func (g *Guard) Logout(ctx context.Context) bool {
	if !g.clear(ctx) {
		return false
	}
	g.logger.Info("logged out")
	g.notify()
	return true
}

// clear drops the credential and wipes storage. It reports whether a
// credential was held.
func (g *Guard) clear(ctx context.Context) bool {
	g.mu.Lock()
	if g.credential == nil {
		g.mu.Unlock()
		return false
	}
	g.credential = nil
	g.mu.Unlock()

	if err := store.RemoveAll(ctx, g.store, store.AllKeys...); err != nil {
		g.logger.Error("failed to clear persisted state", "error", err)
	}
	return true
}

func (g *Guard) notify() {
	g.mu.RLock()
	callbacks := append([]func(){}, g.onLogout...)
	g.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (g *Guard) authenticator() Authenticator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authn
}
