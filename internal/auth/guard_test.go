package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"DocChat/internal/gateway"
	"DocChat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	cred      gateway.Credential
	err       error
	calls     int
	signupErr error
	signups   []string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, email, password string) (gateway.Credential, error) {
	f.calls++
	return f.cred, f.err
}

func (f *fakeAuthenticator) Signup(_ context.Context, email, password string) error {
	f.signups = append(f.signups, email)
	return f.signupErr
}

func newGuard(t *testing.T, s store.Store, authn Authenticator) *Guard {
	t.Helper()
	g, err := NewGuard(context.Background(), s, authn, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return g
}

func fullStore() *store.MemoryStore {
	return store.NewMemoryStore(map[string]string{
		store.KeyAccessToken:      "tok",
		store.KeyUserID:           "u1",
		store.KeyCurrentSessionID: "s1",
		store.KeyDocumentName:     "doc.pdf",
		store.KeyChatMessages:     `[{"type":"system","content":"hi"}]`,
	})
}

func TestNewGuard_Hydrates(t *testing.T) {
	g := newGuard(t, fullStore(), nil)

	cred, ok := g.Credential()
	require.True(t, ok)
	assert.Equal(t, gateway.Credential{Token: "tok", UserID: "u1"}, cred)
	assert.Equal(t, "tok", g.Token())
}

func TestNewGuard_LoggedOutByDefault(t *testing.T) {
	g := newGuard(t, store.NewMemoryStore(nil), nil)

	assert.False(t, g.Authenticated())
	assert.Equal(t, "", g.Token())
}

func TestGuard_LoginPersists(t *testing.T) {
	s := store.NewMemoryStore(nil)
	authn := &fakeAuthenticator{cred: gateway.Credential{Token: "new-token", UserID: "u9"}}
	g := newGuard(t, s, authn)

	require.NoError(t, g.Login(context.Background(), " a@example.com ", "secret"))

	assert.Equal(t, "new-token", g.Token())
	assert.Equal(t, map[string]string{
		store.KeyAccessToken: "new-token",
		store.KeyUserID:      "u9",
	}, s.Values())
}

func TestGuard_LoginValidation(t *testing.T) {
	authn := &fakeAuthenticator{}
	g := newGuard(t, store.NewMemoryStore(nil), authn)

	assert.ErrorIs(t, g.Login(context.Background(), "", "secret"), ErrMissingCredentials)
	assert.ErrorIs(t, g.Login(context.Background(), "a@example.com", ""), ErrMissingCredentials)
	assert.ErrorIs(t, g.Signup(context.Background(), "  ", "secret"), ErrMissingCredentials)
	assert.Equal(t, 0, authn.calls, "validation failures never reach the network")
	assert.Empty(t, authn.signups)
}

func TestGuard_LoginFailureKeepsState(t *testing.T) {
	s := store.NewMemoryStore(nil)
	authn := &fakeAuthenticator{err: gateway.ErrInvalidCredentials}
	g := newGuard(t, s, authn)

	err := g.Login(context.Background(), "a@example.com", "wrong")
	assert.True(t, errors.Is(err, gateway.ErrInvalidCredentials))
	assert.False(t, g.Authenticated())
	assert.Empty(t, s.Values())
}

func TestGuard_LoginWithoutAuthenticator(t *testing.T) {
	g := newGuard(t, store.NewMemoryStore(nil), nil)
	assert.Error(t, g.Login(context.Background(), "a@example.com", "secret"))

	g.SetAuthenticator(&fakeAuthenticator{cred: gateway.Credential{Token: "t"}})
	assert.NoError(t, g.Login(context.Background(), "a@example.com", "secret"))
}

func TestGuard_Signup(t *testing.T) {
	authn := &fakeAuthenticator{}
	g := newGuard(t, store.NewMemoryStore(nil), authn)

	require.NoError(t, g.Signup(context.Background(), "new@example.com", "secret"))
	assert.Equal(t, []string{"new@example.com"}, authn.signups)
	assert.False(t, g.Authenticated(), "signup does not log in")
}

func TestGuard_HandleUnauthorizedClearsEverything(t *testing.T) {
	s := fullStore()
	g := newGuard(t, s, nil)

	var notified int
	g.OnLogout(func() { notified++ })

	assert.True(t, g.HandleUnauthorized(context.Background()))
	assert.False(t, g.Authenticated())
	assert.Empty(t, s.Values())
	assert.Equal(t, 1, notified)
}

func TestGuard_HandleUnauthorizedIsIdempotent(t *testing.T) {
	s := fullStore()
	g := newGuard(t, s, nil)

	var notified int
	g.OnLogout(func() { notified++ })

	assert.True(t, g.HandleUnauthorized(context.Background()))
	require.NoError(t, s.Set(context.Background(), store.KeyChatMessages, "[]"))

	assert.False(t, g.HandleUnauthorized(context.Background()))
	assert.False(t, g.Logout(context.Background()))
	assert.Equal(t, 1, notified, "repeated signals while logged out are no-ops")
	assert.Equal(t, map[string]string{store.KeyChatMessages: "[]"}, s.Values())
}

func TestGuard_Logout(t *testing.T) {
	s := fullStore()
	g := newGuard(t, s, nil)

	var notified bool
	g.OnLogout(func() { notified = true })

	assert.True(t, g.Logout(context.Background()))
	assert.True(t, notified)
	assert.Empty(t, s.Values())
}
