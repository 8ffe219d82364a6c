package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/metricdeck/internal/storage"
)

type fakeAuth struct {
	creds      Credentials
	loginErr   error
	logoutErr  error
	logoutWith []string
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (Credentials, error) {
	if f.loginErr != nil {
		return Credentials{}, f.loginErr
	}
	if password != "secret" {
		return Credentials{}, ErrInvalidCredentials
	}
	c := f.creds
	c.User.Email = email
	return c, nil
}

func (f *fakeAuth) Logout(_ context.Context, accessToken string) error {
	f.logoutWith = append(f.logoutWith, accessToken)
	return f.logoutErr
}

func newTestStore(t *testing.T) (*Store, *storage.Memory, *fakeAuth) {
	t.Helper()
	mem := storage.NewMemory()
	auth := &fakeAuth{creds: Credentials{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         User{ID: 7, Name: "Ana", Role: "admin"},
	}}
	return NewStore(mem, auth, zerolog.Nop()), mem, auth
}

func TestStore_LoginPersistsAllEntries(t *testing.T) {
	s, mem, _ := newTestStore(t)

	var seen []Status
	s.OnChange(func(sess Session) { seen = append(seen, sess.Status) })

	sess, err := s.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, sess.Status)
	assert.Equal(t, "ana@example.com", sess.User.Email)
	assert.Equal(t, []Status{Authenticating, Authenticated}, seen)

	access, ok, _ := mem.Get(KeyAccessToken)
	assert.True(t, ok)
	assert.Equal(t, "a1", access)
	refresh, ok, _ := mem.Get(KeyRefreshToken)
	assert.True(t, ok)
	assert.Equal(t, "r1", refresh)
	user, ok, _ := mem.Get(KeyUser)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":7,"name":"Ana","email":"ana@example.com","role":"admin"}`, user)
}

func TestStore_LoginInvalidCredentialsStaysSignedOut(t *testing.T) {
	s, mem, _ := newTestStore(t)

	_, err := s.Login(context.Background(), "ana@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, Unauthenticated, s.Status())
	assert.Equal(t, 0, mem.Len())
}

func TestStore_LogoutClearsEvenWhenRemoteFails(t *testing.T) {
	s, mem, auth := newTestStore(t)
	auth.logoutErr = errors.New("connection refused")

	_, err := s.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	s.Logout(context.Background())

	assert.Equal(t, []string{"a1"}, auth.logoutWith)
	assert.Equal(t, Unauthenticated, s.Status())
	assert.Empty(t, s.AccessToken())
	assert.Equal(t, 0, mem.Len())
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	s, mem, auth := newTestStore(t)
	_, err := s.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	restored := NewStore(mem, auth, zerolog.Nop())
	sess, ok := restored.Restore()
	require.True(t, ok)
	assert.Equal(t, Authenticated, sess.Status)
	assert.Equal(t, "a1", sess.AccessToken)
	assert.Equal(t, "r1", sess.RefreshToken)
	assert.Equal(t, int64(7), sess.User.ID)
}

func TestStore_RestoreWithoutTokens(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, ok := s.Restore()
	assert.False(t, ok)
	assert.Equal(t, Unauthenticated, s.Status())
}

func TestStore_RestoreCorruptUserClears(t *testing.T) {
	s, mem, _ := newTestStore(t)
	require.NoError(t, mem.Set(KeyAccessToken, "a1"))
	require.NoError(t, mem.Set(KeyUser, "{not-json"))

	_, ok := s.Restore()
	assert.False(t, ok)
	assert.Equal(t, 0, mem.Len())
}

func TestStore_RefreshTransitions(t *testing.T) {
	s, mem, _ := newTestStore(t)
	_, err := s.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	token, err := s.BeginRefresh()
	require.NoError(t, err)
	assert.Equal(t, "r1", token)
	assert.Equal(t, Refreshing, s.Status())

	require.NoError(t, s.UpdateTokens("a2", ""))
	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.Status)
	assert.Equal(t, "a2", snap.AccessToken)
	assert.Equal(t, "r1", snap.RefreshToken)
	assert.Equal(t, "Ana", snap.User.Name)

	access, _, _ := mem.Get(KeyAccessToken)
	assert.Equal(t, "a2", access)

	require.NoError(t, s.UpdateTokens("a3", "r3"))
	refresh, _, _ := mem.Get(KeyRefreshToken)
	assert.Equal(t, "r3", refresh)

	assert.Error(t, s.UpdateTokens("", ""))
}

func TestStore_CompleteRefreshAfterLogoutIsDropped(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Login(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	token, err := s.BeginRefresh()
	require.NoError(t, err)
	s.Logout(ctx)

	err = s.CompleteRefresh(token, "a2", "r2")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, Unauthenticated, s.Status())
	assert.Empty(t, s.AccessToken())
	assert.Equal(t, 0, mem.Len())

	_, ok := s.Restore()
	assert.False(t, ok)
}

func TestStore_CompleteRefreshAfterReloginIsDropped(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Login(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	token, err := s.BeginRefresh()
	require.NoError(t, err)
	_, err = s.Login(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompleteRefresh(token, "a2", ""), ErrNotAuthenticated)
	assert.Equal(t, "a1", s.AccessToken())
	assert.False(t, s.AbortRefresh(token))
	assert.Equal(t, Authenticated, s.Status())
	assert.Equal(t, "Ana", s.Snapshot().User.Name)
}

func TestStore_CompleteAndAbortRefresh(t *testing.T) {
	s, mem, _ := newTestStore(t)
	_, err := s.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	token, err := s.BeginRefresh()
	require.NoError(t, err)
	require.NoError(t, s.CompleteRefresh(token, "a2", "r2"))
	assert.Equal(t, Authenticated, s.Status())
	access, _, _ := mem.Get(KeyAccessToken)
	assert.Equal(t, "a2", access)

	token, err = s.BeginRefresh()
	require.NoError(t, err)
	assert.Equal(t, "r2", token)
	assert.True(t, s.AbortRefresh(token))
	assert.Equal(t, Unauthenticated, s.Status())
	assert.Equal(t, 0, mem.Len())
}

func TestStore_UpdateTokensWithoutSession(t *testing.T) {
	s, mem, _ := newTestStore(t)
	assert.ErrorIs(t, s.UpdateTokens("a2", "r2"), ErrNotAuthenticated)
	assert.Equal(t, Unauthenticated, s.Status())
	assert.Equal(t, 0, mem.Len())
}

func TestStore_BeginRefreshWithoutSession(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.BeginRefresh()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Unauthenticated, "unauthenticated"},
		{Authenticating, "authenticating"},
		{Authenticated, "authenticated"},
		{Refreshing, "refreshing"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
