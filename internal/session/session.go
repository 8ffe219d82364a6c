// Package session owns the authenticated session: the credential pair, the
// signed-in user and the explicit authentication state. All credential reads
// and writes go through Store; nothing else touches the durable entries.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/storage"
)

// Durable storage keys. All three are written and cleared together.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

var (
	// ErrInvalidCredentials is returned by Login when the backend rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated is returned when an operation requires a session and none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Status is the explicit authentication state of the session.
type Status int

const (
	Unauthenticated Status = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s Status) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// User is the authenticated user record returned by the backend.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is a point-in-time copy of the session state.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         User
	Status       Status
}

// Credentials is what a successful login yields.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Authenticator performs the remote halves of login and logout.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Credentials, error)
	Logout(ctx context.Context, accessToken string) error
}

// Store coordinates session transitions and their persistence.
type Store struct {
	mu      sync.RWMutex
	session Session
	storage storage.Storage
	auth    Authenticator
	logger  zerolog.Logger

	listenersMu sync.Mutex
	listeners   []func(Session)
}

// NewStore builds an unauthenticated Store. Call Restore to load a persisted session.
func NewStore(st storage.Storage, auth Authenticator, logger zerolog.Logger) *Store {
	return &Store{
		storage: st,
		auth:    auth,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// SetAuthenticator replaces the remote authenticator. The API client is
// built on top of the Store, so it is attached after construction.
func (s *Store) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()
}

// OnChange registers fn to be called after every state transition.
func (s *Store) OnChange(fn func(Session)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Status returns the current authentication state.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Status
}

// AccessToken returns the current access token, empty when signed out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

// Login authenticates against the backend and persists the resulting session.
func (s *Store) Login(ctx context.Context, email, password string) (Session, error) {
	s.mu.Lock()
	auth := s.auth
	if auth == nil {
		s.mu.Unlock()
		return Session{}, fmt.Errorf("session has no authenticator")
	}
	prev := s.session
	s.session = Session{Status: Authenticating}
	s.mu.Unlock()
	s.notify()

	creds, err := auth.Login(ctx, email, password)
	if err != nil {
		s.mu.Lock()
		if prev.Status == Authenticated {
			s.session = prev
		} else {
			s.session = Session{Status: Unauthenticated}
		}
		s.mu.Unlock()
		s.notify()
		return Session{}, err
	}

	next := Session{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		User:         creds.User,
		Status:       Authenticated,
	}
	if err := s.persist(next); err != nil {
		s.logger.Error().Err(err).Msg("persist session failed")
	}

	s.mu.Lock()
	s.session = next
	s.mu.Unlock()
	s.notify()

	s.logger.Info().Int64("user_id", creds.User.ID).Str("email", creds.User.Email).Msg("logged in")
	return next, nil
}

// Logout notifies the backend (best effort) and always clears local credentials.
func (s *Store) Logout(ctx context.Context) {
	s.mu.RLock()
	auth := s.auth
	token := s.session.AccessToken
	s.mu.RUnlock()

	if auth != nil && token != "" {
		if err := auth.Logout(ctx, token); err != nil {
			s.logger.Warn().Err(err).Msg("remote logout failed")
		}
	}
	s.Clear()
	s.logger.Info().Msg("logged out")
}

// Clear destroys the session locally without contacting the backend.
func (s *Store) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) clearLocked() {
	if err := s.storage.Remove(KeyAccessToken, KeyRefreshToken, KeyUser); err != nil {
		s.logger.Error().Err(err).Msg("clear persisted session failed")
	}
	s.session = Session{Status: Unauthenticated}
}

// Restore loads a previously persisted session. It reports false when no
// usable session is stored; a partial or corrupt record is cleared.
func (s *Store) Restore() (Session, bool) {
	access, ok, err := s.storage.Get(KeyAccessToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("read access token failed")
		return Session{}, false
	}
	if !ok || access == "" {
		return Session{}, false
	}
	refresh, _, err := s.storage.Get(KeyRefreshToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("read refresh token failed")
		return Session{}, false
	}

	var user User
	raw, ok, err := s.storage.Get(KeyUser)
	if err != nil {
		s.logger.Error().Err(err).Msg("read user failed")
		return Session{}, false
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			s.logger.Warn().Err(err).Msg("discarding corrupt persisted user")
			s.Clear()
			return Session{}, false
		}
	}

	restored := Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
		Status:       Authenticated,
	}
	s.mu.Lock()
	s.session = restored
	s.mu.Unlock()
	s.notify()
	return restored, true
}

// BeginRefresh moves an authenticated session into Refreshing and returns the
// refresh token to use. It fails when there is nothing to refresh with.
func (s *Store) BeginRefresh() (string, error) {
	s.mu.Lock()
	if s.session.RefreshToken == "" {
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	token := s.session.RefreshToken
	s.session.Status = Refreshing
	s.mu.Unlock()
	s.notify()
	return token, nil
}

// UpdateTokens replaces the access token and, when refresh is non-empty, the
// refresh token of a live session. The user record is left untouched. It
// returns ErrNotAuthenticated when nobody is signed in.
func (s *Store) UpdateTokens(access, refresh string) error {
	if access == "" {
		return fmt.Errorf("access token is empty")
	}
	s.mu.Lock()
	if s.session.Status != Authenticated && s.session.Status != Refreshing {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	err := s.applyTokensLocked(access, refresh)
	s.mu.Unlock()
	s.notify()
	return err
}

// CompleteRefresh applies the result of a refresh started by BeginRefresh.
// issued is the refresh token BeginRefresh returned. When the session was
// logged out, replaced or already refreshed meanwhile, the result is dropped
// and ErrNotAuthenticated is returned.
func (s *Store) CompleteRefresh(issued, access, refresh string) error {
	if access == "" {
		return fmt.Errorf("access token is empty")
	}
	s.mu.Lock()
	if s.session.Status != Refreshing || s.session.RefreshToken != issued {
		s.mu.Unlock()
		s.logger.Debug().Msg("session changed during refresh, dropping tokens")
		return ErrNotAuthenticated
	}
	err := s.applyTokensLocked(access, refresh)
	s.mu.Unlock()
	s.notify()
	return err
}

// AbortRefresh destroys the session after a failed refresh, but only if it is
// still the session the refresh was started for. It reports whether it did.
func (s *Store) AbortRefresh(issued string) bool {
	s.mu.Lock()
	if s.session.Status != Refreshing || s.session.RefreshToken != issued {
		s.mu.Unlock()
		return false
	}
	s.clearLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// applyTokensLocked persists under s.mu so a concurrent Clear cannot be
// overwritten by a late write.
func (s *Store) applyTokensLocked(access, refresh string) error {
	s.session.AccessToken = access
	if refresh != "" {
		s.session.RefreshToken = refresh
	}
	s.session.Status = Authenticated

	var err error
	if perr := s.storage.Set(KeyAccessToken, access); perr != nil {
		err = fmt.Errorf("persist access token: %w", perr)
	}
	if refresh != "" {
		if perr := s.storage.Set(KeyRefreshToken, refresh); perr != nil && err == nil {
			err = fmt.Errorf("persist refresh token: %w", perr)
		}
	}
	return err
}

func (s *Store) persist(next Session) error {
	user, err := json.Marshal(next.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.storage.Set(KeyAccessToken, next.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if next.RefreshToken != "" {
		if err := s.storage.Set(KeyRefreshToken, next.RefreshToken); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	} else if err := s.storage.Remove(KeyRefreshToken); err != nil {
		return fmt.Errorf("remove stale refresh token: %w", err)
	}
	if err := s.storage.Set(KeyUser, string(user)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.listenersMu.Lock()
	listeners := append([]func(Session){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
