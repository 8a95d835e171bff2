// Package session owns the signed-in user: it installs the bearer token on
// the API client, keeps the profile, and persists both sealed on disk.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/callingitnow/callit/internal/auth"
	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/store"
)

const DefaultProfile = "default"

var ErrNotSignedIn = errors.New("not signed in")

type Manager struct {
	api    *client.Client
	store  store.SessionStore
	sealer *auth.Sealer
	logger *slog.Logger

	mu        sync.RWMutex
	profile   string
	token     string
	user      *model.UserProfile
	onExpired func()
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithProfile selects the profile used before Restore reads the active one.
func WithProfile(name string) Option { return func(m *Manager) { m.profile = name } }

// OnExpired runs after a 401 ended the session.
func OnExpired(fn func()) Option { return func(m *Manager) { m.onExpired = fn } }

// New attaches a session to api: the client reads its token from the
// manager, and a 401 anywhere signs the manager out.
func New(api *client.Client, st store.SessionStore, sealer *auth.Sealer, opts ...Option) *Manager {
	m := &Manager{api: api, store: st, sealer: sealer, profile: DefaultProfile}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	api.Tokens = m
	api.OnUnauthorized = m.expired
	return m
}

// Token implements client.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// ClearToken implements client.TokenSource. It forgets the user and removes
// the stored token of the active profile.
func (m *Manager) ClearToken() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	name := m.profile
	m.mu.Unlock()
	if err := m.store.ClearToken(context.Background(), name); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("clear stored token failed", "profile", name, "err", err)
	}
}

func (m *Manager) expired() {
	m.logger.Info("session expired", "profile", m.Active())
	m.mu.RLock()
	fn := m.onExpired
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (m *Manager) SignedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.user != nil
}

// CurrentUser returns a copy of the signed-in user's profile.
func (m *Manager) CurrentUser() (*model.UserProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil, false
	}
	u := *m.user
	return &u, true
}

func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

func (m *Manager) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password required", model.ErrInvalidInput)
	}
	tok, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, tok)
}

func (m *Manager) Register(ctx context.Context, email, handle, password string) (*model.UserProfile, error) {
	email = strings.TrimSpace(email)
	handle = strings.TrimSpace(handle)
	if email == "" || handle == "" || password == "" {
		return nil, fmt.Errorf("%w: email, handle and password required", model.ErrInvalidInput)
	}
	tok, err := m.api.Register(ctx, email, handle, password)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, tok)
}

// start installs tok, loads the profile it belongs to and persists both.
func (m *Manager) start(ctx context.Context, tok model.AuthToken) (*model.UserProfile, error) {
	if tok.AccessToken == "" {
		return nil, errors.New("server returned no access token")
	}
	m.mu.Lock()
	m.token = tok.AccessToken
	m.user = nil
	m.mu.Unlock()

	u, err := m.api.Me(ctx)
	if err != nil {
		m.reset()
		return nil, fmt.Errorf("load profile: %w", err)
	}
	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()

	if err := m.persist(ctx); err != nil {
		return nil, err
	}
	m.logger.Info("signed in", "profile", m.Active(), "handle", u.Handle)
	out := u
	return &out, nil
}

// Logout ends the session locally. The backend keeps no session state.
func (m *Manager) Logout(ctx context.Context) error {
	m.reset()
	if err := m.store.ClearToken(ctx, m.Active()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Restore loads the active profile's stored token and fetches the user it
// belongs to. A token the backend rejects is removed; when the backend is
// unreachable the cached profile is kept.
func (m *Manager) Restore(ctx context.Context) error {
	if name, err := m.store.ActiveProfile(ctx); err == nil {
		m.mu.Lock()
		m.profile = name
		m.mu.Unlock()
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	p, err := m.store.GetProfile(ctx, m.Active())
	if errors.Is(err, store.ErrNotFound) {
		m.reset()
		return nil
	}
	if err != nil {
		return err
	}
	if len(p.SealedToken) == 0 || (p.APIURL != "" && p.APIURL != m.api.BaseURL) {
		m.reset()
		return nil
	}
	token, err := m.sealer.Open(p.SealedToken)
	if err != nil {
		m.logger.Warn("stored token unreadable", "profile", p.Name, "err", err)
		m.ClearToken()
		return nil
	}

	m.mu.Lock()
	m.token = token
	m.user = p.User
	m.mu.Unlock()

	if err := m.RefreshUser(ctx); err != nil {
		if errors.Is(err, client.ErrNetwork) && p.User != nil {
			m.logger.Debug("offline, using cached profile", "profile", p.Name)
			return nil
		}
		m.ClearToken()
		return nil
	}
	return nil
}

// RefreshUser re-reads the signed-in user's profile.
func (m *Manager) RefreshUser(ctx context.Context) error {
	if m.Token() == "" {
		return ErrNotSignedIn
	}
	u, err := m.api.Me(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()
	return m.persist(ctx)
}

func (m *Manager) Profiles(ctx context.Context) ([]store.Profile, error) {
	return m.store.ListProfiles(ctx)
}

// Use makes name the active profile and restores its session.
func (m *Manager) Use(ctx context.Context, name string) error {
	if err := m.store.SetActiveProfile(ctx, name); err != nil {
		return err
	}
	m.mu.Lock()
	m.profile = name
	m.mu.Unlock()
	return m.Restore(ctx)
}

// Forget deletes a stored profile. Forgetting the active one signs out.
func (m *Manager) Forget(ctx context.Context, name string) error {
	if err := m.store.DeleteProfile(ctx, name); err != nil {
		return err
	}
	if name == m.Active() {
		m.reset()
	}
	return nil
}

func (m *Manager) persist(ctx context.Context) error {
	m.mu.RLock()
	name, token, user := m.profile, m.token, m.user
	m.mu.RUnlock()
	sealed, err := m.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	return m.store.SaveProfile(ctx, store.Profile{
		Name:        name,
		APIURL:      m.api.BaseURL,
		SealedToken: sealed,
		User:        user,
	})
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()
}
