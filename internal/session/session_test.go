package session

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callingitnow/callit/internal/apitest"
	"github.com/callingitnow/callit/internal/auth"
	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/store"
	"github.com/callingitnow/callit/internal/store/sqlite"
)

type env struct {
	srv    *apitest.Server
	st     *sqlite.Store
	sealer *auth.Sealer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &env{srv: apitest.New(t), st: st, sealer: auth.NewSealer([32]byte{7})}
}

func (e *env) manager(opts ...Option) *Manager {
	return New(client.New(e.srv.URL), e.st, e.sealer, opts...)
}

func TestRegisterLoginLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.manager()
	assert.False(t, m.SignedIn())

	u, err := m.Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Handle)
	assert.True(t, m.SignedIn())
	assert.NotEmpty(t, m.Token())

	p, err := e.st.GetProfile(ctx, DefaultProfile)
	require.NoError(t, err)
	assert.NotContains(t, string(p.SealedToken), m.Token())
	opened, err := e.sealer.Open(p.SealedToken)
	require.NoError(t, err)
	assert.Equal(t, m.Token(), opened)

	require.NoError(t, m.Logout(ctx))
	assert.False(t, m.SignedIn())
	_, ok := m.CurrentUser()
	assert.False(t, ok)
	p, err = e.st.GetProfile(ctx, DefaultProfile)
	require.NoError(t, err)
	assert.Empty(t, p.SealedToken)

	u, err = m.Login(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Handle)

	_, err = m.Login(ctx, "a@example.com", "wrong")
	assert.True(t, client.IsUnauthorized(err))

	_, err = m.Login(ctx, "", "pw")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRestore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.manager().Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)

	m := e.manager()
	require.NoError(t, m.Restore(ctx))
	u, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Handle)

	fresh := e.manager()
	require.NoError(t, fresh.Logout(ctx))
	require.NoError(t, fresh.Restore(ctx))
	assert.False(t, fresh.SignedIn())
}

func TestRestoreDropsRejectedToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.manager()
	_, err := first.Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)
	e.srv.ExpireToken(first.Token())

	expired := 0
	m := e.manager(OnExpired(func() { expired++ }))
	require.NoError(t, m.Restore(ctx))
	assert.False(t, m.SignedIn())
	assert.Equal(t, 1, expired)

	p, err := e.st.GetProfile(ctx, DefaultProfile)
	require.NoError(t, err)
	assert.Empty(t, p.SealedToken)
}

func TestRestoreOfflineKeepsCachedUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.manager().Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)

	e.srv.Drop(apitest.RouteMe)
	m := e.manager()
	require.NoError(t, m.Restore(ctx))
	u, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Handle)
}

func TestUnauthorizedAnywhereSignsOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expired := 0
	m := e.manager(OnExpired(func() { expired++ }))
	_, err := m.Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)

	e.srv.ExpireToken(m.Token())
	_, err = m.api.ListMyPredictions(ctx)
	assert.True(t, client.IsUnauthorized(err))
	assert.False(t, m.SignedIn())
	assert.Empty(t, m.Token())
	assert.Equal(t, 1, expired)
}

func TestProfiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.manager()
	_, err := m.Register(ctx, "a@example.com", "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, m.Use(ctx, "work"))
	assert.Equal(t, "work", m.Active())
	assert.False(t, m.SignedIn())
	_, err = m.Register(ctx, "b@example.com", "bob", "pw")
	require.NoError(t, err)

	profiles, err := m.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "default", profiles[0].Name)
	assert.Equal(t, "work", profiles[1].Name)

	require.NoError(t, m.Use(ctx, "default"))
	u, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Handle)

	restarted := e.manager()
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, "default", restarted.Active())

	assert.ErrorIs(t, m.Use(ctx, "bad name"), store.ErrInvalidName)
	require.NoError(t, m.Forget(ctx, "default"))
	assert.False(t, m.SignedIn())
}

func TestRegisterRejectedByServer(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail(apitest.RouteRegister, http.StatusBadRequest, "Email already registered")
	_, err := e.manager().Register(context.Background(), "a@example.com", "alice", "pw")
	assert.Equal(t, "Email already registered", client.DetailOr(err, ""))
}
