package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"arcweb/cmd/internal/apiclient"
	"arcweb/cmd/internal/routes"
	"arcweb/cmd/internal/services"
	"arcweb/cmd/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	sess services.Session
	err  error
}

func (f fakeRefresher) Refresh(context.Context) (services.Session, error) { return f.sess, f.err }

type fakeUsers struct {
	user store.User
	err  error
}

func (f fakeUsers) GetMyInfo(context.Context) (store.User, error) { return f.user, f.err }

type fakeClient struct {
	inits    int
	token    string
	onLogout func()
}

func (f *fakeClient) Init(_ apiclient.SessionStore, token string, onLogout func()) {
	f.inits++
	f.token = token
	f.onLogout = onLogout
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestRun_Success(t *testing.T) {
	st := store.New(quietLogger())
	client := &fakeClient{}
	var navigated []string

	b := New(Deps{
		Store:     st,
		Auth:      fakeRefresher{sess: services.Session{AccessToken: "tok-1"}},
		Users:     fakeUsers{user: store.User{ID: "u-1"}},
		Client:    client,
		Navigator: NavigatorFunc(func(p string) { navigated = append(navigated, p) }),
		Log:       quietLogger(),
	})
	require.False(t, isClosed(b.Ready()))

	require.NoError(t, b.Run(context.Background()))

	assert.True(t, isClosed(b.Ready()))
	assert.Equal(t, "tok-1", store.AccessToken(st.State()))
	assert.Equal(t, 1, client.inits)
	assert.Equal(t, "tok-1", client.token)
	require.NotNil(t, store.CurrentUser(st.State()))
	assert.Equal(t, "u-1", store.CurrentUser(st.State()).ID)

	// The bound logout callback clears the session and navigates to login.
	client.onLogout()
	assert.False(t, store.IsAuthenticated(st.State()))
	assert.Nil(t, store.CurrentUser(st.State()))
	assert.Equal(t, []string{routes.Login}, navigated)
}

func TestRun_RefreshFailureStillRaisesReady(t *testing.T) {
	st := store.New(quietLogger())
	client := &fakeClient{}
	boom := errors.New("no session")

	b := New(Deps{Store: st, Auth: fakeRefresher{err: boom}, Users: fakeUsers{}, Client: client, Log: quietLogger()})
	err := b.Run(context.Background())

	require.ErrorIs(t, err, boom)
	assert.True(t, isClosed(b.Ready()))
	assert.Zero(t, client.inits)
	assert.False(t, store.IsAuthenticated(st.State()))
}

func TestRun_EmptyTokenIsAFailure(t *testing.T) {
	st := store.New(quietLogger())
	client := &fakeClient{}

	b := New(Deps{Store: st, Auth: fakeRefresher{}, Users: fakeUsers{}, Client: client, Log: quietLogger()})
	require.ErrorIs(t, b.Run(context.Background()), apiclient.ErrNoAccessToken)
	assert.Zero(t, client.inits)
}

func TestRun_UserFetchFailureKeepsSession(t *testing.T) {
	st := store.New(quietLogger())
	b := New(Deps{
		Store:  st,
		Auth:   fakeRefresher{sess: services.Session{AccessToken: "tok"}},
		Users:  fakeUsers{err: errors.New("down")},
		Client: &fakeClient{},
		Log:    quietLogger(),
	})

	require.Error(t, b.Run(context.Background()))
	assert.True(t, isClosed(b.Ready()))
	assert.True(t, store.IsAuthenticated(st.State()))
	assert.False(t, store.IsUserLoading(st.State()))
}

func TestRun_OnlyOnce(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshes.Add(1)
			_, _ = w.Write([]byte(`{"data":{"accessToken":"tok-live"}}`))
		case "/users/me":
			assert.Equal(t, "Bearer tok-live", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"data":{"id":"u-9"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := apiclient.DefaultConfig()
	cfg.BaseURL = srv.URL
	api, err := apiclient.New(cfg, apiclient.WithLogger(quietLogger()))
	require.NoError(t, err)

	st := store.New(quietLogger())
	b := New(Deps{
		Store:  st,
		Auth:   services.NewAuthService(api, services.DefaultPaths()),
		Users:  services.NewUserService(api, services.DefaultPaths()),
		Client: api,
		Log:    quietLogger(),
	})

	require.NoError(t, b.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "Bearer tok-live", api.AuthorizationHeader())
	assert.Equal(t, "u-9", store.CurrentUser(st.State()).ID)
}
