// Package bootstrap restores the session at startup: it refreshes the access
// token, binds the API client and loads the current user.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"arcweb/cmd/internal/apiclient"
	"arcweb/cmd/internal/routes"
	"arcweb/cmd/internal/services"
	"arcweb/cmd/internal/store"
)

// Refresher exchanges the refresh cookie for an access token.
type Refresher interface {
	Refresh(ctx context.Context) (services.Session, error)
}

// ClientBinder is the part of the API client bound at startup.
type ClientBinder interface {
	Init(store apiclient.SessionStore, accessToken string, onLogout func())
}

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Deps are the collaborators of a Bootstrapper.
type Deps struct {
	Store     *store.Store
	Auth      Refresher
	Users     store.UserFetcher
	Client    ClientBinder
	Navigator Navigator
	Log       *slog.Logger
}

// Bootstrapper runs the startup sequence once and signals readiness.
type Bootstrapper struct {
	d Deps

	once  sync.Once
	ready chan struct{}
}

// New constructs a Bootstrapper.
func New(d Deps) *Bootstrapper {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Bootstrapper{d: d, ready: make(chan struct{})}
}

// Ready is closed after Run finishes, whether or not it succeeded.
func (b *Bootstrapper) Ready() <-chan struct{} {
	return b.ready
}

// Run performs the startup sequence. Failures are logged and returned but
// readiness is raised regardless; later calls do nothing.
func (b *Bootstrapper) Run(ctx context.Context) error {
	var err error
	ran := false
	b.once.Do(func() {
		ran = true
		defer close(b.ready)
		err = b.run(ctx)
	})
	if !ran {
		return nil
	}
	if err != nil {
		b.d.Log.Warn("bootstrap.fail", "err", err)
		return err
	}
	b.d.Log.Info("bootstrap.ok", "authenticated", store.IsAuthenticated(b.d.Store.State()))
	return nil
}

func (b *Bootstrapper) run(ctx context.Context) error {
	sess, err := b.d.Auth.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	token := strings.TrimSpace(sess.AccessToken)
	if token == "" {
		return fmt.Errorf("refresh: %w", apiclient.ErrNoAccessToken)
	}

	b.d.Store.Dispatch(store.SetAccessToken{Token: token})
	b.d.Client.Init(b.d.Store, token, b.Logout)

	if err := store.FetchCurrentUser(ctx, b.d.Store, b.d.Users); err != nil {
		return fmt.Errorf("fetch current user: %w", err)
	}
	return nil
}

// Logout clears the session and user and sends the user to the login page.
func (b *Bootstrapper) Logout() {
	b.d.Store.Dispatch(store.ClearToken{})
	b.d.Store.Dispatch(store.ClearUser{})
	b.d.Log.Info("bootstrap.logout")

	if b.d.Navigator != nil {
		b.d.Navigator.Navigate(routes.Login)
	}
}
