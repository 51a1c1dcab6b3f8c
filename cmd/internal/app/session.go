package app

import (
	"context"
	"net/http"

	"arcweb/cmd/internal/apiclient"
	"arcweb/cmd/internal/bootstrap"
	"arcweb/cmd/internal/i18n"
	"arcweb/cmd/internal/realtime"
	"arcweb/cmd/internal/services"
	"arcweb/cmd/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Session is the client session runtime: it restores authentication, keeps the
// store current and holds the realtime socket while a token is present.
type Session struct {
	cfg Config
	log Logger
	reg *prometheus.Registry

	store  *store.Store
	api    *apiclient.Client
	auth   *services.AuthService
	users  *services.UserService
	boot   *bootstrap.Bootstrapper
	socket *realtime.Provider
	tr     *i18n.Translator

	navigate func(path string)
	creds    *services.LoginRequest
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithNavigator replaces the default navigator, which only logs.
func WithNavigator(fn func(path string)) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.navigate = fn
		}
	}
}

// WithCredentials signs in with req when the startup refresh leaves the session signed out.
func WithCredentials(req services.LoginRequest) SessionOption {
	return func(s *Session) {
		s.creds = &req
	}
}

// NewSession wires the store, API client, services, bootstrapper, socket provider and translator.
func NewSession(cfg Config, log Logger, opts ...SessionOption) (*Session, error) {
	if log == nil {
		log = NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
	}

	s := &Session{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	s.navigate = func(path string) { s.log.Info("session.navigate", "path", path) }
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.store = store.New(log.With("component", "store"))

	api, err := apiclient.New(cfg.API,
		apiclient.WithLogger(log.With("component", "apiclient")),
		apiclient.WithMetrics(apiclient.NewMetrics(s.reg)),
	)
	if err != nil {
		return nil, err
	}
	s.api = api
	s.auth = services.NewAuthService(api, cfg.Paths)
	s.users = services.NewUserService(api, cfg.Paths)

	s.boot = bootstrap.New(bootstrap.Deps{
		Store:     s.store,
		Auth:      s.auth,
		Users:     s.users,
		Client:    api,
		Navigator: bootstrap.NavigatorFunc(func(path string) { s.navigate(path) }),
		Log:       log.With("component", "bootstrap"),
	})

	rtLog := log.With("component", "realtime")
	socket, err := realtime.NewProvider(cfg.Realtime, s.store, rtLog, s.reg,
		realtime.WithMessageHandler(func(env realtime.Envelope) {
			rtLog.Debug("realtime.message", "type", env.Type, "id", env.ID, "conv_id", env.ConvID)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.socket = socket

	s.tr = i18n.New(cfg.I18n, log.With("component", "i18n"))
	return s, nil
}

// Store exposes the session store.
func (s *Session) Store() *store.Store { return s.store }

// Socket exposes the realtime provider.
func (s *Session) Socket() *realtime.Provider { return s.socket }

// Translator exposes the i18n translator.
func (s *Session) Translator() *i18n.Translator { return s.tr }

// Ready is closed once both the translator and the bootstrap have finished.
func (s *Session) Ready() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-s.tr.Ready()
		<-s.boot.Ready()
		close(ch)
	}()
	return ch
}

// Run blocks until ctx is done or a component fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.tr.Init(ctx)
	})

	g.Go(func() error {
		// Bootstrap failures leave the session signed out; they never stop the runtime.
		_ = s.boot.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return s.socket.Run(ctx)
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Ready():
		}
		if !store.IsAuthenticated(s.store.State()) && s.creds != nil {
			if err := s.Login(ctx, *s.creds); err != nil {
				s.log.Warn("session.login.fail", "err", err)
			}
		}
		st := s.store.State()
		if u := store.CurrentUser(st); u != nil {
			s.log.Info("session.ready", "user_id", u.ID, "greeting", s.tr.T("common", "greeting", displayName(u)))
		} else {
			s.log.Info("session.ready", "authenticated", store.IsAuthenticated(st), "notice", s.tr.T("auth", "session_expired"))
		}
		return nil
	})

	if addr := s.cfg.SessionMetricsAddr; addr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg}))
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout}
			return serve(ctx, srv, s.log, s.cfg.HTTP.ShutdownTimeout)
		})
	}

	return g.Wait()
}

// Login signs in with credentials and binds the resulting token like a refresh would.
func (s *Session) Login(ctx context.Context, req services.LoginRequest) error {
	sess, err := s.auth.Login(ctx, req)
	if err != nil {
		return err
	}
	if sess.AccessToken == "" {
		return apiclient.ErrNoAccessToken
	}
	s.store.Dispatch(store.SetAccessToken{Token: sess.AccessToken})
	s.api.Init(s.store, sess.AccessToken, s.boot.Logout)
	return store.FetchCurrentUser(ctx, s.store, s.users)
}

func displayName(u *store.User) string {
	switch {
	case u.DisplayName != nil && *u.DisplayName != "":
		return *u.DisplayName
	case u.Username != nil && *u.Username != "":
		return *u.Username
	default:
		return u.ID
	}
}
