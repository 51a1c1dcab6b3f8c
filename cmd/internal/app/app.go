// Package app wires the arcweb runtimes: the edge server in front of the UI
// and the session runtime that keeps the client session alive.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"arcweb/cmd/internal/guard"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the edge server: route guard, language resolution and the UI proxy.
type App struct {
	cfg Config
	log Logger
	reg *prometheus.Registry

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
	}

	upstream, err := parseUpstream(cfg.UIUpstream)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcweb",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Edge requests by method and status class.",
	}, []string{"method", "class"})
	reg.MustRegister(requests)

	g, err := guard.New(cfg.Guard, nil, log, reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, reg, upstream, g, newUIProxy(upstream, log))

	return &App{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		handler: WithRequestLogging(WithSecurityHeaders(mux), log, requests),
	}, nil
}

// Handler returns the root handler; tests serve it with httptest.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		IdleTimeout:       a.cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    a.cfg.HTTP.MaxHeaderBytes,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTP.Addr, "url", runtimeBaseURL(a.cfg.HTTP.Addr), "upstream", a.cfg.UIUpstream)
	return serve(ctx, srv, a.log, a.cfg.HTTP.ShutdownTimeout)
}

func serve(ctx context.Context, srv *http.Server, log Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server.stop", "addr", srv.Addr, "reason", "context_done")
	case err := <-errCh:
		log.Error("server.fail", "addr", srv.Addr, "err", err)
		return err
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server.shutdown.fail", "addr", srv.Addr, "err", err)
		return err
	}

	log.Info("server.stopped", "addr", srv.Addr)
	return nil
}
