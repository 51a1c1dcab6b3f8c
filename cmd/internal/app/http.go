package app

import (
	"net/http"
	"net/url"
	"time"

	"arcweb/cmd/internal/guard"
	"arcweb/cmd/internal/i18n"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	reg *prometheus.Registry,
	upstream *url.URL,
	g *guard.Guard,
	page http.Handler,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	probe := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pingUpstream(r.Context(), probe, upstream, 2*time.Second); err != nil {
			http.Error(w, "ui upstream not ready", http.StatusServiceUnavailable)
			log.Info("readyz.upstream.not_ready", "err", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.Handle("/", g.Middleware(i18n.Middleware(page)))
}
