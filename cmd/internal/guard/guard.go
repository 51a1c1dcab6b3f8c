// Package guard is the edge route guard.
//
// It reads the refresh token cookie and redirects unauthenticated visitors to
// the login page and authenticated visitors away from public-only pages.
// Decisions are stateless and made once per request.
package guard

import (
	"log/slog"
	"net/http"
	"strings"

	"arcweb/cmd/internal/routes"

	"github.com/prometheus/client_golang/prometheus"
)

// Config controls the cookie the guard inspects.
type Config struct {
	RefreshCookieName string `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`
}

// Decision is the outcome for one request.
type Decision string

const (
	Pass          Decision = "pass"
	RedirectHome  Decision = "redirect_home"
	RedirectLogin Decision = "redirect_login"
	Skipped       Decision = "skipped"
)

// Guard is the route guard middleware.
type Guard struct {
	cookie  string
	matcher *Matcher
	log     *slog.Logger

	decisions *prometheus.CounterVec
}

// New constructs a Guard. reg may be nil to skip metrics.
func New(cfg Config, matcher *Matcher, log *slog.Logger, reg prometheus.Registerer) (*Guard, error) {
	if log == nil {
		log = slog.Default()
	}
	if matcher == nil {
		m, err := NewMatcher(nil)
		if err != nil {
			return nil, err
		}
		matcher = m
	}
	cookie := strings.TrimSpace(cfg.RefreshCookieName)
	if cookie == "" {
		cookie = "refresh_token"
	}

	g := &Guard{cookie: cookie, matcher: matcher, log: log}
	if reg != nil {
		g.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions.",
		}, []string{"decision"})
		if err := reg.Register(g.decisions); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Decide returns the decision for r without writing anything.
func (g *Guard) Decide(r *http.Request) Decision {
	path := r.URL.Path
	if !g.matcher.Matches(path) {
		return Skipped
	}

	hasSession := g.hasRefreshCookie(r)
	public := routes.IsPublic(path)

	switch {
	case hasSession && public:
		return RedirectHome
	case !hasSession && !public:
		return RedirectLogin
	default:
		return Pass
	}
}

// Middleware applies Decide in front of next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		if g.decisions != nil {
			g.decisions.WithLabelValues(string(d)).Inc()
		}
		g.log.Debug("guard.decision", "path", r.URL.Path, "decision", string(d))

		switch d {
		case RedirectHome:
			http.Redirect(w, r, routes.Home, http.StatusTemporaryRedirect)
		case RedirectLogin:
			http.Redirect(w, r, routes.Login, http.StatusTemporaryRedirect)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (g *Guard) hasRefreshCookie(r *http.Request) bool {
	c, err := r.Cookie(g.cookie)
	if err != nil {
		return false
	}
	return strings.TrimSpace(c.Value) != ""
}
