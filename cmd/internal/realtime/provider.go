// Package realtime keeps an authenticated socket open while the session store
// holds an access token.
//
// The Provider redials whenever the token changes and disconnects when it is
// cleared. Dependants obtain the live session with Conn.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"arcweb/cmd/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNoSocket is returned by Conn when no session is connected.
	ErrNoSocket    = errors.New("realtime: no socket connected")
	ErrSubprotocol = errors.New("realtime: server did not negotiate " + Subprotocol)
)

// ServerError is an error frame received during the handshake.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("realtime: server error %s: %s", e.Code, e.Message)
}

// Config controls the socket endpoint and connection timing.
type Config struct {
	URL              string        `env:"URL"`
	Origin           string        `env:"ORIGIN" envDefault:"http://localhost"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	PingInterval     time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	ReconnectMin     time.Duration `env:"RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax     time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`
}

func (c Config) validate() (Config, error) {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return c, fmt.Errorf("realtime: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return c, fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return c, errors.New("realtime: url missing host")
	}
	c.URL = u.String()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = c.ReconnectMin
	}
	return c, nil
}

// TokenSource is the part of the session store the provider watches.
type TokenSource interface {
	State() store.State
	Subscribe(fn func(store.State)) (unsubscribe func())
}

// Provider owns at most one Session at a time.
type Provider struct {
	cfg Config
	src TokenSource
	log *slog.Logger

	handler func(Envelope)

	connected prometheus.Gauge
	dials     *prometheus.CounterVec
	dropped   prometheus.Counter

	mu   sync.Mutex
	sess *Session
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithMessageHandler drains every session's inbound envelopes into fn on a
// dedicated goroutine. Without a handler, dependants read Session.Messages.
func WithMessageHandler(fn func(Envelope)) ProviderOption {
	return func(p *Provider) {
		p.handler = fn
	}
}

// NewProvider validates cfg. reg may be nil to skip metrics.
func NewProvider(cfg Config, src TokenSource, log *slog.Logger, reg prometheus.Registerer, opts ...ProviderOption) (*Provider, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Provider{cfg: cfg, src: src, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if reg != nil {
		p.connected = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcweb",
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "1 while a realtime session is open.",
		})
		p.dials = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "realtime",
			Name:      "dials_total",
			Help:      "Realtime dial attempts by result.",
		}, []string{"result"})
		p.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "realtime",
			Name:      "dropped_messages_total",
			Help:      "Inbound frames discarded on a full session buffer.",
		})
		for _, c := range []prometheus.Collector{p.connected, p.dials, p.dropped} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Conn returns the live session or ErrNoSocket.
func (p *Provider) Conn() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil, ErrNoSocket
	}
	return p.sess, nil
}

// Run follows the access token until ctx is done, then closes any session.
func (p *Provider) Run(ctx context.Context) error {
	updates := make(chan string, 1)
	push := func(tok string) {
		for {
			select {
			case updates <- tok:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	unsubscribe := p.src.Subscribe(func(st store.State) { push(store.AccessToken(st)) })
	defer unsubscribe()
	push(store.AccessToken(p.src.State()))

	var (
		current string
		attempt int
		retry   <-chan time.Time
		dropped <-chan struct{}
	)
	connect := func() {
		retry, dropped = nil, nil
		sess, err := dial(ctx, p.cfg, current, p.log, p.observeDrop)
		if err != nil {
			p.observeDial("failure")
			delay := p.backoff(attempt)
			attempt++
			p.log.Warn("realtime.dial.fail", "err", err, "attempt", attempt, "retry_in", delay)
			retry = time.After(delay)
			return
		}
		attempt = 0
		p.observeDial("success")
		p.setSession(sess)
		if p.handler != nil {
			go p.drain(sess)
		}
		dropped = sess.Done()
		p.log.Info("realtime.connected", "session_id", sess.ID())
	}

	for {
		select {
		case <-ctx.Done():
			p.disconnect("shutdown")
			return nil

		case tok := <-updates:
			if tok == current {
				continue
			}
			current, attempt, retry, dropped = tok, 0, nil, nil
			p.disconnect("token changed")
			if current != "" {
				connect()
			}

		case <-retry:
			connect()

		case <-dropped:
			sess, _ := p.Conn()
			var err error
			if sess != nil {
				err = sess.Err()
			}
			p.clearSession()
			delay := p.backoff(attempt)
			attempt++
			p.log.Warn("realtime.dropped", "err", err, "retry_in", delay)
			dropped, retry = nil, time.After(delay)
		}
	}
}

func (p *Provider) backoff(attempt int) time.Duration {
	d := p.cfg.ReconnectMin
	for range attempt {
		d *= 2
		if d >= p.cfg.ReconnectMax {
			return p.cfg.ReconnectMax
		}
	}
	return d
}

func (p *Provider) setSession(s *Session) {
	if p.connected != nil {
		p.connected.Set(1)
	}
	p.mu.Lock()
	p.sess = s
	p.mu.Unlock()
}

func (p *Provider) clearSession() *Session {
	p.mu.Lock()
	s := p.sess
	p.sess = nil
	p.mu.Unlock()
	if p.connected != nil {
		p.connected.Set(0)
	}
	return s
}

func (p *Provider) disconnect(reason string) {
	if s := p.clearSession(); s != nil {
		s.Close(reason)
		p.log.Info("realtime.disconnected", "session_id", s.ID(), "reason", reason)
	}
}

func (p *Provider) drain(s *Session) {
	for env := range s.Messages() {
		p.handler(env)
	}
}

func (p *Provider) observeDrop(Envelope) {
	if p.dropped != nil {
		p.dropped.Inc()
	}
}

func (p *Provider) observeDial(result string) {
	if p.dials != nil {
		p.dials.WithLabelValues(result).Inc()
	}
}
