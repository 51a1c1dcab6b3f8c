package app

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"arcweb/cmd/internal/apiclient"
	"arcweb/cmd/internal/guard"
	"arcweb/cmd/internal/i18n"
	"arcweb/cmd/internal/realtime"
	"arcweb/cmd/internal/services"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable the runtime reads.
const EnvPrefix = "ARCWEB_"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTP HTTPConfig `envPrefix:"HTTP_"`
	Log  LogConfig  `envPrefix:"LOG_"`

	API      apiclient.Config `envPrefix:"API_"`
	Paths    services.Paths   `envPrefix:"API_"`
	Guard    guard.Config
	Realtime realtime.Config `envPrefix:"WS_"`
	I18n     i18n.Config

	// UIUpstream is the origin the edge server proxies page requests to.
	UIUpstream string `env:"UI_UPSTREAM" envDefault:"http://localhost:3000"`

	// SessionMetricsAddr, when set, serves /metrics from the session runtime.
	SessionMetricsAddr string `env:"SESSION_METRICS_ADDR"`
}

type HTTPConfig struct {
	Addr              string        `env:"ADDR" envDefault:"0.0.0.0:3001"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// LoadConfig loads Config from ARCWEB_* environment variables with defaults.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	// The socket server shares the API origin unless configured otherwise.
	if strings.TrimSpace(cfg.Realtime.URL) == "" {
		cfg.Realtime.URL = wsBaseURL(cfg.API.BaseURL) + "/ws"
	}
	return cfg, nil
}

// wsBaseURL maps an http(s) origin onto its ws(s) counterpart.
func wsBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can open.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return (&url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}).String()
}
