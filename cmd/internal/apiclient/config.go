package apiclient

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config controls the API base URL, endpoints and transport limits.
type Config struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	RefreshPath string        `env:"REFRESH_PATH" envDefault:"/auth/refresh"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// The Arc server requires a double-submit CSRF header when the refresh
	// token arrives by cookie.
	CSRFCookieName string `env:"CSRF_COOKIE_NAME" envDefault:"arc_csrf_token"`
	CSRFHeaderName string `env:"CSRF_HEADER_NAME" envDefault:"X-CSRF-Token"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8080",
		RefreshPath:    "/auth/refresh",
		Timeout:        30 * time.Second,
		CSRFCookieName: "arc_csrf_token",
		CSRFHeaderName: "X-CSRF-Token",
	}
}

func (c Config) normalized() (Config, *url.URL, error) {
	def := DefaultConfig()
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = def.BaseURL
	}
	if strings.TrimSpace(c.RefreshPath) == "" {
		c.RefreshPath = def.RefreshPath
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}

	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"))
	if err != nil {
		return Config{}, nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Config{}, nil, errors.New("apiclient: base url must be http or https")
	}
	if u.Host == "" {
		return Config{}, nil, errors.New("apiclient: base url missing host")
	}
	return c, u, nil
}
