// Package services exposes the Arc API endpoints the shell calls.
package services

import (
	"context"
	"strings"
)

// API is the transport the services need; *apiclient.Client satisfies it.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Paths holds endpoint paths relative to the API base URL.
type Paths struct {
	Login   string `env:"LOGIN_PATH" envDefault:"/auth/login"`
	Refresh string `env:"REFRESH_PATH" envDefault:"/auth/refresh"`
	Me      string `env:"ME_PATH" envDefault:"/users/me"`
}

// DefaultPaths returns the reference endpoints.
func DefaultPaths() Paths {
	return Paths{
		Login:   "/auth/login",
		Refresh: "/auth/refresh",
		Me:      "/users/me",
	}
}

func (p Paths) withDefaults() Paths {
	def := DefaultPaths()
	if strings.TrimSpace(p.Login) == "" {
		p.Login = def.Login
	}
	if strings.TrimSpace(p.Refresh) == "" {
		p.Refresh = def.Refresh
	}
	if strings.TrimSpace(p.Me) == "" {
		p.Me = def.Me
	}
	return p
}

// envelope is the {"data": ...} wrapper every endpoint answers with.
type envelope[T any] struct {
	Data T `json:"data"`
}
