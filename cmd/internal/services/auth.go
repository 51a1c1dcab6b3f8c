package services

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingCredentials is returned by Login before any request is sent.
var ErrMissingCredentials = errors.New("services: username or email and password are required")

// LoginRequest mirrors the Arc login body.
type LoginRequest struct {
	Username   *string `json:"username,omitempty"`
	Email      *string `json:"email,omitempty"`
	Password   string  `json:"password"`
	RememberMe bool    `json:"remember_me"`
	Platform   string  `json:"platform,omitempty"`
}

// Session is the token payload of login and refresh.
type Session struct {
	AccessToken string `json:"accessToken"`
}

// AuthService calls the auth endpoints.
type AuthService struct {
	api   API
	paths Paths
}

// NewAuthService constructs an AuthService.
func NewAuthService(api API, paths Paths) *AuthService {
	return &AuthService{api: api, paths: paths.withDefaults()}
}

// Login posts credentials; the server answers with an access token and sets the refresh cookie.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (Session, error) {
	hasID := (req.Username != nil && strings.TrimSpace(*req.Username) != "") ||
		(req.Email != nil && strings.TrimSpace(*req.Email) != "")
	if !hasID || req.Password == "" {
		return Session{}, ErrMissingCredentials
	}
	if req.Platform == "" {
		req.Platform = "web"
	}

	var out envelope[Session]
	if err := s.api.Post(ctx, s.paths.Login, req, &out); err != nil {
		return Session{}, err
	}
	return out.Data, nil
}

// Refresh exchanges the refresh cookie for a new access token.
func (s *AuthService) Refresh(ctx context.Context) (Session, error) {
	var out envelope[Session]
	if err := s.api.Post(ctx, s.paths.Refresh, nil, &out); err != nil {
		return Session{}, err
	}
	return out.Data, nil
}
