package store

import "strings"

// AuthState is the session slice.
type AuthState struct {
	AccessToken     string
	IsAuthenticated bool
}

// SetAccessToken stores a token and marks the session authenticated.
type SetAccessToken struct {
	Token string
}

// ClearToken drops the token and the authenticated flag.
type ClearToken struct{}

func (SetAccessToken) Type() string { return "auth/setAccessToken" }
func (ClearToken) Type() string     { return "auth/clearToken" }

func reduceAuth(s AuthState, a Action) AuthState {
	switch a := a.(type) {
	case SetAccessToken:
		return AuthState{AccessToken: strings.TrimSpace(a.Token), IsAuthenticated: true}
	case ClearToken:
		return AuthState{}
	default:
		return s
	}
}

// IsAuthenticated selects the authenticated flag.
func IsAuthenticated(s State) bool { return s.Auth.IsAuthenticated }

// AccessToken selects the current access token ("" when none).
func AccessToken(s State) string { return s.Auth.AccessToken }
