package services

import (
	"context"

	"arcweb/cmd/internal/store"
)

// UserService calls the user endpoints.
type UserService struct {
	api   API
	paths Paths
}

// NewUserService constructs a UserService.
func NewUserService(api API, paths Paths) *UserService {
	return &UserService{api: api, paths: paths.withDefaults()}
}

// GetMyInfo returns the signed-in user's profile.
func (s *UserService) GetMyInfo(ctx context.Context) (store.User, error) {
	var out envelope[store.User]
	if err := s.api.Get(ctx, s.paths.Me, &out); err != nil {
		return store.User{}, err
	}
	return out.Data, nil
}
