package store

import "context"

// UserFetcher loads the signed-in user's profile.
type UserFetcher interface {
	GetMyInfo(ctx context.Context) (User, error)
}

// FetchCurrentUser loads the profile into the user slice. On failure only the
// loading flag is cleared; the previous user is kept and the error returned.
func FetchCurrentUser(ctx context.Context, s *Store, users UserFetcher) error {
	s.Dispatch(FetchCurrentUserPending{})

	u, err := users.GetMyInfo(ctx)
	if err != nil {
		s.Dispatch(FetchCurrentUserRejected{Err: err})
		s.log.Info("store.fetch_current_user.fail", "err", err)
		return err
	}

	s.Dispatch(FetchCurrentUserFulfilled{User: u})
	return nil
}
