package store

// User is the profile returned by GET /users/me.
type User struct {
	ID          string  `json:"id"`
	Username    *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
}

// UserPatch is a partial User; nil fields are left unchanged.
type UserPatch struct {
	ID          *string
	Username    *string
	Email       *string
	DisplayName *string
	Bio         *string
}

// UserState is the profile slice.
type UserState struct {
	CurrentUser *User
	Loading     bool
}

// SetUserInfo merges Patch into the current user, creating it when absent.
type SetUserInfo struct {
	Patch UserPatch
}

// ClearUser drops the current user.
type ClearUser struct{}

// FetchCurrentUserPending, FetchCurrentUserFulfilled and FetchCurrentUserRejected
// are the lifecycle actions of FetchCurrentUser.
type (
	FetchCurrentUserPending   struct{}
	FetchCurrentUserFulfilled struct{ User User }
	FetchCurrentUserRejected  struct{ Err error }
)

func (SetUserInfo) Type() string               { return "user/setUserInfo" }
func (ClearUser) Type() string                 { return "user/clearUser" }
func (FetchCurrentUserPending) Type() string   { return "user/fetchCurrent/pending" }
func (FetchCurrentUserFulfilled) Type() string { return "user/fetchCurrent/fulfilled" }
func (FetchCurrentUserRejected) Type() string  { return "user/fetchCurrent/rejected" }

func reduceUser(s UserState, a Action) UserState {
	switch a := a.(type) {
	case SetUserInfo:
		var base User
		if s.CurrentUser != nil {
			base = *s.CurrentUser
		}
		merged := a.Patch.apply(base)
		s.CurrentUser = &merged
	case ClearUser:
		s.CurrentUser = nil
	case FetchCurrentUserPending:
		s.Loading = true
	case FetchCurrentUserFulfilled:
		u := a.User
		s.CurrentUser = &u
		s.Loading = false
	case FetchCurrentUserRejected:
		s.Loading = false
	}
	return s
}

func (p UserPatch) apply(u User) User {
	if p.ID != nil {
		u.ID = *p.ID
	}
	if p.Username != nil {
		u.Username = p.Username
	}
	if p.Email != nil {
		u.Email = p.Email
	}
	if p.DisplayName != nil {
		u.DisplayName = p.DisplayName
	}
	if p.Bio != nil {
		u.Bio = p.Bio
	}
	return u
}

// CurrentUser selects the current user (nil when none).
func CurrentUser(s State) *User { return s.User.CurrentUser }

// IsUserLoading selects the profile loading flag.
func IsUserLoading(s State) bool { return s.User.Loading }
