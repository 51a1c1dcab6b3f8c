// Package apiclient wraps an HTTP transport for the Arc API.
//
// Any request that fails with 401 triggers at most one concurrent refresh
// (POST /auth/refresh, refresh token carried by cookie). Requests that hit 401
// while a refresh is in flight are queued. When it settles they are released
// in FIFO order, each then replaying on its own goroutine with the new bearer
// credential, or they are rejected with the refresh error.
// A failed refresh clears the session through the logout callback.
//
// The refreshing flag and the queue belong to one Client; there is no package
// level state.
package apiclient
