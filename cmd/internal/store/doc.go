// Package store is the client-side state container.
//
// State is split into an auth slice (access token, authenticated flag) and a
// user slice (current profile, loading flag). Both change only through
// dispatched actions reduced by pure functions; subscribers see each new
// snapshot after the reduction.
package store
