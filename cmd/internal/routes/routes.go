// Package routes holds the UI paths the shell redirects between.
package routes

import "slices"

const (
	Home   = "/"
	Login  = "/login"
	Signup = "/signup"
)

// Public lists paths that only unauthenticated visitors may open.
var Public = []string{Login, Signup}

// IsPublic reports whether path is one of the public-only paths.
func IsPublic(path string) bool {
	return slices.Contains(Public, path)
}
