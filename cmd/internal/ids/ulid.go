// Package ids provides ULID primitives used to tag outgoing requests and socket envelopes.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a new ULID string (26 chars) stamped with now.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewString is New for call sites that cannot surface an error, such as headers.
// It returns an empty string when the entropy source fails.
func NewString() string {
	id, err := New(time.Now().UTC())
	if err != nil {
		return ""
	}
	return id
}
