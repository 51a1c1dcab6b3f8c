package guard

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExclude lists paths the guard never runs on. The leading entries are
// raw prefixes: "api*" skips /api/users and /apiary alike. Image files are
// skipped at any depth.
var DefaultExclude = []string{
	"_next/static*", "_next/static*/**",
	"_next/image*", "_next/image*/**",
	"favicon.ico*", "favicon.ico*/**",
	"api*", "api*/**",
	"images*", "images*/**",
	"uploads*", "uploads*/**",
	"**/*.{svg,png,jpg,jpeg,gif,webp}",
}

// Matcher decides which request paths the guard applies to.
type Matcher struct {
	exclude []string
}

// NewMatcher validates patterns and returns a Matcher. Nil means DefaultExclude.
func NewMatcher(exclude []string) (*Matcher, error) {
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &Matcher{exclude: append([]string(nil), exclude...)}, nil
}

// Matches reports whether path is guarded.
func (m *Matcher) Matches(path string) bool {
	rel := strings.TrimPrefix(path, "/")
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

// PatternError reports an invalid exclude pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "guard: invalid exclude pattern " + `"` + e.Pattern + `"`
}
