package i18n

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// LangParam selects a language for one request and persists it in the cookie.
const LangParam = "lang"

type ctxKey struct{}

// WithLanguage returns ctx carrying lng.
func WithLanguage(ctx context.Context, lng string) context.Context {
	return context.WithValue(ctx, ctxKey{}, lng)
}

// FromContext returns the request language, or the fallback language.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return FallbackLanguage
}

// Resolve picks the request language from ?lang, the preference cookie, then
// Accept-Language. persist is true when ?lang chose it.
func Resolve(r *http.Request) (lng string, persist bool) {
	if v, ok := Normalize(r.URL.Query().Get(LangParam)); ok {
		return v, true
	}
	if c, err := r.Cookie(PreferenceKey); err == nil {
		if v, ok := Normalize(c.Value); ok {
			return v, false
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if v, ok := matchAcceptLanguage(accept); ok {
			return v, false
		}
	}
	return FallbackLanguage, false
}

// Middleware stores the resolved language in the request context and sets
// Content-Language on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lng, persist := Resolve(r)
		if persist {
			http.SetCookie(w, &http.Cookie{
				Name:     PreferenceKey,
				Value:    lng,
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set("Content-Language", lng)
		next.ServeHTTP(w, r.WithContext(WithLanguage(r.Context(), lng)))
	})
}
