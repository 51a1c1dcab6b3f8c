package i18n

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadEmbedded(t *testing.T) {
	b, err := LoadEmbedded()
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "vi"}, b.Languages())
	for _, lng := range b.Languages() {
		for _, ns := range Namespaces {
			assert.True(t, b.Has(lng, ns, mustKey(ns)), "%s/%s", lng, ns)
		}
	}
	assert.Equal(t, "Đăng nhập", b.Translate("vi", "auth", "login.title"))
	assert.Equal(t, "Sign in", b.Translate("en", "auth", "login.title"))
}

func mustKey(ns string) string {
	if ns == "auth" {
		return "logout"
	}
	return "app.name"
}

func TestTranslate_FallsBackToVietnamese(t *testing.T) {
	b, err := LoadFS(fstest.MapFS{
		"locales/vi/common.yaml": {Data: []byte("only_vi: chỉ tiếng Việt\nshared: chung\n")},
		"locales/en/common.yaml": {Data: []byte("shared: shared\n")},
	})
	require.NoError(t, err)

	assert.Equal(t, "shared", b.Translate("en", "common", "shared"))
	assert.Equal(t, "chỉ tiếng Việt", b.Translate("en", "common", "only_vi"))
	assert.Equal(t, "missing.key", b.Translate("en", "common", "missing.key"))
}

func TestTranslate_DefaultNamespaceAndRawInterpolation(t *testing.T) {
	b, err := LoadEmbedded()
	require.NoError(t, err)

	assert.Equal(t, "Hello, <b>Navid</b>!", b.Translate("en", "", "greeting", "<b>Navid</b>"))
}

func TestLoadFS_Errors(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{})
	require.ErrorIs(t, err, ErrNoCatalogs)

	_, err = LoadFS(fstest.MapFS{
		"locales/en/common.yaml": {Data: []byte("a: b\n")},
	})
	require.Error(t, err, "fallback language must exist")

	_, err = LoadFS(fstest.MapFS{
		"locales/vi/common.yaml": {Data: []byte("a: b\n")},
		"locales/fr/common.yaml": {Data: []byte("a: b\n")},
	})
	require.Error(t, err)
}

func TestTranslator_DefaultsToVietnamese(t *testing.T) {
	tr := New(Config{}, quietLogger())
	assert.Equal(t, "login.title", tr.T("auth", "login.title"), "untranslated before init")

	require.NoError(t, tr.Init(context.Background()))
	assert.Equal(t, "vi", tr.Language())
	assert.Equal(t, "Đăng nhập", tr.T("auth", "login.title"))
}

func TestTranslator_ReadsAndPersistsPreference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"i18nConfig":"en"}`), 0o600))

	tr := New(Config{PreferencesFile: path}, quietLogger())
	require.NoError(t, tr.Init(context.Background()))
	assert.Equal(t, "en", tr.Language())

	require.NoError(t, tr.ChangeLanguage("vi-VN"))
	assert.Equal(t, "vi", tr.Language())
	require.ErrorIs(t, tr.ChangeLanguage("fr"), ErrUnsupportedLanguage)

	again := New(Config{PreferencesFile: path}, quietLogger())
	require.NoError(t, again.Init(context.Background()))
	assert.Equal(t, "vi", again.Language())
}

func TestTranslator_UnsupportedPreferenceFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"i18nConfig":"de"}`), 0o600))

	tr := New(Config{PreferencesFile: path}, quietLogger())
	require.NoError(t, tr.Init(context.Background()))
	assert.Equal(t, "vi", tr.Language())
}

func TestTranslator_InitializedSignals(t *testing.T) {
	tr := New(Config{}, quietLogger())

	calls := 0
	tr.OnInitialized(func() { calls++ })
	assert.False(t, tr.IsInitialized())

	select {
	case <-tr.Ready():
		t.Fatal("ready before init")
	default:
	}

	require.NoError(t, tr.Init(context.Background()))
	require.NoError(t, tr.Init(context.Background()))
	<-tr.Ready()
	assert.True(t, tr.IsInitialized())
	assert.Equal(t, 1, calls)

	tr.OnInitialized(func() { calls++ })
	assert.Equal(t, 2, calls)
}

func TestTranslator_InitFailureKeepsWaiting(t *testing.T) {
	tr := New(Config{}, quietLogger())
	err := tr.init(context.Background(), func() (*Bundle, error) { return nil, ErrNoCatalogs })
	require.ErrorIs(t, err, ErrNoCatalogs)
	assert.False(t, tr.IsInitialized())
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		cookie  string
		accept  string
		want    string
		persist bool
	}{
		{name: "query wins", target: "/?lang=en", cookie: "vi", accept: "vi", want: "en", persist: true},
		{name: "cookie", target: "/", cookie: "en", accept: "vi", want: "en"},
		{name: "accept language", target: "/", accept: "fr-FR, en-US;q=0.8", want: "en"},
		{name: "bad query ignored", target: "/?lang=zz", cookie: "en", want: "en"},
		{name: "nothing", target: "/", want: "vi"},
		{name: "unsupported accept", target: "/", accept: "de", want: "vi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: PreferenceKey, Value: tc.cookie})
			}
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			lng, persist := Resolve(req)
			assert.Equal(t, tc.want, lng)
			assert.Equal(t, tc.persist, persist)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?lang=en", nil))

	assert.Equal(t, "en", seen)
	assert.Equal(t, "en", rr.Header().Get("Content-Language"))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, PreferenceKey, cookies[0].Name)
	assert.Equal(t, "en", cookies[0].Value)
}
