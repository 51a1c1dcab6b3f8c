// Package i18n loads the UI message catalogs and resolves the active language.
//
// A Translator is usable only after Init; dependants wait on Ready or register
// with OnInitialized.
package i18n

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrNoCatalogs          = errors.New("i18n: no catalog files found")
	ErrUnsupportedLanguage = errors.New("i18n: unsupported language")
)

// Config locates the preferences file holding the chosen language.
type Config struct {
	PreferencesFile string `env:"PREFERENCES_FILE"`
}

// Translator owns the loaded bundle and the process language.
type Translator struct {
	prefs *Preferences
	log   *slog.Logger

	mu        sync.Mutex
	bundle    *Bundle
	lng       string
	ready     chan struct{}
	callbacks []func()
}

// New returns an uninitialized Translator.
func New(cfg Config, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	return &Translator{
		prefs: NewPreferences(cfg.PreferencesFile),
		log:   log,
		lng:   FallbackLanguage,
		ready: make(chan struct{}),
	}
}

// Init loads the embedded catalogs and the stored language. Calling it again
// after success is a no-op.
func (t *Translator) Init(ctx context.Context) error {
	return t.init(ctx, LoadEmbedded)
}

func (t *Translator) init(ctx context.Context, load func() (*Bundle, error)) error {
	if t.IsInitialized() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bundle, err := load()
	if err != nil {
		return err
	}

	lng := FallbackLanguage
	stored, ok, err := t.prefs.Get(PreferenceKey)
	switch {
	case err != nil:
		t.log.Warn("i18n.preferences.read_fail", "err", err)
	case ok:
		if v, supported := Normalize(stored); supported {
			lng = v
		} else {
			t.log.Warn("i18n.preferences.unsupported", "lng", stored)
		}
	}

	t.mu.Lock()
	if t.bundle != nil {
		t.mu.Unlock()
		return nil
	}
	t.bundle = bundle
	t.lng = lng
	callbacks := t.callbacks
	t.callbacks = nil
	close(t.ready)
	t.mu.Unlock()

	t.log.Info("i18n.initialized", "lng", lng, "languages", bundle.Languages())
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// IsInitialized reports whether Init has completed.
func (t *Translator) IsInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bundle != nil
}

// OnInitialized runs fn once the Translator is initialized, immediately if it already is.
func (t *Translator) OnInitialized(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.bundle == nil {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// Ready is closed when Init completes.
func (t *Translator) Ready() <-chan struct{} {
	return t.ready
}

// Language returns the process language.
func (t *Translator) Language() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lng
}

// ChangeLanguage switches the process language and persists it.
func (t *Translator) ChangeLanguage(lng string) error {
	v, ok := Normalize(lng)
	if !ok {
		return ErrUnsupportedLanguage
	}
	if err := t.prefs.Set(PreferenceKey, v); err != nil {
		return err
	}
	t.mu.Lock()
	t.lng = v
	t.mu.Unlock()
	return nil
}

// T translates ns:key in the process language.
func (t *Translator) T(ns, key string, args ...any) string {
	return t.TIn(t.Language(), ns, key, args...)
}

// TIn translates ns:key in lng. Before Init it returns key.
func (t *Translator) TIn(lng, ns, key string, args ...any) string {
	t.mu.Lock()
	b := t.bundle
	t.mu.Unlock()
	if b == nil {
		return key
	}
	return b.Translate(lng, ns, key, args...)
}
