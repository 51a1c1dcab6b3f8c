package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*/*.yaml
var embeddedLocales embed.FS

// Bundle holds loaded messages by language and namespace.
type Bundle struct {
	messages map[string]map[string]map[string]string
	builder  *catalog.Builder
}

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFS(embeddedLocales)
}

// LoadFS loads every locales/<lng>/<ns>.yaml file in fsys. Nested keys are
// flattened with dots.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, ErrNoCatalogs
	}
	sort.Strings(paths)

	b := &Bundle{messages: map[string]map[string]map[string]string{}}
	for _, p := range paths {
		lng := path.Base(path.Dir(p))
		ns := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if !IsSupported(lng) {
			return nil, fmt.Errorf("catalog %s: unsupported language %q", p, lng)
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}

		flat := map[string]string{}
		if err := flatten("", raw, flat); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
		if b.messages[lng] == nil {
			b.messages[lng] = map[string]map[string]string{}
		}
		b.messages[lng][ns] = flat
	}

	if _, ok := b.messages[FallbackLanguage]; !ok {
		return nil, fmt.Errorf("fallback language %s has no catalogs", FallbackLanguage)
	}
	if err := b.register(); err != nil {
		return nil, err
	}
	return b, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) error {
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			return fmt.Errorf("blank message key under %q", prefix)
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case nil:
			return fmt.Errorf("key %q has no value", key)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}

// register copies every message into an x/text catalog keyed by "ns:key".
func (b *Bundle) register() error {
	b.builder = catalog.NewBuilder(catalog.Fallback(tagFor(FallbackLanguage)))
	for lng, namespaces := range b.messages {
		tag := tagFor(lng)
		for ns, msgs := range namespaces {
			for key, msg := range msgs {
				if err := b.builder.SetString(tag, qualify(ns, key), msg); err != nil {
					return fmt.Errorf("register %s %s:%s: %w", lng, ns, key, err)
				}
			}
		}
	}
	return nil
}

// Has reports whether lng defines ns:key.
func (b *Bundle) Has(lng, ns, key string) bool {
	_, ok := b.messages[lng][ns][key]
	return ok
}

// Languages returns the languages with at least one catalog, sorted.
func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.messages))
	for lng := range b.messages {
		out = append(out, lng)
	}
	sort.Strings(out)
	return out
}

// Printer returns an x/text printer for lng backed by this bundle.
func (b *Bundle) Printer(lng string) *message.Printer {
	return message.NewPrinter(tagFor(lng), message.Catalog(b.builder))
}

// Translate renders ns:key in lng, then in the fallback language. A key
// missing everywhere renders as itself. Arguments are substituted as is.
func (b *Bundle) Translate(lng, ns, key string, args ...any) string {
	if ns == "" {
		ns = DefaultNamespace
	}
	target := lng
	if !b.Has(target, ns, key) {
		target = FallbackLanguage
		if !b.Has(target, ns, key) {
			return key
		}
	}
	return b.Printer(target).Sprintf(qualify(ns, key), args...)
}

func qualify(ns, key string) string {
	return ns + ":" + key
}
