package i18n

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

const (
	// DefaultNamespace is used when a key is looked up without a namespace.
	DefaultNamespace = "common"
	// FallbackLanguage serves keys missing from the active language.
	FallbackLanguage = "vi"
	// PreferenceKey stores the chosen language in the preferences file and cookie.
	PreferenceKey = "i18nConfig"
)

// Namespaces lists the catalog namespaces loaded at init.
var Namespaces = []string{"auth", "common"}

// Language is one selectable UI language.
type Language struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Languages are the supported languages in display order.
var Languages = []Language{
	{Value: "vi", Label: "Tiếng Việt", Icon: "/images/flags/ic-flag-vi.svg"},
	{Value: "en", Label: "English", Icon: "/images/flags/ic-flag-en.svg"},
}

var (
	supportedTags = []language.Tag{language.Vietnamese, language.English}
	matcher       = language.NewMatcher(supportedTags)
)

// IsSupported reports whether lng is one of Languages.
func IsSupported(lng string) bool {
	return slices.ContainsFunc(Languages, func(l Language) bool { return l.Value == lng })
}

// Normalize maps a BCP 47 tag such as "en-US" onto a supported language value.
func Normalize(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if !IsSupported(base.String()) {
		return "", false
	}
	return base.String(), true
}

// matchAcceptLanguage picks the best supported language for an Accept-Language header.
func matchAcceptLanguage(header string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return supportedTags[idx].String(), true
}

func tagFor(lng string) language.Tag {
	tag, err := language.Parse(lng)
	if err != nil {
		return language.Vietnamese
	}
	return tag
}
