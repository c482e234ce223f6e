// Package i18n provides the English and Russian string tables.
package i18n

import (
	"embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Fallback is used for unsupported locales and missing keys.
const Fallback = "en"

//go:embed locales/*.yaml
var files embed.FS

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// Bundle holds one table per locale.
type Bundle struct {
	tables map[string]map[string]string
}

// Load parses the embedded tables.
func Load() (*Bundle, error) {
	b := &Bundle{tables: make(map[string]map[string]string)}
	for _, tag := range supported {
		code := tag.String()
		raw, err := files.ReadFile("locales/" + code + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("read %s table: %w", code, err)
		}
		table := make(map[string]string)
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("parse %s table: %w", code, err)
		}
		b.tables[code] = table
	}
	return b, nil
}

// MustLoad is Load for package initialization.
func MustLoad() *Bundle {
	b, err := Load()
	if err != nil {
		panic(err)
	}
	return b
}

// Match maps a device or user locale code to a supported one.
func Match(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return Fallback
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Fallback
	}
	return supported[idx].String()
}

// Lookup returns the string for key in locale, falling back to English and
// then to the key itself.
func (b *Bundle) Lookup(locale, key string) string {
	if v, ok := b.tables[Match(locale)][key]; ok {
		return v
	}
	if v, ok := b.tables[Fallback][key]; ok {
		return v
	}
	return key
}

// Keys returns the keys of locale's table.
func (b *Bundle) Keys(locale string) []string {
	table := b.tables[Match(locale)]
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	return keys
}

// Translator resolves strings in the locale reported by its source at
// call time, so a locale switch applies to the next lookup.
type Translator struct {
	bundle *Bundle
	locale func() string
}

// NewTranslator binds bundle to a locale source.
func NewTranslator(bundle *Bundle, locale func() string) *Translator {
	return &Translator{bundle: bundle, locale: locale}
}

// Locale returns the active supported locale.
func (t *Translator) Locale() string {
	return Match(t.locale())
}

// T returns the string for key.
func (t *Translator) T(key string) string {
	return t.bundle.Lookup(t.locale(), key)
}

// Tf substitutes {{name}} placeholders in the string for key.
func (t *Translator) Tf(key string, vars map[string]string) string {
	s := t.T(key)
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
