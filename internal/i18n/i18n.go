// ABOUTME: Message catalogs and language resolution for user-facing strings
// ABOUTME: Embedded TOML catalogs with BCP-47 matching and silent fallback

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// DefaultLanguage is used whenever a user's language code is unknown,
// unsupported or missing. Falling back is never an error.
const DefaultLanguage = "en"

// Catalog holds every loaded language and resolves codes to localizers.
type Catalog struct {
	messages map[string]map[string]string // language -> key -> text
	matcher  language.Matcher
	tags     []language.Tag
	codes    []string
	logger   *slog.Logger
}

// Load parses the embedded locale files and builds the catalog.
// The default language must be present.
func Load() (*Catalog, error) {
	c := &Catalog{
		messages: make(map[string]map[string]string),
		logger:   slog.Default().With("component", "i18n"),
	}

	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("reading locales: %w", err)
	}

	for _, entry := range entries {
		code := strings.TrimSuffix(entry.Name(), ".toml")

		data, err := fs.ReadFile(localeFS, "locales/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading locale %s: %w", code, err)
		}

		var msgs map[string]string
		if err := toml.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("parsing locale %s: %w", code, err)
		}

		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parsing locale tag %s: %w", code, err)
		}

		c.messages[code] = msgs
		c.tags = append(c.tags, tag)
		c.codes = append(c.codes, code)
	}

	if _, ok := c.messages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q missing from locales", DefaultLanguage)
	}

	// The matcher prefers earlier tags on ties; put the default first
	sort.SliceStable(c.tags, func(i, j int) bool {
		return c.tags[i].String() == DefaultLanguage && c.tags[j].String() != DefaultLanguage
	})
	sort.Strings(c.codes)
	c.matcher = language.NewMatcher(c.tags)

	c.logger.Info("loaded locales", "languages", c.codes)
	return c, nil
}

// Languages returns the supported language codes, sorted.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

// Supported reports whether a code resolves to a loaded catalog exactly.
func (c *Catalog) Supported(code string) bool {
	_, ok := c.messages[code]
	return ok
}

// For resolves a user's language code to a Localizer. Unknown or empty codes
// fall back to the closest supported language, then to the default.
func (c *Catalog) For(code string) *Localizer {
	if msgs, ok := c.messages[code]; ok {
		return &Localizer{code: code, msgs: msgs, fallback: c.messages[DefaultLanguage]}
	}

	if code != "" {
		if tag, err := language.Parse(code); err == nil {
			_, idx, conf := c.matcher.Match(tag)
			if conf >= language.High {
				matched := c.tags[idx].String()
				if msgs, ok := c.messages[matched]; ok {
					return &Localizer{code: matched, msgs: msgs, fallback: c.messages[DefaultLanguage]}
				}
			}
		}
	}

	return &Localizer{code: DefaultLanguage, msgs: c.messages[DefaultLanguage], fallback: c.messages[DefaultLanguage]}
}

// Localizer resolves message keys for one language.
type Localizer struct {
	code     string
	msgs     map[string]string
	fallback map[string]string
}

// Code returns the resolved language code.
func (l *Localizer) Code() string {
	return l.code
}

// T returns the message for a key, falling back to the default language and
// finally to the key itself so a missing entry is visible, not fatal.
func (l *Localizer) T(key string) string {
	if msg, ok := l.msgs[key]; ok {
		return msg
	}
	if msg, ok := l.fallback[key]; ok {
		return msg
	}
	return key
}

// Tf returns the message for a key with fmt.Sprintf interpolation.
func (l *Localizer) Tf(key string, args ...any) string {
	return fmt.Sprintf(l.T(key), args...)
}
