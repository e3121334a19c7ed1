package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	// Default is the language agent replies arrive in; it never needs translation.
	Default = "en"
	// DefaultVoice is used when a language has no voice locale of its own.
	DefaultVoice = "en-US"
)

// Language describes a display language and the speech locale that reads it.
type Language struct {
	Code  string `json:"code" toml:"code"`
	Label string `json:"label" toml:"label"`
	Voice string `json:"voice" toml:"voice"`
}

// Seed provides the default display languages.
func Seed() []Language {
	return []Language{
		{Code: "en", Label: "English", Voice: "en-US"},
		{Code: "hi", Label: "Hindi", Voice: "hi-IN"},
		{Code: "mr", Label: "Marathi", Voice: "mr-IN"},
		{Code: "bn", Label: "Bengali", Voice: "bn-IN"},
		{Code: "ta", Label: "Tamil", Voice: "ta-IN"},
		{Code: "te", Label: "Telugu", Voice: "te-IN"},
	}
}

// Normalize canonicalizes a language code ("HI " -> "hi", "en_us" -> "en-US").
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return strings.ToLower(code)
	}
	return tag.String()
}

// Validate checks that the code and voice locale are well-formed BCP 47 tags.
func (l Language) Validate() error {
	if _, err := language.Parse(l.Code); err != nil {
		return fmt.Errorf("invalid language code %q: %w", l.Code, err)
	}
	if l.Voice != "" {
		if _, err := language.Parse(l.Voice); err != nil {
			return fmt.Errorf("invalid voice locale %q for %s: %w", l.Voice, l.Code, err)
		}
	}
	return nil
}

// Registry resolves language codes to their definitions.
type Registry struct {
	items []Language
	index map[string]Language
}

// NewRegistry builds a registry from the supplied languages.
func NewRegistry(items []Language) *Registry {
	r := &Registry{
		items: append([]Language(nil), items...),
		index: make(map[string]Language, len(items)),
	}
	for _, item := range items {
		r.index[Normalize(item.Code)] = item
	}
	return r
}

// List returns the languages in display order.
func (r *Registry) List() []Language {
	return append([]Language(nil), r.items...)
}

// Find looks up a language by code.
func (r *Registry) Find(code string) (Language, bool) {
	item, ok := r.index[Normalize(code)]
	return item, ok
}

// VoiceLocale maps a language code to its speech locale, falling back to DefaultVoice.
func (r *Registry) VoiceLocale(code string) string {
	if item, ok := r.Find(code); ok && item.Voice != "" {
		return item.Voice
	}
	return DefaultVoice
}
