package speech

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// VoiceTable maps BCP 47 voice locales to Volcengine speaker ids.
type VoiceTable map[string]string

// DefaultVoices 内置的语音映射，未覆盖的语言回退到配置的默认音色。
func DefaultVoices() VoiceTable {
	return VoiceTable{
		"en-US": "en_female_amy_jupiter_bigtts",
		"en-IN": "en_female_amy_jupiter_bigtts",
	}
}

// Merge returns a copy of t with overrides applied on top.
func (t VoiceTable) Merge(overrides map[string]string) VoiceTable {
	out := make(VoiceTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// Speaker picks the speaker for locale: an exact match first, then any entry
// sharing the base language, then fallback.
func (t VoiceTable) Speaker(locale, fallback string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return fallback
	}
	for k, v := range t {
		if strings.EqualFold(k, locale) {
			return v
		}
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fallback
	}
	want, _ := tag.Base()
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		other, err := language.Parse(k)
		if err != nil {
			continue
		}
		if base, _ := other.Base(); base == want {
			return t[k]
		}
	}
	return fallback
}
