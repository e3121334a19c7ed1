package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoiceTableSpeaker(t *testing.T) {
	table := VoiceTable{
		"en-US": "en_female_amy_jupiter_bigtts",
		"hi-IN": "hi_voice",
	}

	tests := []struct {
		name   string
		locale string
		want   string
	}{
		{name: "exact", locale: "hi-IN", want: "hi_voice"},
		{name: "case insensitive", locale: "EN-us", want: "en_female_amy_jupiter_bigtts"},
		{name: "same base language", locale: "en-GB", want: "en_female_amy_jupiter_bigtts"},
		{name: "unmapped", locale: "ta-IN", want: "fallback"},
		{name: "empty", locale: "", want: "fallback"},
		{name: "unparseable", locale: "??", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Speaker(tt.locale, "fallback"))
		})
	}
}

func TestVoiceTableMerge(t *testing.T) {
	base := DefaultVoices()
	merged := base.Merge(map[string]string{"ta-IN": " ta_voice ", "": "ignored", "bn-IN": " "})

	assert.Equal(t, "ta_voice", merged["ta-IN"])
	assert.NotContains(t, merged, "bn-IN")
	assert.NotContains(t, base, "ta-IN")
	assert.Equal(t, base["en-US"], merged["en-US"])
}
