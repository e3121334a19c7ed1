package speech

import "time"

// SpeechConfig configures the Volcengine TTS backend and local playback pacing.
type SpeechConfig struct {
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	APIKey      string `json:"apiKey,omitempty"` // legacy alias of AccessToken
	Endpoint    string `json:"endpoint"`

	TTSVoice  string  `json:"ttsVoice"`
	TTSSpeed  float32 `json:"ttsSpeed"`
	TTSVolume float32 `json:"ttsVolume"`
	Format    string  `json:"format"`

	// Playback pacing: audio is pushed to listeners ChunkBytes at a time,
	// one chunk every ChunkInterval.
	ChunkBytes    int           `json:"chunkBytes"`
	ChunkInterval time.Duration `json:"chunkInterval"`

	Timeout time.Duration `json:"timeout"`
}
