package speech

// TTSRequest asks the synthesizer to voice a piece of text.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // provider speaker id, empty for the configured default
	Speed     float32 `json:"speed"`    // 0.5-2.0
	Volume    float32 `json:"volume"`   // 0.0-1.0
	Format    string  `json:"format"`   // mp3, pcm, ogg_opus
	Language  string  `json:"language"` // BCP 47 locale, e.g. hi-IN
}
