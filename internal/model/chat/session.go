package chat

import "time"

// View is the read model of a session handed to HTTP clients.
type View struct {
	ID             string        `json:"id"`
	Category       string        `json:"category,omitempty"`
	Language       string        `json:"language"`
	IsSending      bool          `json:"isSending"`
	IsTranslating  bool          `json:"isTranslating"`
	ActiveSpeechID string        `json:"activeSpeechId,omitempty"`
	SpeechPaused   bool          `json:"speechPaused"`
	SpeechEnabled  bool          `json:"speechEnabled"`
	Messages       []ViewMessage `json:"messages"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ViewMessage pairs a message with the text to display in the session language.
type ViewMessage struct {
	Message
	DisplayText string `json:"displayText"`
}
