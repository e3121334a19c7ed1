package chat

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PlaceholderText is shown while the agent reply is outstanding.
const PlaceholderText = "Thinking..."

// Message is one chat turn. Translations is keyed by language code.
type Message struct {
	ID           string            `json:"id"`
	Role         Role              `json:"role"`
	Text         string            `json:"text"`
	Translations map[string]string `json:"translations"`
	Pending      bool              `json:"pending,omitempty"`
}

// Clone returns a deep copy so callers can't mutate the owner's translation map.
func (m Message) Clone() Message {
	out := m
	out.Translations = make(map[string]string, len(m.Translations))
	for k, v := range m.Translations {
		out.Translations[k] = v
	}
	return out
}
