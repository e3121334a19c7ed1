package category

// Key identifies a chat topic.
type Key string

// Category captures a chat topic exposed to the frontend.
type Category struct {
	Key          Key    `json:"key" toml:"key"`
	Title        string `json:"title" toml:"title"`
	Description  string `json:"description" toml:"description"`
	WebhookLabel string `json:"-" toml:"webhook_label"`
}

// Label returns the category name the agent webhook expects.
func (c Category) Label() string {
	if c.WebhookLabel != "" {
		return c.WebhookLabel
	}
	return string(c.Key)
}

// Seed provides the default topics.
func Seed() []Category {
	return []Category{
		{
			Key:          "share-market",
			Title:        "Share Market",
			Description:  "Get insights, market trends, and portfolio guidance tailored to you.",
			WebhookLabel: "share-market",
		},
		{
			Key:          "astrology",
			Title:        "Astrology",
			Description:  "Explore celestial guidance, horoscope readings, and personalized astrological advice.",
			WebhookLabel: "Astrology",
		},
		{
			Key:          "wellness",
			Title:        "Wellness",
			Description:  "Receive tips on mindfulness, nutrition, fitness, and holistic wellbeing.",
			WebhookLabel: "wellness",
		},
	}
}
