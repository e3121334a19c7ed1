package translation

import "context"

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Passthrough returns text unchanged. It stands in when no provider is configured.
type Passthrough struct{}

// Translate implements Translator.
func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
