package translation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

const arkSystemPrompt = `You are a professional translator. Translate the user's message into {language}.
Keep names, numbers and formatting intact. Reply with the translation only, without quotes or commentary.`

// ArkTranslator translates through an Ark-hosted chat model.
type ArkTranslator struct {
	chain     compose.Runnable[map[string]any, *schema.Message]
	languages *language.Registry
}

// NewArkTranslator compiles the translation chain on top of chatModel.
func NewArkTranslator(ctx context.Context, chatModel model.BaseChatModel, languages *language.Registry) (*ArkTranslator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(arkSystemPrompt),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile translation chain: %w", err)
	}

	return &ArkTranslator{chain: runnable, languages: languages}, nil
}

// Translate implements Translator.
func (a *ArkTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	msg, err := a.chain.Invoke(ctx, map[string]any{
		"language": a.describe(target),
		"text":     text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run translation chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyTranslation
	}
	return strings.TrimSpace(msg.Content), nil
}

func (a *ArkTranslator) describe(code string) string {
	if a.languages != nil {
		if item, ok := a.languages.Find(code); ok {
			return fmt.Sprintf("%s (%s)", item.Label, item.Code)
		}
	}
	return code
}
