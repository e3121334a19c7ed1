package translation

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

type recordingModel struct {
	input []*schema.Message
	reply string
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = input
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.reply, nil)}), nil
}

func TestArkTranslatorBuildsPrompt(t *testing.T) {
	chatModel := &recordingModel{reply: "  नमस्ते \n"}
	tr, err := NewArkTranslator(context.Background(), chatModel, language.NewRegistry(language.Seed()))
	require.NoError(t, err)

	out, err := tr.Translate(context.Background(), "Hello", "hi")
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", out)

	require.Len(t, chatModel.input, 2)
	assert.Equal(t, schema.System, chatModel.input[0].Role)
	assert.Contains(t, chatModel.input[0].Content, "Hindi (hi)")
	assert.Equal(t, "Hello", chatModel.input[1].Content)
}

func TestArkTranslatorEmptyReply(t *testing.T) {
	tr, err := NewArkTranslator(context.Background(), &recordingModel{reply: "   "}, nil)
	require.NoError(t, err)

	_, err = tr.Translate(context.Background(), "Hello", "ta")
	require.ErrorIs(t, err, ErrEmptyTranslation)
}

func TestNewArkTranslatorRequiresModel(t *testing.T) {
	_, err := NewArkTranslator(context.Background(), nil, nil)
	require.Error(t, err)
}
