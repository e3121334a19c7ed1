package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-desk/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
)

type stubAgent struct {
	mu       sync.Mutex
	block    chan struct{}
	labels   []string
	response string
}

func (a *stubAgent) Ask(ctx context.Context, category, text string) (string, error) {
	a.mu.Lock()
	a.labels = append(a.labels, category)
	block := a.block
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if a.response != "" {
		return a.response, nil
	}
	return "echo: " + text, nil
}

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, target string) (string, error) {
	return "[" + target + "] " + strings.ToUpper(text), nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return &speechmodel.TTSResponse{AudioData: []byte(req.Text), Format: "mp3"}, nil
}

func newManager(agent *stubAgent) *Manager {
	return NewManager(Dependencies{
		Agent:      agent,
		Translator: upperTranslator{},
	})
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal")
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := newManager(&stubAgent{})

	_, err := m.Create("tarot")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	s, err := m.Create("astrology")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(s.ID), ErrSessionNotFound)

	_, err = m.Create("")
	require.NoError(t, err)
	m.Close()
	assert.Zero(t, m.Len())
}

func TestSendValidation(t *testing.T) {
	m := newManager(&stubAgent{})
	s, err := m.Create("")
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Send(context.Background(), "hello"), ErrCategoryRequired)

	require.NoError(t, s.SelectCategory("wellness"))
	assert.ErrorIs(t, s.Send(context.Background(), "   "), ErrEmptyInput)
	assert.Empty(t, s.View().Messages)
}

func TestSendUsesWebhookLabel(t *testing.T) {
	agent := &stubAgent{}
	m := newManager(agent)
	s, err := m.Create("astrology")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), " what is my sign? "))

	view := s.View()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, chat.RoleUser, view.Messages[0].Role)
	assert.Equal(t, "what is my sign?", view.Messages[0].Text)
	assert.Equal(t, "echo: what is my sign?", view.Messages[1].DisplayText)
	assert.False(t, view.IsSending)
	assert.Equal(t, []string{"Astrology"}, agent.labels)
}

func TestSecondSendIsBusy(t *testing.T) {
	agent := &stubAgent{block: make(chan struct{})}
	m := newManager(agent)
	s, err := m.Create("share-market")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SendAsync("first"))
	assert.ErrorIs(t, s.SendAsync("second"), ErrBusy)
	assert.ErrorIs(t, s.Send(context.Background(), "third"), ErrBusy)

	close(agent.block)
	s.wg.Wait()
	require.NoError(t, s.Send(context.Background(), "fourth"))
	assert.Len(t, s.View().Messages, 4)
}

func TestSetLanguageTranslatesReplies(t *testing.T) {
	m := newManager(&stubAgent{response: "good day"})
	s, err := m.Create("wellness")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.ErrorIs(t, s.SetLanguage("fr"), ErrUnknownLanguage)

	require.NoError(t, s.SetLanguage(" HI "))
	s.translation.Wait()

	view := s.View()
	assert.Equal(t, "hi", view.Language)
	assert.False(t, view.IsTranslating)
	assert.Equal(t, "[hi] GOOD DAY", view.Messages[1].DisplayText)
	assert.Equal(t, "good day", view.Messages[1].Text)
}

func TestSubscribeSignalsChanges(t *testing.T) {
	m := newManager(&stubAgent{})
	s, err := m.Create("astrology")
	require.NoError(t, err)

	ch, unsubscribe := s.Subscribe()
	require.NoError(t, s.SendAsync("hello"))
	waitSignal(t, ch)
	unsubscribe()
	unsubscribe()

	other, _ := s.Subscribe()
	s.Close()
	for range other {
	}

	late, _ := s.Subscribe()
	_, open := <-late
	assert.False(t, open)
	assert.ErrorIs(t, s.SendAsync("again"), ErrSessionClosed)
}

func TestSelectCategoryStartsFreshConversation(t *testing.T) {
	m := newManager(&stubAgent{})
	s, err := m.Create("astrology")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hello"))
	require.NoError(t, s.SelectCategory("astrology"))
	assert.Len(t, s.View().Messages, 2)

	require.NoError(t, s.SelectCategory("wellness"))
	assert.Empty(t, s.View().Messages)
	assert.Equal(t, "wellness", s.View().Category)

	assert.ErrorIs(t, s.SelectCategory(""), ErrCategoryRequired)
	assert.ErrorIs(t, s.SelectCategory("tarot"), ErrUnknownCategory)
}

func TestResetReturnsToInitialState(t *testing.T) {
	m := newManager(&stubAgent{})
	s, err := m.Create("astrology")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hello"))
	require.NoError(t, s.SetLanguage("bn"))
	s.Reset()
	s.translation.Wait()

	view := s.View()
	assert.Empty(t, view.Category)
	assert.Equal(t, "en", view.Language)
	assert.Empty(t, view.Messages)
	assert.Empty(t, view.ActiveSpeechID)
}

func TestPlayMessage(t *testing.T) {
	m := NewManager(Dependencies{
		Agent:       &stubAgent{response: "namaste"},
		Translator:  upperTranslator{},
		Synthesizer: stubSynth{},
	})
	s, err := m.Create("wellness")
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.View().SpeechEnabled)
	assert.ErrorIs(t, s.PlayMessage("missing"), ErrMessageNotFound)

	require.NoError(t, s.Send(context.Background(), "hi"))
	reply := s.View().Messages[1]

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	require.NoError(t, s.PlayMessage(reply.ID))

	deadline := time.After(2 * time.Second)
	for s.View().ActiveSpeechID != "" {
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("playback did not finish")
		}
	}
}

func TestSpeechDisabledWithoutSynthesizer(t *testing.T) {
	m := newManager(&stubAgent{})
	s, err := m.Create("wellness")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	view := s.View()
	assert.False(t, view.SpeechEnabled)

	require.NoError(t, s.PlayMessage(view.Messages[1].ID))
	assert.Empty(t, s.View().ActiveSpeechID)
}

func TestSendAsyncRacingClose(t *testing.T) {
	m := newManager(&stubAgent{})

	for i := 0; i < 20; i++ {
		s, err := m.Create("wellness")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			for {
				err := s.SendAsync("hi")
				if errors.Is(err, ErrSessionClosed) {
					done <- err
					return
				}
			}
		}()

		require.NoError(t, m.Delete(s.ID))

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrSessionClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("SendAsync kept accepting work after Close")
		}
		assert.False(t, s.View().IsSending)
	}
}
