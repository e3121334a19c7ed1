package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	chatsvc "github.com/zhouzirui/agent-desk/backend/internal/service/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/service/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/translation"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrCategoryRequired = errors.New("category is required")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownLanguage  = errors.New("unknown language")
	ErrEmptyInput       = errors.New("message text is empty")
	ErrBusy             = errors.New("a message is already being sent")
	ErrMessageNotFound  = errors.New("message not found")
	ErrSessionClosed    = errors.New("session closed")
)

// Session is one browser tab's conversation: its category, display language,
// message list and speech playback.
type Session struct {
	ID        string
	CreatedAt time.Time

	categories  category.Store
	languages   *language.Registry
	chat        *chatsvc.Controller
	translation *translation.Controller
	speech      *speech.Controller
	audio       *speech.AudioHub
	log         *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	sending atomic.Bool

	// wgMu orders wg.Add against Close's wg.Wait.
	wgMu    sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	mu       sync.RWMutex
	category category.Key

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

func newSession(id string, deps Dependencies, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		categories: deps.Categories,
		languages:  deps.Languages,
		audio:      speech.NewAudioHub(log),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[chan struct{}]struct{}),
	}

	s.chat = chatsvc.NewController(deps.Agent, deps.Categories, log)
	s.translation = translation.NewController(deps.Translator, s.chat, deps.TranslationConcurrency, log)

	var engine speech.Engine
	if deps.Synthesizer != nil {
		opts := deps.Playback
		opts.SessionID = id
		engine = speech.NewPlaybackEngine(deps.Synthesizer, s.audio, opts, log)
	}
	s.speech = speech.NewController(engine, deps.Languages, log)

	s.chat.OnChange(func() {
		s.translation.Refresh()
		s.broadcast()
	})
	s.translation.OnUpdate(s.broadcast)
	s.speech.OnChange(s.broadcast)
	return s
}

// Category returns the selected category, or "" when none is selected.
func (s *Session) Category() category.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// SelectCategory switches the conversation topic. Switching to a different
// category starts an empty conversation.
func (s *Session) SelectCategory(key category.Key) error {
	key = category.Key(strings.TrimSpace(string(key)))
	if key == "" {
		return ErrCategoryRequired
	}
	if _, ok := s.categories.Find(key); !ok {
		return ErrUnknownCategory
	}

	s.mu.Lock()
	changed := s.category != key
	s.category = key
	s.mu.Unlock()

	if changed {
		s.speech.Cleanup()
		s.chat.Clear()
	}
	return nil
}

// SetLanguage changes the display and speech language.
func (s *Session) SetLanguage(code string) error {
	code = language.Normalize(code)
	if _, ok := s.languages.Find(code); !ok {
		return ErrUnknownLanguage
	}
	s.speech.SetLanguage(code)
	s.translation.SetLanguage(code)
	s.broadcast()
	return nil
}

// Language returns the display language code.
func (s *Session) Language() string {
	return s.translation.Language()
}

func (s *Session) prepareSend(text string) (category.Key, error) {
	if s.ctx.Err() != nil {
		return "", ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	key := s.Category()
	if key == "" {
		return "", ErrCategoryRequired
	}
	if !s.sending.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	return key, nil
}

// Send posts text to the agent and waits for the reply to land in the list.
// Only one send runs at a time; a second one gets ErrBusy.
func (s *Session) Send(ctx context.Context, text string) error {
	key, err := s.prepareSend(text)
	if err != nil {
		return err
	}
	defer s.sending.Store(false)

	ctx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()
	if !s.chat.Send(ctx, key, text) {
		return ErrUnknownCategory
	}
	return nil
}

// SendAsync starts Send in the background; the outcome shows up in the view.
func (s *Session) SendAsync(text string) error {
	key, err := s.prepareSend(text)
	if err != nil {
		return err
	}

	s.wgMu.Lock()
	if s.stopped {
		s.wgMu.Unlock()
		s.sending.Store(false)
		return ErrSessionClosed
	}
	s.wg.Add(1)
	s.wgMu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.sending.Store(false)
		s.chat.Send(s.ctx, key, text)
	}()
	return nil
}

// PlayMessage reads a message aloud in the current display language.
func (s *Session) PlayMessage(id string) error {
	msg, ok := s.chat.Find(id)
	if !ok {
		return ErrMessageNotFound
	}
	s.speech.Play(msg.ID, s.translation.DisplayText(msg))
	return nil
}

// SpeechEnabled reports whether read-aloud is available for this session.
func (s *Session) SpeechEnabled() bool {
	return s.speech.Supported()
}

// PauseSpeech pauses the utterance being played.
func (s *Session) PauseSpeech() {
	s.speech.Pause()
}

// Audio returns the hub that audio listeners attach to.
func (s *Session) Audio() *speech.AudioHub {
	return s.audio
}

// View returns a display snapshot of the session.
func (s *Session) View() chat.View {
	msgs := s.chat.Messages()
	items := make([]chat.ViewMessage, len(msgs))
	for i, msg := range msgs {
		items[i] = chat.ViewMessage{Message: msg, DisplayText: s.translation.DisplayText(msg)}
	}

	return chat.View{
		ID:             s.ID,
		Category:       string(s.Category()),
		Language:       s.translation.Language(),
		IsSending:      s.chat.IsSending(),
		IsTranslating:  s.translation.Translating(),
		ActiveSpeechID: s.speech.ActiveID(),
		SpeechPaused:   s.speech.Paused(),
		SpeechEnabled:  s.speech.Supported(),
		Messages:       items,
		CreatedAt:      s.CreatedAt,
	}
}

// Reset returns the session to category selection: no category, English,
// no messages and no speech.
func (s *Session) Reset() {
	s.mu.Lock()
	s.category = ""
	s.mu.Unlock()

	s.speech.Cleanup()
	s.speech.SetLanguage(language.Default)
	s.chat.Clear()
	s.translation.SetLanguage(language.Default)
	s.broadcast()
}

// Subscribe returns a channel that receives a signal after state changes.
// Signals coalesce; the channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subsMu.Unlock()
	}
}

func (s *Session) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops all background work and disconnects subscribers.
func (s *Session) Close() {
	s.wgMu.Lock()
	s.stopped = true
	s.wgMu.Unlock()

	s.cancel()
	s.speech.Cleanup()
	s.translation.Close()
	s.wg.Wait()
	s.audio.CloseAll()

	s.subsMu.Lock()
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

// mergeCancel derives a context from parent that is also cancelled with other.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
