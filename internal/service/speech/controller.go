package speech

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

// Controller tracks which message is being read aloud and drives the engine.
// A nil engine means speech is unsupported and every operation is a no-op.
type Controller struct {
	engine    Engine
	languages *language.Registry
	log       *zap.Logger

	// opMu serializes engine operations; mu guards the fields below and is
	// the only lock taken by engine callbacks.
	opMu sync.Mutex

	mu        sync.Mutex
	lang      string
	activeID  string
	token     uint64
	listeners []func()
}

// NewController 创建语音控制器
func NewController(engine Engine, languages *language.Registry, log *zap.Logger) *Controller {
	if languages == nil {
		languages = language.NewRegistry(language.Seed())
	}
	return &Controller{
		engine:    engine,
		languages: languages,
		log:       logger.OrNop(log).Named("speech"),
		lang:      language.Default,
	}
}

// OnChange registers fn to run when the active message or pause state changes.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Supported reports whether an engine is available.
func (c *Controller) Supported() bool {
	return c.engine != nil
}

// SetLanguage sets the language whose voice locale new utterances use.
func (c *Controller) SetLanguage(code string) {
	c.mu.Lock()
	c.lang = code
	c.mu.Unlock()
}

// ActiveID returns the id of the message being spoken, or "".
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Paused reports whether playback is paused.
func (c *Controller) Paused() bool {
	if c.engine == nil {
		return false
	}
	return c.engine.Paused()
}

// Play speaks text for messageID. Playing the active message while paused
// resumes it in place; anything else cancels the current utterance first.
func (c *Controller) Play(messageID, text string) {
	if c.engine == nil {
		return
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if messageID != "" && messageID == c.ActiveID() && c.engine.Paused() {
		c.engine.Resume()
		c.notify()
		return
	}

	if c.engine.Speaking() {
		c.engine.Cancel()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	c.token++
	token := c.token
	c.activeID = messageID
	locale := c.languages.VoiceLocale(c.lang)
	c.mu.Unlock()

	c.engine.Speak(Utterance{
		Text:   text,
		Locale: locale,
		OnEnd:  func() { c.finish(token) },
		OnError: func(err error) {
			if !errors.Is(err, ErrInterrupted) {
				c.log.Warn("speech failed", zap.String("message", messageID), zap.Error(err))
			}
			c.finish(token)
		},
	})
	c.notify()
}

// Pause pauses playback if something is speaking and not already paused.
func (c *Controller) Pause() {
	if c.engine == nil {
		return
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.engine.Speaking() && !c.engine.Paused() {
		c.engine.Pause()
		c.notify()
	}
}

// Cleanup cancels any speech activity.
func (c *Controller) Cleanup() {
	if c.engine == nil {
		return
	}
	c.opMu.Lock()
	c.engine.Cancel()
	c.mu.Lock()
	c.token++
	changed := c.activeID != ""
	c.activeID = ""
	c.mu.Unlock()
	c.opMu.Unlock()

	if changed {
		c.notify()
	}
}

// finish clears the active marker, unless a newer utterance has taken over.
func (c *Controller) finish(token uint64) {
	c.mu.Lock()
	changed := token == c.token && c.activeID != ""
	if changed {
		c.activeID = ""
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
