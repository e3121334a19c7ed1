package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/service/agent"
)

const (
	errorPrefix   = "Sorry, I ran into an issue: "
	timeoutText   = "Request timed out. Please try again."
	cancelledText = "Request was cancelled."
)

// Agent answers a chat turn for a category label.
type Agent interface {
	Ask(ctx context.Context, category, text string) (string, error)
}

// Controller owns one conversation's message list and its agent round-trips.
type Controller struct {
	agent      Agent
	categories category.Store
	log        *zap.Logger
	newID      func() string

	mu        sync.Mutex
	messages  []chat.Message
	inflight  int
	cancels   map[uint64]context.CancelFunc
	nextReqID uint64
	epoch     uint64
	listeners []func()
}

// NewController creates a chat controller bound to an agent.
func NewController(agentSvc Agent, categories category.Store, log *zap.Logger) *Controller {
	return &Controller{
		agent:      agentSvc,
		categories: categories,
		log:        logger.OrNop(log).Named("chat"),
		newID:      uuid.NewString,
		cancels:    make(map[uint64]context.CancelFunc),
	}
}

// OnChange registers fn to run after every change to the message list.
// Listeners run outside the controller lock.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Send appends the user's message and a placeholder, then asks the agent and
// replaces the placeholder with its reply. It blocks until the reply (or error
// text) is in place and reports whether the input was accepted.
func (c *Controller) Send(ctx context.Context, key category.Key, rawInput string) bool {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" || key == "" {
		return false
	}

	selected, ok := c.categories.Find(key)
	if !ok {
		c.log.Warn("ignoring message for unknown category", zap.String("category", string(key)))
		return false
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	placeholderID := c.newID()

	c.mu.Lock()
	c.messages = append(c.messages,
		chat.Message{ID: c.newID(), Role: chat.RoleUser, Text: trimmed, Translations: map[string]string{}},
		chat.Message{ID: placeholderID, Role: chat.RoleAgent, Text: chat.PlaceholderText, Translations: map[string]string{}, Pending: true},
	)
	c.nextReqID++
	reqID := c.nextReqID
	c.cancels[reqID] = cancel
	c.inflight++
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	reply, err := c.agent.Ask(reqCtx, selected.Label(), trimmed)

	text := reply
	if err != nil {
		text = errorPrefix + describe(err)
		if !errors.Is(err, context.Canceled) {
			c.log.Error("failed to send message",
				zap.String("category", string(key)),
				zap.Error(err),
			)
		}
	}

	c.mu.Lock()
	delete(c.cancels, reqID)
	c.inflight--
	replaced := false
	if epoch == c.epoch {
		replaced = c.replaceLocked(placeholderID, text)
	}
	c.mu.Unlock()

	// 被 Clear 取消的请求不写回
	if replaced {
		c.notify()
	}
	return true
}

// Clear empties the message list and cancels any in-flight request.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.epoch++
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	c.notify()
}

// Messages returns a deep copy of the message list in send order.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]chat.Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Find returns a copy of the message with the given id.
func (c *Controller) Find(id string) (chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range c.messages {
		if msg.ID == id {
			return msg.Clone(), true
		}
	}
	return chat.Message{}, false
}

// IsSending reports whether an agent request is outstanding.
func (c *Controller) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight > 0
}

// MergeTranslations adds translations for lang to the messages named in updates.
// Existing entries are kept and unknown ids are ignored. Change listeners are
// not notified; the caller owns that notification.
func (c *Controller) MergeTranslations(lang string, updates map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for i := range c.messages {
		text, ok := updates[c.messages[i].ID]
		if !ok {
			continue
		}
		if _, exists := c.messages[i].Translations[lang]; exists {
			continue
		}
		if c.messages[i].Translations == nil {
			c.messages[i].Translations = make(map[string]string)
		}
		c.messages[i].Translations[lang] = text
		changed = true
	}
	return changed
}

func (c *Controller) replaceLocked(id, text string) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Text = text
			c.messages[i].Pending = false
			return true
		}
	}
	return false
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, agent.ErrTimeout):
		return timeoutText
	case errors.Is(err, context.Canceled):
		return cancelledText
	}
	return err.Error()
}
