package translation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/metrics"
	"github.com/zhouzirui/agent-desk/backend/internal/model/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

const defaultConcurrency = 4

// Source is the message list the controller reads from and merges into.
type Source interface {
	Messages() []chat.Message
	MergeTranslations(lang string, updates map[string]string) bool
}

// Controller keeps the per-message translation cache in step with the
// selected display language.
type Controller struct {
	translator  Translator
	source      Source
	log         *zap.Logger
	concurrency int

	lang atomic.Value // string

	mu          sync.Mutex
	translating bool
	generation  uint64
	cancel      context.CancelFunc
	closed      bool
	listeners   []func()
	wg          sync.WaitGroup
}

// NewController creates a translation controller over source.
// concurrency bounds the calls made per batch; <= 0 selects a default.
func NewController(translator Translator, source Source, concurrency int, log *zap.Logger) *Controller {
	if translator == nil {
		translator = Passthrough{}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	c := &Controller{
		translator:  translator,
		source:      source,
		log:         logger.OrNop(log).Named("translation"),
		concurrency: concurrency,
	}
	c.lang.Store(language.Default)
	return c
}

// OnUpdate registers fn to run when the translating flag or the cache changes.
func (c *Controller) OnUpdate(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Language returns the current display language.
func (c *Controller) Language() string {
	return c.lang.Load().(string)
}

// SetLanguage switches the display language and translates what is missing.
func (c *Controller) SetLanguage(code string) {
	c.mu.Lock()
	c.lang.Store(code)
	changed := c.refreshLocked()
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Refresh reconciles the cache with the current message list. Any batch
// still running is superseded and its results are dropped.
func (c *Controller) Refresh() {
	c.mu.Lock()
	changed := c.refreshLocked()
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Translating reports whether a batch is outstanding.
func (c *Controller) Translating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.translating
}

// DisplayText returns the text to show for msg in the current language.
func (c *Controller) DisplayText(msg chat.Message) string {
	lang := c.Language()
	if lang == language.Default {
		return msg.Text
	}
	if text, ok := msg.Translations[lang]; ok {
		return text
	}
	return msg.Text
}

// Wait blocks until no batch goroutine is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels the running batch and waits for it to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.supersedeLocked()
	c.translating = false
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) refreshLocked() bool {
	wasTranslating := c.translating
	c.supersedeLocked()
	c.translating = false

	lang := c.Language()
	if c.closed || lang == language.Default {
		return wasTranslating
	}

	pending := untranslated(c.source.Messages(), lang)
	if len(pending) == 0 {
		return wasTranslating
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.translating = true
	generation := c.generation

	c.wg.Add(1)
	go c.run(ctx, cancel, generation, lang, pending)

	return !wasTranslating
}

func (c *Controller) supersedeLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		metrics.TranslationBatchesDiscardedTotal.Inc()
	}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, generation uint64, lang string, pending []chat.Message) {
	defer c.wg.Done()
	defer cancel()

	var (
		updatesMu sync.Mutex
		updates   = make(map[string]string, len(pending))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, msg := range pending {
		g.Go(func() error {
			text := c.translate(gctx, msg.Text, lang)
			updatesMu.Lock()
			updates[msg.ID] = text
			updatesMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.log.Debug("discarding superseded translation batch", zap.String("language", lang))
		return
	}
	c.translating = false
	c.cancel = nil
	c.source.MergeTranslations(lang, updates)
	c.mu.Unlock()

	c.notify()
}

// translate never fails: errors degrade to the original text.
func (c *Controller) translate(ctx context.Context, text, lang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	translated, err := c.translator.Translate(ctx, text, lang)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("translation failed, showing original text",
				zap.String("language", lang),
				zap.Error(err),
			)
			metrics.TranslationsTotal.WithLabelValues(lang, "error").Inc()
		}
		return text
	}

	metrics.TranslationsTotal.WithLabelValues(lang, "ok").Inc()
	return translated
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func untranslated(messages []chat.Message, lang string) []chat.Message {
	var out []chat.Message
	for _, msg := range messages {
		if msg.Pending {
			continue
		}
		if _, ok := msg.Translations[lang]; ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}
