package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/metrics"
	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
)

const (
	DefaultChunkBytes    = 4096
	DefaultChunkInterval = 40 * time.Millisecond
)

// ErrInterrupted is reported to an utterance that was cancelled before it finished.
var ErrInterrupted = errors.New("utterance interrupted")

// Utterance is one piece of text to be spoken.
type Utterance struct {
	Text    string
	Locale  string
	OnEnd   func()
	OnError func(error)
}

// Engine is a speech output device with at most one active utterance.
type Engine interface {
	Speak(u Utterance)
	Pause()
	Resume()
	Cancel()
	Speaking() bool
	Paused() bool
}

// AudioSink receives the audio of each utterance as a stream of chunks.
type AudioSink interface {
	StartStream(format string) error
	WriteAudio(chunk []byte) error
	EndStream(err error)
}

// PlaybackOptions 播放参数
type PlaybackOptions struct {
	SessionID     string
	Format        string
	ChunkBytes    int
	ChunkInterval time.Duration
}

// PlaybackEngine synthesizes each utterance and pushes the audio to a sink at
// a steady pace, so pause and cancel take effect mid-utterance.
type PlaybackEngine struct {
	synth Synthesizer
	sink  AudioSink
	opts  PlaybackOptions
	log   *zap.Logger

	mu      sync.Mutex
	current *playback
}

type playback struct {
	cancel context.CancelFunc
	paused bool
	resume chan struct{}
	done   chan struct{}
}

// NewPlaybackEngine 创建播放引擎
func NewPlaybackEngine(synth Synthesizer, sink AudioSink, opts PlaybackOptions, log *zap.Logger) *PlaybackEngine {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}
	// 负值表示不限速
	switch {
	case opts.ChunkInterval == 0:
		opts.ChunkInterval = DefaultChunkInterval
	case opts.ChunkInterval < 0:
		opts.ChunkInterval = 0
	}
	return &PlaybackEngine{
		synth: synth,
		sink:  sink,
		opts:  opts,
		log:   logger.OrNop(log).Named("playback"),
	}
}

// Speak starts u, cancelling anything still playing.
func (e *PlaybackEngine) Speak(u Utterance) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &playback{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.current
	e.current = p
	e.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	metrics.ActivePlaybacks.Inc()
	go e.run(ctx, p, u)
}

func (e *PlaybackEngine) run(ctx context.Context, p *playback, u Utterance) {
	err := e.play(ctx, p, u)
	if err != nil && ctx.Err() != nil {
		err = ErrInterrupted
	}

	e.mu.Lock()
	if e.current == p {
		e.current = nil
	}
	e.mu.Unlock()
	p.cancel()
	metrics.ActivePlaybacks.Dec()
	close(p.done)

	switch {
	case err == nil:
		if u.OnEnd != nil {
			u.OnEnd()
		}
	case u.OnError != nil:
		u.OnError(err)
	}
}

func (e *PlaybackEngine) play(ctx context.Context, p *playback, u Utterance) error {
	resp, err := e.synth.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: e.opts.SessionID,
		Text:      u.Text,
		Format:    e.opts.Format,
		Language:  u.Locale,
	})
	if err != nil {
		if ctx.Err() == nil {
			metrics.SynthesisTotal.WithLabelValues("error").Inc()
			e.log.Warn("synthesis failed", zap.String("locale", u.Locale), zap.Error(err))
		}
		return err
	}
	metrics.SynthesisTotal.WithLabelValues("ok").Inc()

	if e.sink == nil {
		return nil
	}
	if err := e.sink.StartStream(resp.Format); err != nil {
		return err
	}

	audio := resp.AudioData
	var streamErr error
	for off := 0; off < len(audio) && streamErr == nil; off += e.opts.ChunkBytes {
		if streamErr = e.waitResumed(ctx, p); streamErr != nil {
			break
		}
		end := min(off+e.opts.ChunkBytes, len(audio))
		if streamErr = e.sink.WriteAudio(audio[off:end]); streamErr != nil {
			break
		}
		streamErr = sleep(ctx, e.opts.ChunkInterval)
	}
	if streamErr != nil && ctx.Err() != nil {
		streamErr = ErrInterrupted
	}
	e.sink.EndStream(streamErr)
	return streamErr
}

func (e *PlaybackEngine) waitResumed(ctx context.Context, p *playback) error {
	e.mu.Lock()
	paused, resume := p.paused, p.resume
	e.mu.Unlock()
	if !paused {
		return ctx.Err()
	}
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause 暂停当前播放；合成阶段暂停会在第一块音频前生效。
func (e *PlaybackEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.current; p != nil && !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

// Resume 恢复播放
func (e *PlaybackEngine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.current; p != nil && p.paused {
		p.paused = false
		close(p.resume)
	}
}

// Cancel stops the current utterance and waits for its goroutine to exit.
// The utterance's OnError callback receives ErrInterrupted.
func (e *PlaybackEngine) Cancel() {
	e.mu.Lock()
	p := e.current
	e.current = nil
	e.mu.Unlock()
	if p != nil {
		p.cancel()
		<-p.done
	}
}

// Speaking reports whether an utterance is in progress, paused or not.
func (e *PlaybackEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Paused reports whether the current utterance is paused.
func (e *PlaybackEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.paused
}
