package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
)

type fakeSynth struct {
	mu      sync.Mutex
	audio   []byte
	err     error
	block   chan struct{}
	locales []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.mu.Lock()
	f.locales = append(f.locales, req.Language)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: f.audio, Format: "mp3"}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	formats []string
	chunks  [][]byte
	ends    []error
	wrote   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{wrote: make(chan struct{}, 64)}
}

func (s *recordingSink) StartStream(format string) error {
	s.mu.Lock()
	s.formats = append(s.formats, format)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) WriteAudio(chunk []byte) error {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	s.mu.Unlock()
	s.wrote <- struct{}{}
	return nil
}

func (s *recordingSink) EndStream(err error) {
	s.mu.Lock()
	s.ends = append(s.ends, err)
	s.mu.Unlock()
}

func (s *recordingSink) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

type outcome struct {
	ended chan struct{}
	err   chan error
}

func newOutcome(text, locale string) (Utterance, *outcome) {
	o := &outcome{ended: make(chan struct{}, 1), err: make(chan error, 1)}
	return Utterance{
		Text:    text,
		Locale:  locale,
		OnEnd:   func() { o.ended <- struct{}{} },
		OnError: func(err error) { o.err <- err },
	}, o
}

func waitEnd(t *testing.T, o *outcome) {
	t.Helper()
	select {
	case <-o.ended:
	case err := <-o.err:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance did not finish")
	}
}

func waitErr(t *testing.T, o *outcome) error {
	t.Helper()
	select {
	case err := <-o.err:
		return err
	case <-o.ended:
		t.Fatal("utterance ended without error")
	case <-time.After(2 * time.Second):
		t.Fatal("utterance did not finish")
	}
	return nil
}

func TestPlaybackStreamsChunks(t *testing.T) {
	synth := &fakeSynth{audio: []byte("0123456789")}
	sink := newRecordingSink()
	engine := NewPlaybackEngine(synth, sink, PlaybackOptions{ChunkBytes: 4}, nil)

	u, o := newOutcome("hello", "hi-IN")
	engine.Speak(u)
	waitEnd(t, o)

	assert.False(t, engine.Speaking())
	assert.Equal(t, []string{"hi-IN"}, synth.locales)
	assert.Equal(t, []string{"mp3"}, sink.formats)
	assert.Equal(t, [][]byte{[]byte("0123"), []byte("4567"), []byte("89")}, sink.chunks)
	assert.Equal(t, []error{nil}, sink.ends)
}

func TestPlaybackOptionDefaults(t *testing.T) {
	engine := NewPlaybackEngine(nil, nil, PlaybackOptions{}, nil)
	assert.Equal(t, DefaultChunkBytes, engine.opts.ChunkBytes)
	assert.Equal(t, DefaultChunkInterval, engine.opts.ChunkInterval)

	engine = NewPlaybackEngine(nil, nil, PlaybackOptions{ChunkInterval: -1}, nil)
	assert.Zero(t, engine.opts.ChunkInterval)
}

func TestPlaybackPauseAndResume(t *testing.T) {
	synth := &fakeSynth{audio: make([]byte, 64)}
	sink := newRecordingSink()
	engine := NewPlaybackEngine(synth, sink, PlaybackOptions{ChunkBytes: 8, ChunkInterval: 20 * time.Millisecond}, nil)

	u, o := newOutcome("hello", "en-US")
	engine.Speak(u)
	<-sink.wrote
	engine.Pause()
	assert.True(t, engine.Paused())
	assert.True(t, engine.Speaking())

	time.Sleep(60 * time.Millisecond)
	frozen := sink.chunkCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, frozen, sink.chunkCount())
	assert.Less(t, frozen, 8)

	engine.Resume()
	assert.False(t, engine.Paused())
	waitEnd(t, o)
	assert.Equal(t, 8, sink.chunkCount())
}

func TestPlaybackCancelInterrupts(t *testing.T) {
	synth := &fakeSynth{audio: []byte("x"), block: make(chan struct{})}
	engine := NewPlaybackEngine(synth, newRecordingSink(), PlaybackOptions{}, nil)

	u, o := newOutcome("hello", "en-US")
	engine.Speak(u)
	assert.True(t, engine.Speaking())

	engine.Cancel()
	assert.False(t, engine.Speaking())
	assert.ErrorIs(t, waitErr(t, o), ErrInterrupted)
}

func TestPlaybackSpeakReplacesCurrent(t *testing.T) {
	synth := &fakeSynth{audio: []byte("x"), block: make(chan struct{})}
	engine := NewPlaybackEngine(synth, newRecordingSink(), PlaybackOptions{}, nil)

	first, o1 := newOutcome("one", "en-US")
	engine.Speak(first)
	second, o2 := newOutcome("two", "en-US")
	engine.Speak(second)

	assert.ErrorIs(t, waitErr(t, o1), ErrInterrupted)
	assert.True(t, engine.Speaking())

	close(synth.block)
	waitEnd(t, o2)
}

func TestPlaybackSynthesisError(t *testing.T) {
	boom := errors.New("boom")
	sink := newRecordingSink()
	engine := NewPlaybackEngine(&fakeSynth{err: boom}, sink, PlaybackOptions{}, nil)

	u, o := newOutcome("hello", "en-US")
	engine.Speak(u)
	assert.ErrorIs(t, waitErr(t, o), boom)
	assert.Empty(t, sink.formats)
	assert.False(t, engine.Speaking())
}

func TestPlaybackIdleOperationsAreNoops(t *testing.T) {
	engine := NewPlaybackEngine(&fakeSynth{}, nil, PlaybackOptions{}, nil)
	engine.Pause()
	engine.Resume()
	engine.Cancel()
	require.False(t, engine.Speaking())
	require.False(t, engine.Paused())
}
