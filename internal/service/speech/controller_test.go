package speech

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

// fakeEngine 记录调用，回调由测试手动触发。
type fakeEngine struct {
	mu         sync.Mutex
	utterances []Utterance
	speaking   bool
	paused     bool
	cancels    int
	resumes    int
	pauses     int
}

func (e *fakeEngine) Speak(u Utterance) {
	e.mu.Lock()
	e.utterances = append(e.utterances, u)
	e.speaking, e.paused = true, false
	e.mu.Unlock()
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.pauses++
	e.mu.Unlock()
}

func (e *fakeEngine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.resumes++
	e.mu.Unlock()
}

// Cancel interrupts the last utterance the way PlaybackEngine does.
func (e *fakeEngine) Cancel() {
	e.mu.Lock()
	e.cancels++
	var last *Utterance
	if e.speaking && len(e.utterances) > 0 {
		last = &e.utterances[len(e.utterances)-1]
	}
	e.speaking, e.paused = false, false
	e.mu.Unlock()

	if last != nil && last.OnError != nil {
		last.OnError(ErrInterrupted)
	}
}

func (e *fakeEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

func (e *fakeEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *fakeEngine) finishLast() {
	e.mu.Lock()
	last := e.utterances[len(e.utterances)-1]
	e.speaking = false
	e.mu.Unlock()
	last.OnEnd()
}

func newSpeechController(engine Engine) *Controller {
	return NewController(engine, language.NewRegistry(language.Seed()), nil)
}

func TestPlayMarksActiveAndUsesVoiceLocale(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)
	ctrl.SetLanguage("ta")

	changes := 0
	ctrl.OnChange(func() { changes++ })

	ctrl.Play("m1", "  vanakkam  ")
	require.Len(t, engine.utterances, 1)
	assert.Equal(t, "vanakkam", engine.utterances[0].Text)
	assert.Equal(t, "ta-IN", engine.utterances[0].Locale)
	assert.Equal(t, "m1", ctrl.ActiveID())
	assert.Equal(t, 1, changes)

	engine.finishLast()
	assert.Empty(t, ctrl.ActiveID())
	assert.Equal(t, 2, changes)
}

func TestPlayFallsBackToDefaultLocale(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)
	ctrl.SetLanguage("xx")

	ctrl.Play("m1", "hello")
	assert.Equal(t, language.DefaultVoice, engine.utterances[0].Locale)
}

func TestPlayResumesPausedActiveMessage(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Play("m1", "hello")
	ctrl.Pause()
	assert.True(t, ctrl.Paused())

	ctrl.Play("m1", "hello")
	assert.Equal(t, 1, engine.resumes)
	assert.Len(t, engine.utterances, 1)
	assert.Zero(t, engine.cancels)
	assert.Equal(t, "m1", ctrl.ActiveID())
}

func TestPlayOtherMessageCancelsFirst(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Play("m1", "one")
	ctrl.Play("m2", "two")

	assert.Equal(t, 1, engine.cancels)
	require.Len(t, engine.utterances, 2)
	assert.Equal(t, "m2", ctrl.ActiveID())
}

func TestSupersededCallbackKeepsNewActive(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Play("m1", "one")
	first := engine.utterances[0]
	ctrl.Play("m2", "two")

	first.OnEnd()
	first.OnError(ErrInterrupted)
	assert.Equal(t, "m2", ctrl.ActiveID())
}

func TestPlayEmptyTextCancelsOnly(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Play("m1", "one")
	ctrl.Play("m2", "   ")

	assert.Equal(t, 1, engine.cancels)
	assert.Len(t, engine.utterances, 1)
	assert.Empty(t, ctrl.ActiveID())
	assert.False(t, engine.Speaking())
}

func TestPauseOnlyWhileSpeaking(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Pause()
	assert.Zero(t, engine.pauses)

	ctrl.Play("m1", "one")
	ctrl.Pause()
	ctrl.Pause()
	assert.Equal(t, 1, engine.pauses)
}

func TestCleanupThenPlayLeavesOneUtterance(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newSpeechController(engine)

	ctrl.Play("m1", "one")
	ctrl.Cleanup()
	assert.Empty(t, ctrl.ActiveID())
	assert.False(t, engine.Speaking())

	ctrl.Play("m2", "two")
	assert.Equal(t, "m2", ctrl.ActiveID())
	assert.True(t, engine.Speaking())
	assert.Equal(t, 1, engine.cancels)
}

func TestUnsupportedEngineIsNoop(t *testing.T) {
	ctrl := newSpeechController(nil)
	assert.False(t, ctrl.Supported())

	ctrl.Play("m1", "hello")
	ctrl.Pause()
	ctrl.Cleanup()
	assert.Empty(t, ctrl.ActiveID())
	assert.False(t, ctrl.Paused())
}

func TestControllerWithPlaybackEngine(t *testing.T) {
	sink := newRecordingSink()
	engine := NewPlaybackEngine(&fakeSynth{audio: []byte("abc")}, sink, PlaybackOptions{}, nil)
	ctrl := newSpeechController(engine)

	done := make(chan struct{}, 4)
	ctrl.OnChange(func() {
		if ctrl.ActiveID() == "" {
			done <- struct{}{}
		}
	})

	ctrl.Play("m1", "hello")
	<-done
	assert.False(t, engine.Speaking())
	assert.Equal(t, [][]byte{[]byte("abc")}, sink.chunks)
}
