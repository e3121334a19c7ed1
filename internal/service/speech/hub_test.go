package speech

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	fail   bool
	closed bool
}

type frame struct {
	kind int
	data []byte
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, frame{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestAudioHubBroadcastsStream(t *testing.T) {
	hub := NewAudioHub(nil)
	a, b := &fakeConn{}, &fakeConn{}
	hub.Add("a", a)
	hub.Add("b", b)

	require.NoError(t, hub.StartStream("mp3"))
	require.NoError(t, hub.WriteAudio([]byte{1, 2, 3}))
	hub.EndStream(nil)

	for _, conn := range []*fakeConn{a, b} {
		require.Len(t, conn.frames, 3)
		var start StreamEvent
		require.NoError(t, json.Unmarshal(conn.frames[0].data, &start))
		assert.Equal(t, StreamEvent{Event: "start", Format: "mp3"}, start)
		assert.Equal(t, websocket.BinaryMessage, conn.frames[1].kind)
		assert.Equal(t, []byte{1, 2, 3}, conn.frames[1].data)
		assert.JSONEq(t, `{"event":"end"}`, string(conn.frames[2].data))
	}
}

func TestAudioHubDropsFailingListener(t *testing.T) {
	hub := NewAudioHub(nil)
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	hub.Add("good", good)
	hub.Add("bad", bad)

	require.NoError(t, hub.WriteAudio([]byte("x")))
	assert.Equal(t, 1, hub.Len())
	assert.True(t, bad.closed)

	hub.EndStream(ErrInterrupted)
	assert.JSONEq(t, `{"event":"end","error":"utterance interrupted"}`, string(good.frames[1].data))
}

func TestAudioHubReplaceAndClose(t *testing.T) {
	hub := NewAudioHub(nil)
	old, replacement := &fakeConn{}, &fakeConn{}
	hub.Add("tab", old)
	hub.Add("tab", replacement)
	assert.True(t, old.closed)
	assert.Equal(t, 1, hub.Len())

	hub.Remove("tab")
	assert.True(t, replacement.closed)
	assert.Zero(t, hub.Len())

	other := &fakeConn{}
	hub.Add("other", other)
	hub.CloseAll()
	assert.True(t, other.closed)
	assert.Zero(t, hub.Len())

	assert.NoError(t, hub.WriteAudio([]byte("nobody listening")))
}
