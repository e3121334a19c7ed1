package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agent-desk/backend/internal/model/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
)

type echoAgent struct{}

func (echoAgent) Ask(_ context.Context, _, text string) (string, error) {
	return "echo: " + text, nil
}

type sseEvent struct {
	name string
	data string
}

func readEvents(body *bufio.Reader, out chan<- sseEvent) {
	var ev sseEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			close(out)
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended before %q", name)
			if ev.name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event", name)
		}
	}
}

func setup(t *testing.T, heartbeat time.Duration) (*httptest.Server, *session.Manager) {
	t.Helper()
	manager := session.NewManager(session.Dependencies{Agent: echoAgent{}})
	t.Cleanup(manager.Close)

	h := New(manager, nil)
	h.Heartbeat = heartbeat
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manager
}

func TestEventsStreamViews(t *testing.T) {
	srv, manager := setup(t, time.Minute)
	s, err := manager.Create("wellness")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/session/" + s.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), events)

	var view chat.View
	require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "view").data), &view))
	assert.Equal(t, s.ID, view.ID)
	assert.Empty(t, view.Messages)

	require.NoError(t, s.Send(context.Background(), "hi"))

	for {
		var v chat.View
		require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "view").data), &v))
		if len(v.Messages) == 2 && !v.Messages[1].Pending {
			assert.Equal(t, "echo: hi", v.Messages[1].Text)
			break
		}
	}

	require.NoError(t, manager.Delete(s.ID))
	closed := nextEvent(t, events, "closed")
	assert.JSONEq(t, `{"id":"`+s.ID+`"}`, closed.data)
}

func TestEventsHeartbeat(t *testing.T) {
	srv, manager := setup(t, 20*time.Millisecond)
	s, err := manager.Create("")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/session/" + s.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan sseEvent, 64)
	go readEvents(bufio.NewReader(resp.Body), events)

	ev := nextEvent(t, events, "heartbeat")
	assert.Contains(t, ev.data, "time")
}

func TestEventsUnknownSession(t *testing.T) {
	srv, _ := setup(t, time.Minute)

	resp, err := http.Get(srv.URL + "/session/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
