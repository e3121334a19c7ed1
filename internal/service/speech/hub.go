package speech

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
)

const defaultWriteTimeout = 10 * time.Second

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// StreamEvent 音频流控制帧（文本帧），二进制帧为音频数据。
type StreamEvent struct {
	Event  string `json:"event"`
	Format string `json:"format,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AudioHub 管理同一会话的音频监听连接，并向所有连接广播音频。
type AudioHub struct {
	mu           sync.RWMutex
	listeners    map[string]*listener
	writeTimeout time.Duration
	log          *zap.Logger
}

type listener struct {
	mu   sync.Mutex
	conn Conn
}

// NewAudioHub 创建音频广播器
func NewAudioHub(log *zap.Logger) *AudioHub {
	return &AudioHub{
		listeners:    make(map[string]*listener),
		writeTimeout: defaultWriteTimeout,
		log:          logger.OrNop(log).Named("audio_hub"),
	}
}

// Add 注册监听连接，同 id 的旧连接会被关闭。
func (h *AudioHub) Add(id string, conn Conn) {
	h.mu.Lock()
	old := h.listeners[id]
	h.listeners[id] = &listener{conn: conn}
	h.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
}

// Remove 移除并关闭连接
func (h *AudioHub) Remove(id string) {
	h.mu.Lock()
	l := h.listeners[id]
	delete(h.listeners, id)
	h.mu.Unlock()

	if l != nil {
		l.conn.Close()
	}
}

// Len 当前监听数
func (h *AudioHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// CloseAll 关闭所有连接
func (h *AudioHub) CloseAll() {
	h.mu.Lock()
	all := h.listeners
	h.listeners = make(map[string]*listener)
	h.mu.Unlock()

	for _, l := range all {
		l.conn.Close()
	}
}

// StartStream announces a new utterance and its audio format.
func (h *AudioHub) StartStream(format string) error {
	h.broadcastEvent(StreamEvent{Event: "start", Format: format})
	return nil
}

// WriteAudio broadcasts one chunk. Listeners that fail are dropped; having no
// listeners is not an error.
func (h *AudioHub) WriteAudio(chunk []byte) error {
	h.broadcast(websocket.BinaryMessage, chunk)
	return nil
}

// EndStream marks the end of the current utterance.
func (h *AudioHub) EndStream(err error) {
	ev := StreamEvent{Event: "end"}
	if err != nil {
		ev.Error = err.Error()
	}
	h.broadcastEvent(ev)
}

func (h *AudioHub) broadcastEvent(ev StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.broadcast(websocket.TextMessage, data)
}

func (h *AudioHub) broadcast(messageType int, data []byte) {
	h.mu.RLock()
	targets := make(map[string]*listener, len(h.listeners))
	for id, l := range h.listeners {
		targets[id] = l
	}
	h.mu.RUnlock()

	for id, l := range targets {
		l.mu.Lock()
		l.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := l.conn.WriteMessage(messageType, data)
		l.mu.Unlock()
		if err != nil {
			h.log.Debug("dropping audio listener", zap.String("listener", id), zap.Error(err))
			h.drop(id, l)
		}
	}
}

func (h *AudioHub) drop(id string, l *listener) {
	h.mu.Lock()
	if h.listeners[id] == l {
		delete(h.listeners, id)
	}
	h.mu.Unlock()
	l.conn.Close()
}
