package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/metrics"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	chatsvc "github.com/zhouzirui/agent-desk/backend/internal/service/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/service/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/translation"
)

// Dependencies are shared by every session a Manager creates.
type Dependencies struct {
	Agent       chatsvc.Agent
	Translator  translation.Translator
	Categories  category.Store
	Languages   *language.Registry
	Synthesizer speech.Synthesizer // nil disables speech

	Playback               speech.PlaybackOptions
	TranslationConcurrency int
	Logger                 *zap.Logger
}

// Manager keeps the live sessions in memory.
type Manager struct {
	deps Dependencies
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager(deps Dependencies) *Manager {
	if deps.Categories == nil {
		deps.Categories = category.NewMemoryStore(category.Seed())
	}
	if deps.Languages == nil {
		deps.Languages = language.NewRegistry(language.Seed())
	}
	return &Manager{
		deps:     deps,
		log:      logger.OrNop(deps.Logger),
		sessions: make(map[string]*Session),
	}
}

// Create opens a session, optionally with a category already selected.
func (m *Manager) Create(key category.Key) (*Session, error) {
	if key != "" {
		if _, ok := m.deps.Categories.Find(key); !ok {
			return nil, ErrUnknownCategory
		}
	}

	id := uuid.NewString()
	s := newSession(id, m.deps, m.log.With(zap.String("session", id)))
	s.category = key

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	m.log.Info("session created", zap.String("session", id), zap.String("category", string(key)))
	return s, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete resets and closes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Reset()
	s.Close()
	metrics.ActiveSessions.Dec()
	m.log.Info("session deleted", zap.String("session", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}
