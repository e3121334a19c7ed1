package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

const defaultHeartbeat = 8 * time.Second

// Sessions looks sessions up by id.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Handler pushes session views to the browser over Server-Sent Events.
type Handler struct {
	sessions Sessions
	log      *zap.Logger

	// Heartbeat is the idle interval between keep-alive events.
	Heartbeat time.Duration
}

// New creates a new stream handler
func New(sessions Sessions, log *zap.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		log:       logger.OrNop(log).Named("sse"),
		Heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	log := h.log.With(zap.String("session", sessionID))
	log.Debug("opening event stream")
	defer log.Debug("closing event stream")

	if err := utils.SendSSEEvent(w, flusher, "view", s.View()); err != nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-changes:
			if !open {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"id": sessionID})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "view", s.View()); err != nil {
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}
