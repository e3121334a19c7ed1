package speech

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chathandler "github.com/zhouzirui/agent-desk/backend/internal/handler/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

// Sessions looks sessions up by id.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Handler 朗读控制的HTTP处理器
type Handler struct {
	sessions Sessions
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建语音处理器
func New(sessions Sessions, log *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      logger.OrNop(log).Named("http.speech"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// RegisterRoutes 注册语音相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{sessionID}/speech/play", h.handlePlay)
	r.Post("/session/{sessionID}/speech/pause", h.handlePause)
	r.Get("/session/{sessionID}/speech/ws", h.handleAudioStream)
}

// handlePlay 朗读指定消息；暂停中的同一条消息会继续播放
func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !s.SpeechEnabled() {
		respondSpeechDisabled(w)
		return
	}

	var payload struct {
		MessageID string `json:"messageId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.MessageID == "" {
		utils.RespondError(w, http.StatusBadRequest, "messageId is required")
		return
	}

	if err := s.PlayMessage(payload.MessageID); err != nil {
		chathandler.RespondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.PauseSpeech()
	utils.RespondJSON(w, http.StatusOK, s.View())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		chathandler.RespondSessionError(w, err)
		return nil, false
	}
	return s, true
}

func respondSpeechDisabled(w http.ResponseWriter) {
	utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
}
