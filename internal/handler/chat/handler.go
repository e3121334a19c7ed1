package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

// Sessions is the part of the session manager the handler needs.
type Sessions interface {
	Create(key category.Key) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// Handler 聊天会话的HTTP处理器
type Handler struct {
	sessions Sessions
	log      *zap.Logger
}

// New 创建聊天处理器
func New(sessions Sessions, log *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      logger.OrNop(log).Named("http.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Put("/session/{sessionID}/category", h.handleSelectCategory)
	r.Put("/session/{sessionID}/language", h.handleSetLanguage)
	r.Post("/session/{sessionID}/messages", h.handleSendMessage)
}

// handleCreateSession 创建会话，分类可以稍后选择
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category string `json:"category"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Create(category.Key(payload.Category))
	if err != nil {
		RespondSessionError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, s.View())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.View())
}

// handleDeleteSession 重置并移除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		RespondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectCategory 切换分类，切换后对话清空
func (h *Handler) handleSelectCategory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Category string `json:"category"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.SelectCategory(category.Key(payload.Category)); err != nil {
		RespondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Language string `json:"language"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.SetLanguage(payload.Language); err != nil {
		RespondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.View())
}

// handleSendMessage 发送消息；默认异步，?wait=true 时等待回复写入
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if err := s.Send(r.Context(), payload.Text); err != nil {
			RespondSessionError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, s.View())
		return
	}

	if err := s.SendAsync(payload.Text); err != nil {
		RespondSessionError(w, err)
		return
	}
	h.log.Debug("message queued", zap.String("session", s.ID))
	utils.RespondJSON(w, http.StatusAccepted, s.View())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondSessionError(w, err)
		return nil, false
	}
	return s, true
}

// RespondSessionError maps session errors onto HTTP status codes.
func RespondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, session.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, session.ErrCategoryRequired),
		errors.Is(err, session.ErrUnknownCategory),
		errors.Is(err, session.ErrUnknownLanguage):
		status = http.StatusBadRequest
	}
	utils.RespondError(w, status, err.Error())
}
