package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

// Handler 分类与语言目录的HTTP处理器
type Handler struct {
	categories category.Store
	languages  *language.Registry
}

// New 创建目录处理器
func New(categories category.Store, languages *language.Registry) *Handler {
	return &Handler{
		categories: categories,
		languages:  languages,
	}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/categories", h.handleListCategories)
	r.Get("/languages", h.handleListLanguages)
}

// handleListCategories 列出所有分类
func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.categories.List())
}

// handleListLanguages 列出可选的显示语言
func (h *Handler) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.languages.List())
}
