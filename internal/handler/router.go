package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/config"
	"github.com/zhouzirui/agent-desk/backend/internal/handler/catalog"
	"github.com/zhouzirui/agent-desk/backend/internal/handler/chat"
	"github.com/zhouzirui/agent-desk/backend/internal/handler/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/handler/stream"
	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

// Options collects what the router serves.
type Options struct {
	Sessions    *session.Manager
	Categories  category.Store
	Languages   *language.Registry
	CORSOrigins []string
	// DevProxy is mounted at config.DevProxyPath when set.
	DevProxy http.Handler
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(opts Options) http.Handler {
	log := logger.OrNop(opts.Logger)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if opts.DevProxy != nil {
		r.Handle(config.DevProxyPath, opts.DevProxy)
		log.Info("development agent proxy enabled", zap.String("path", config.DevProxyPath))
	}

	r.Route("/api", func(api chi.Router) {
		catalog.New(opts.Categories, opts.Languages).RegisterRoutes(api)
		chat.New(opts.Sessions, log).RegisterRoutes(api)
		stream.New(opts.Sessions, log).RegisterRoutes(api)
		speech.New(opts.Sessions, log).RegisterRoutes(api)
	})

	return r
}
