package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/catalog"
	"github.com/zhouzirui/agent-desk/backend/internal/config"
	"github.com/zhouzirui/agent-desk/backend/internal/handler"
	"github.com/zhouzirui/agent-desk/backend/internal/handler/devproxy"
	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/agent"
	"github.com/zhouzirui/agent-desk/backend/internal/service/session"
	"github.com/zhouzirui/agent-desk/backend/internal/service/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/translation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if envErr != nil {
		zl.Debug("no .env file loaded, using process environment only", zap.Error(envErr))
	}
	for _, w := range cfg.Warnings {
		zl.Warn(w)
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		zl.Fatal("failed to load catalog", zap.Error(err))
	}
	categories := category.NewMemoryStore(cat.Categories)
	languages := language.NewRegistry(cat.Languages)

	agentClient := agent.NewClient(agent.Options{
		URL:           cfg.Agent.WebhookURL,
		Timeout:       cfg.Agent.Timeout,
		RetryAttempts: cfg.Agent.ClientRetryAttempts(),
		RetryDelay:    cfg.Agent.RetryDelay,
		Logger:        zl,
	})
	zl.Info("agent webhook configured",
		zap.String("url", cfg.Agent.WebhookURL),
		zap.Bool("devProxy", cfg.Agent.DevProxy),
	)

	translator := newTranslator(ctx, cfg, languages, zl)
	synthesizer := newSynthesizer(cfg, zl)

	manager := session.NewManager(session.Dependencies{
		Agent:       agentClient,
		Translator:  translator,
		Categories:  categories,
		Languages:   languages,
		Synthesizer: synthesizer,
		Playback: speech.PlaybackOptions{
			Format:        cfg.Speech.Format,
			ChunkBytes:    cfg.Speech.ChunkBytes,
			ChunkInterval: cfg.Speech.ChunkInterval,
		},
		TranslationConcurrency: cfg.Translation.Concurrency,
		Logger:                 zl,
	})
	defer manager.Close()

	var proxy http.Handler
	if cfg.Agent.DevProxy {
		proxy, err = devproxy.New(cfg.Agent.ProxyTarget, zl)
		if err != nil {
			zl.Fatal("failed to build development proxy", zap.Error(err))
		}
	}

	router := handler.NewRouter(handler.Options{
		Sessions:    manager,
		Categories:  categories,
		Languages:   languages,
		CORSOrigins: cfg.CORSOrigins,
		DevProxy:    proxy,
		Logger:      zl,
	})

	startServer(ctx, cfg.Server, router, zl)
}

// newTranslator 按配置选择翻译后端，Ark 初始化失败时退化为原文显示。
func newTranslator(ctx context.Context, cfg *config.Config, languages *language.Registry, zl *zap.Logger) translation.Translator {
	switch cfg.Translation.Provider {
	case config.ProviderGoogle:
		return translation.NewGoogleTranslator(translation.GoogleOptions{
			APIKey:  cfg.Translation.GoogleAPIKey,
			BaseURL: cfg.Translation.GoogleBaseURL,
			RPS:     cfg.Translation.RPS,
			Burst:   cfg.Translation.Burst,
		})
	case config.ProviderArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			zl.Warn("failed to initialize Ark model, replies will not be translated", zap.Error(err))
			return translation.Passthrough{}
		}
		t, err := translation.NewArkTranslator(ctx, chatModel, languages)
		if err != nil {
			zl.Warn("failed to initialize Ark translator, replies will not be translated", zap.Error(err))
			return translation.Passthrough{}
		}
		zl.Info("Ark translator initialized", zap.String("model", cfg.AI.Model))
		return t
	}
	return translation.Passthrough{}
}

func newSynthesizer(cfg *config.Config, zl *zap.Logger) speech.Synthesizer {
	if !cfg.Speech.Enabled {
		zl.Info("speech synthesis disabled")
		return nil
	}

	s := cfg.Speech
	voices := speech.DefaultVoices().Merge(s.Voices)
	zl.Info("speech synthesis enabled", zap.String("format", s.Format), zap.Int("voices", len(voices)))
	return speech.NewVolcengineSynthesizer(&speechmodel.SpeechConfig{
		AppID:         s.AppID,
		AccessToken:   s.AccessToken,
		APIKey:        s.APIKey,
		Endpoint:      s.Endpoint,
		TTSVoice:      s.TTSVoice,
		TTSSpeed:      s.TTSSpeed,
		TTSVolume:     s.TTSVolume,
		Format:        s.Format,
		ChunkBytes:    s.ChunkBytes,
		ChunkInterval: s.ChunkInterval,
		Timeout:       s.Timeout,
	}, voices, zl)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zl *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zl.Info("agent desk backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zl.Error("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
