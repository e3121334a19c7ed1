// Command agentprobe exercises the agent webhook, the translator and the
// speech synthesizer from the command line using the server's configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/catalog"
	"github.com/zhouzirui/agent-desk/backend/internal/config"
	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/agent"
	"github.com/zhouzirui/agent-desk/backend/internal/service/speech"
	"github.com/zhouzirui/agent-desk/backend/internal/service/translation"
)

func main() {
	mode := flag.String("mode", "", "测试模式: chat、translate 或 tts")
	text := flag.String("text", "", "输入文本")
	categoryKey := flag.String("category", "astrology", "chat 模式使用的分类")
	lang := flag.String("lang", "hi", "translate/tts 模式的目标语言")
	voice := flag.String("voice", "", "TTS 声音 ID，默认按语言选择")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	timeout := flag.Duration("timeout", 90*time.Second, "请求超时时间")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	zl, err := logger.New(false, "debug")
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer zl.Sync()
	sl := zl.Sugar()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		sl.Fatal("请通过 -text 提供输入文本")
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		sl.Fatalf("目录加载失败: %v", err)
	}
	languages := language.NewRegistry(cat.Languages)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "chat":
		runChat(ctx, cfg, zl, category.NewMemoryStore(cat.Categories), category.Key(*categoryKey), *text)
	case "translate":
		runTranslate(ctx, cfg, zl, languages, *lang, *text)
	case "tts":
		runTTS(ctx, cfg, zl, languages, *lang, *voice, *text, *outputPath)
	default:
		flag.Usage()
		sl.Fatal("请通过 -mode=chat、-mode=translate 或 -mode=tts 指定测试模式")
	}
}

func runChat(ctx context.Context, cfg *config.Config, zl *zap.Logger, categories category.Store, key category.Key, text string) {
	selected, ok := categories.Find(key)
	if !ok {
		zl.Fatal("unknown category", zap.String("category", string(key)))
	}

	url := cfg.Agent.WebhookURL
	if cfg.Agent.DevProxy {
		// 命令行没有本地代理，直接请求真实地址
		url = cfg.Agent.ProxyTarget
	}

	client := agent.NewClient(agent.Options{
		URL:           url,
		Timeout:       cfg.Agent.Timeout,
		RetryAttempts: cfg.Agent.ClientRetryAttempts(),
		RetryDelay:    cfg.Agent.RetryDelay,
		Logger:        zl,
	})

	start := time.Now()
	reply, err := client.Ask(ctx, selected.Label(), text)
	if err != nil {
		zl.Fatal("agent request failed", zap.Error(err))
	}
	zl.Info("agent replied", zap.String("category", selected.Label()), zap.Duration("took", time.Since(start)))
	fmt.Println(reply)
}

func runTranslate(ctx context.Context, cfg *config.Config, zl *zap.Logger, languages *language.Registry, lang, text string) {
	lang = language.Normalize(lang)
	if _, ok := languages.Find(lang); !ok {
		zl.Fatal("unknown language", zap.String("language", lang))
	}

	var translator translation.Translator
	switch cfg.Translation.Provider {
	case config.ProviderGoogle:
		translator = translation.NewGoogleTranslator(translation.GoogleOptions{
			APIKey:  cfg.Translation.GoogleAPIKey,
			BaseURL: cfg.Translation.GoogleBaseURL,
		})
	case config.ProviderArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			zl.Fatal("failed to initialize Ark model", zap.Error(err))
		}
		translator, err = translation.NewArkTranslator(ctx, chatModel, languages)
		if err != nil {
			zl.Fatal("failed to initialize Ark translator", zap.Error(err))
		}
	default:
		translator = translation.Passthrough{}
	}

	out, err := translator.Translate(ctx, text, lang)
	if err != nil {
		zl.Fatal("translation failed", zap.Error(err))
	}
	zl.Info("translated", zap.String("provider", cfg.Translation.Provider), zap.String("language", lang))
	fmt.Println(out)
}

func runTTS(ctx context.Context, cfg *config.Config, zl *zap.Logger, languages *language.Registry, lang, voice, text, outputPath string) {
	if !cfg.Speech.Enabled {
		zl.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_* 或 Ark 凭证")
	}

	s := cfg.Speech
	synth := speech.NewVolcengineSynthesizer(&speechmodel.SpeechConfig{
		AppID:       s.AppID,
		AccessToken: s.AccessToken,
		APIKey:      s.APIKey,
		Endpoint:    s.Endpoint,
		TTSVoice:    s.TTSVoice,
		TTSSpeed:    s.TTSSpeed,
		TTSVolume:   s.TTSVolume,
		Format:      s.Format,
		Timeout:     s.Timeout,
	}, speech.DefaultVoices().Merge(s.Voices), zl)

	resp, err := synth.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: fmt.Sprintf("probe-%d", time.Now().UnixNano()),
		Text:      text,
		Voice:     voice,
		Language:  languages.VoiceLocale(lang),
	})
	if err != nil {
		zl.Fatal("synthesis failed", zap.Error(err))
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		zl.Fatal("写入音频文件失败", zap.Error(err))
	}

	zl.Info("TTS 合成成功",
		zap.String("out", outputPath),
		zap.Int("bytes", len(resp.AudioData)),
		zap.Int64("durationMs", resp.Duration),
	)
}
