package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/agent-desk/backend/internal/service/agent"
)

// DefaultWebhookURL 生产环境未配置 webhook 时使用的地址。
const DefaultWebhookURL = "https://n8n.srv650558.hstgr.cloud/webhook/3967230f-99b6-4a50-b049-be711b89c3b3"

// DevProxyPath 开发环境本地代理 webhook 的路径。
const DevProxyPath = "/dev/agent"

const (
	ProviderGoogle      = "google"
	ProviderArk         = "ark"
	ProviderPassthrough = "none"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Env         string   `env:"APP_ENV" envDefault:"development"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	Port        string   `env:"PORT" envDefault:"8080"`
	CatalogFile string   `env:"CATALOG_FILE"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	Agent       AgentConfig
	Translation TranslationConfig
	AI          AIConfig
	Speech      SpeechConfig

	Server ServerConfig `env:"-"`
	// Warnings 描述加载时做出的回退，不影响启动。
	Warnings []string `env:"-"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// AgentConfig 描述远端 agent webhook。
type AgentConfig struct {
	WebhookURL       string        `env:"AGENT_WEBHOOK_URL"`
	LegacyWebhookURL string        `env:"VITE_WEBHOOK_URL"`
	ProxyTarget      string        `env:"AGENT_PROXY_TARGET" envDefault:"https://n8n.srv650558.hstgr.cloud/webhook/3967230f-99b6-4a50-b049-be711b89c3b3"`
	Timeout          time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`
	// RetryAttempts 为 0 时不重试
	RetryAttempts    int           `env:"AGENT_RETRY_ATTEMPTS" envDefault:"2"`
	RetryDelay       time.Duration `env:"AGENT_RETRY_DELAY" envDefault:"500ms"`

	// DevProxy 为 true 时 WebhookURL 指向本服务的开发代理。
	DevProxy bool `env:"-"`
}

// TranslationConfig 描述翻译后端。
type TranslationConfig struct {
	Provider      string  `env:"TRANSLATION_PROVIDER" envDefault:"google"`
	GoogleAPIKey  string  `env:"GOOGLE_TRANSLATE_API_KEY"`
	GoogleBaseURL string  `env:"GOOGLE_TRANSLATE_URL"`
	RPS           float64 `env:"TRANSLATION_RPS" envDefault:"5"`
	Burst         int     `env:"TRANSLATION_BURST" envDefault:"5"`
	Concurrency   int     `env:"TRANSLATION_CONCURRENCY" envDefault:"4"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"Model"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	TopP        *float64 `env:"ARK_TOP_P"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`
}

// SpeechConfig 描述语音合成相关配置
type SpeechConfig struct {
	Enabled       bool              `env:"SPEECH_ENABLED" envDefault:"true"`
	AppID         string            `env:"SPEECH_APP_ID"`
	AccessToken   string            `env:"SPEECH_ACCESS_TOKEN"`
	APIKey        string            `env:"SPEECH_API_KEY"`
	Endpoint      string            `env:"SPEECH_ENDPOINT"`
	TTSVoice      string            `env:"SPEECH_TTS_VOICE"`
	TTSSpeed      float32           `env:"SPEECH_TTS_SPEED" envDefault:"1.0"`
	TTSVolume     float32           `env:"SPEECH_TTS_VOLUME" envDefault:"1.0"`
	Format        string            `env:"SPEECH_FORMAT" envDefault:"mp3"`
	Timeout       time.Duration     `env:"SPEECH_TIMEOUT" envDefault:"30s"`
	ChunkBytes    int               `env:"SPEECH_CHUNK_BYTES" envDefault:"4096"`
	ChunkInterval time.Duration     `env:"SPEECH_CHUNK_INTERVAL" envDefault:"40ms"`
	Voices        map[string]string `env:"SPEECH_VOICES" envSeparator:"," envKeyValSeparator:"="`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Production reports whether APP_ENV selects the production profile.
func (c *Config) Production() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "production", "prod":
		return true
	}
	return false
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) finalize() error {
	addr, err := listenAddr(c.Port)
	if err != nil {
		return err
	}
	c.Server.Addr = addr

	if err := c.finalizeAgent(); err != nil {
		return err
	}
	if err := c.finalizeTranslation(); err != nil {
		return err
	}
	c.finalizeSpeech()
	return nil
}

// listenAddr 允许 "8080"、":8080" 或 "127.0.0.1:8080"。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func (c *Config) finalizeAgent() error {
	a := &c.Agent
	if a.RetryAttempts < 0 {
		return fmt.Errorf("invalid AGENT_RETRY_ATTEMPTS value %d: must not be negative", a.RetryAttempts)
	}
	if a.Timeout <= 0 {
		return errors.New("invalid AGENT_TIMEOUT: must be positive")
	}

	a.WebhookURL = strings.TrimSpace(a.WebhookURL)
	if a.WebhookURL == "" {
		a.WebhookURL = strings.TrimSpace(a.LegacyWebhookURL)
	}
	if a.WebhookURL != "" {
		return nil
	}

	if c.Production() {
		a.WebhookURL = DefaultWebhookURL
		c.warn("AGENT_WEBHOOK_URL is not set; using the built-in production webhook")
		return nil
	}

	a.DevProxy = true
	a.WebhookURL = localURL(c.Server.Addr) + DevProxyPath
	if strings.TrimSpace(a.ProxyTarget) == "" {
		a.ProxyTarget = DefaultWebhookURL
	}
	return nil
}

// ClientRetryAttempts converts RetryAttempts to agent.Options form, where
// zero selects the client default.
func (a AgentConfig) ClientRetryAttempts() int {
	if a.RetryAttempts == 0 {
		return agent.NoRetry
	}
	return a.RetryAttempts
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://127.0.0.1" + addr
	}
	return "http://" + addr
}

func (c *Config) finalizeTranslation() error {
	t := &c.Translation
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	switch t.Provider {
	case "", ProviderGoogle:
		t.Provider = ProviderGoogle
		if strings.TrimSpace(t.GoogleAPIKey) == "" {
			c.warn("GOOGLE_TRANSLATE_API_KEY is not set; replies will not be translated")
		}
	case ProviderArk:
		if !c.AI.Enabled() {
			c.warn("TRANSLATION_PROVIDER=ark but Ark credentials are missing; replies will not be translated")
		}
	case ProviderPassthrough:
	default:
		return fmt.Errorf("invalid TRANSLATION_PROVIDER value %q", t.Provider)
	}
	if t.Concurrency < 1 {
		t.Concurrency = 1
	}
	return nil
}

func (c *Config) finalizeSpeech() {
	s := &c.Speech
	s.AppID = strings.TrimSpace(s.AppID)
	s.AccessToken = strings.TrimSpace(s.AccessToken)
	if s.AccessToken == "" {
		s.AccessToken = strings.TrimSpace(s.APIKey)
	}
	// 没有专门的语音凭证时尝试使用 Ark 的 API Key
	if s.AccessToken == "" {
		s.AccessToken = strings.TrimSpace(c.AI.APIKey)
	}

	if s.Enabled && (s.AppID == "" || s.AccessToken == "") {
		s.Enabled = false
		c.warn("speech credentials are not configured; read-aloud is disabled")
	}
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_API_KEY + Model, or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
	if c.Temperature != nil {
		v := float32(*c.Temperature)
		cfg.Temperature = &v
	}
	if c.TopP != nil {
		v := float32(*c.TopP)
		cfg.TopP = &v
	}
	return ark.NewChatModel(ctx, cfg)
}
