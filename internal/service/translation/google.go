package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultGoogleBaseURL = "https://translation.googleapis.com/language/translate/v2"

// ErrEmptyTranslation is returned when the provider answers without text.
var ErrEmptyTranslation = errors.New("translation response contained no text")

// GoogleOptions configures the Google Cloud Translation v2 REST client.
type GoogleOptions struct {
	APIKey     string
	BaseURL    string
	RPS        float64
	Burst      int
	HTTPClient *http.Client
}

// GoogleTranslator calls the Cloud Translation v2 REST API with an API key.
type GoogleTranslator struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGoogleTranslator creates a rate-limited translation client.
func NewGoogleTranslator(opts GoogleOptions) *GoogleTranslator {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGoogleBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &GoogleTranslator{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type googleRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Translate implements Translator. Without an API key the text is returned unchanged.
func (g *GoogleTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	if g.apiKey == "" || strings.TrimSpace(text) == "" {
		return text, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("translation rate limit: %w", err)
	}

	payload, err := json.Marshal(googleRequest{Q: text, Target: target, Format: "text"})
	if err != nil {
		return "", fmt.Errorf("marshal translation request: %w", err)
	}

	endpoint := g.baseURL + "?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read translation response: %w", err)
	}

	var result googleResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse translation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != nil && result.Error.Message != "" {
			return "", fmt.Errorf("translation API error %d: %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("translation API status %d", resp.StatusCode)
	}

	if len(result.Data.Translations) == 0 || result.Data.Translations[0].TranslatedText == "" {
		return "", ErrEmptyTranslation
	}
	return result.Data.Translations[0].TranslatedText, nil
}
