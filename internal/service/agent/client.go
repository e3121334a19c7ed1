package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/internal/metrics"
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 500 * time.Millisecond

	// NoRetry as Options.RetryAttempts sends each request exactly once.
	NoRetry = -1

	// NoResponseText is returned when the webhook answers without usable text.
	NoResponseText = "No response received."
)

// ErrTimeout reports that a single attempt exceeded the request timeout.
var ErrTimeout = errors.New("agent request timed out")

// StatusError is returned for non-2xx webhook responses.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Options tunes the webhook client.
type Options struct {
	URL           string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client posts chat turns to the remote agent webhook.
type Client struct {
	url           string
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
	log           *zap.Logger
}

// NewClient creates a webhook client; zero option values take the defaults.
// A negative RetryAttempts (see NoRetry) disables retries.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch {
	case opts.RetryAttempts == 0:
		opts.RetryAttempts = DefaultRetryAttempts
	case opts.RetryAttempts < 0:
		opts.RetryAttempts = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		url:           opts.URL,
		timeout:       opts.Timeout,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		httpClient:    opts.HTTPClient,
		log:           logger.OrNop(opts.Logger).Named("agent"),
	}
}

type askRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Ask sends text for the given category and returns the agent's reply text.
func (c *Client) Ask(ctx context.Context, category, text string) (string, error) {
	start := time.Now()
	defer func() { metrics.AgentLatency.Observe(time.Since(start).Seconds()) }()

	payload, err := json.Marshal(askRequest{Category: category, Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, payload)
	if err != nil {
		metrics.AgentRequestsTotal.WithLabelValues(outcomeOf(err)).Inc()
		return "", err
	}
	defer resp.Body.Close()

	data, err := parseBody(resp)
	if err != nil {
		metrics.AgentRequestsTotal.WithLabelValues("bad_body").Inc()
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.AgentRequestsTotal.WithLabelValues("status").Inc()
		return "", &StatusError{Status: resp.StatusCode, Message: errorText(data, resp.StatusCode)}
	}

	metrics.AgentRequestsTotal.WithLabelValues("ok").Inc()
	return ExtractText(data), nil
}

func (c *Client) doWithRetry(ctx context.Context, payload []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, payload)
		if err == nil {
			return resp, nil
		}

		// 超时与主动取消都不重试
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			return nil, err
		}
		if attempt >= c.retryAttempts {
			return nil, err
		}

		c.log.Warn("retrying agent request",
			zap.Int("attempt", attempt+1),
			zap.Int("max", c.retryAttempts),
			zap.Error(err),
		)
		metrics.AgentRetriesTotal.Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) attempt(ctx context.Context, payload []byte) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("agent request failed: %w", err)
	}

	// 读取完整响应体后再释放超时上下文
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read agent response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// parseBody decodes the response according to its Content-Type.
func parseBody(resp *http.Response) (any, error) {
	contentType := resp.Header.Get("Content-Type")

	switch {
	case strings.Contains(contentType, "application/json"):
		var data any
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, fmt.Errorf("decode agent response: %w", err)
		}
		return data, nil

	case strings.Contains(contentType, "text/"):
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read agent response: %w", err)
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return map[string]any{"output": string(raw)}, nil
		}
		return data, nil

	default:
		return map[string]any{}, nil
	}
}

// ExtractText pulls the reply out of a decoded webhook body.
func ExtractText(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		if output, ok := v["output"].(string); ok {
			return output
		}
	}
	return NoResponseText
}

func errorText(data any, status int) string {
	if obj, ok := data.(map[string]any); ok {
		if msg, ok := obj["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("Server error: %d", status)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transport"
	}
}
