// Package devproxy forwards the browser's webhook calls to the real agent
// during local development so the webhook's CORS policy never applies.
package devproxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	"github.com/zhouzirui/agent-desk/backend/pkg/utils"
)

// New returns a reverse proxy that sends every request to target, replacing
// the request path with the target's path and keeping the query string.
func New(target string, log *zap.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse proxy target: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy target %q must be an absolute URL", target)
	}

	log = logger.OrNop(log).Named("devproxy")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = u.Scheme
			pr.Out.URL.Host = u.Host
			pr.Out.URL.Path = u.Path
			pr.Out.URL.RawPath = u.RawPath
			pr.Out.Host = u.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("agent proxy request failed", zap.String("target", u.Redacted()), zap.Error(err))
			utils.RespondError(w, http.StatusBadGateway, "agent webhook unreachable")
		},
	}, nil
}
