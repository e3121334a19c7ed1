package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
)

// ErrMissingCredentials is returned when the Volcengine app id or token is unset.
var ErrMissingCredentials = errors.New("volcengine speech credentials missing app id or access token")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken
func resolveCredentials(cfg *speechmodel.SpeechConfig) (appID, token string, err error) {
	if cfg == nil {
		return "", "", ErrMissingCredentials
	}
	appID = strings.TrimSpace(cfg.AppID)
	token = strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}
	return appID, token, nil
}
