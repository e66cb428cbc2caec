package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/mion-onsen/concierge/backend/internal/model/speech"
)

// ErrMissingCredentials 表示缺少 AppID 或 AccessToken。
var ErrMissingCredentials = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken。
func resolveCredentials(cfg speechmodel.VolcengineConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}
	return appID, token, nil
}
