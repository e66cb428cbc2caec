package speech

import "time"

// VolcengineConfig 火山引擎语音合成配置
type VolcengineConfig struct {
	AppID       string        `json:"appId"`            // 火山引擎 APP ID
	AccessToken string        `json:"accessToken"`      // 火山引擎 Access Token
	APIKey      string        `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	Endpoint    string        `json:"endpoint"`
	Voice       string        `json:"voice"`
	Speed       float32       `json:"speed"`
	Volume      float32       `json:"volume"`
	Language    string        `json:"language"`
	SampleRate  int           `json:"sampleRate"`
	Timeout     time.Duration `json:"timeout"`
}
