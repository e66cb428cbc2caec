package speech

import "time"

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed"`  // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"` // 音量 0.0-1.0
	Language  string  `json:"language"`
}

// TTSResponse carries raw little-endian PCM16 mono audio.
type TTSResponse struct {
	SessionID  string        `json:"sessionId"`
	PCM        []byte        `json:"-"`
	SampleRate int           `json:"sampleRate"`
	Duration   time.Duration `json:"duration"`
	RequestID  string        `json:"requestId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}
