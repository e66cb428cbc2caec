// Package speech 通过火山引擎 V3 WebSocket 协议合成语音。
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	speechmodel "github.com/mion-onsen/concierge/backend/internal/model/speech"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Service adapts the TTS client to the concierge speech port.
type Service struct {
	client    *Client
	voice     string
	sessionID string
}

var _ concierge.SpeechService = (*Service)(nil)

// NewService 创建语音服务；voice 为空时使用配置中的音色。
func NewService(cfg speechmodel.VolcengineConfig, voice string) *Service {
	return &Service{client: NewClient(cfg), voice: voice}
}

// ForSession returns a copy that tags requests with sessionID.
func (s *Service) ForSession(sessionID string) *Service {
	return &Service{client: s.client, voice: s.voice, sessionID: sessionID}
}

// Synthesize returns base64 PCM16 audio for text.
func (s *Service) Synthesize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.Synthesize(ctx, speechmodel.TTSRequest{
		SessionID: s.sessionID,
		Text:      text,
		Voice:     s.voice,
	})
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return "", fmt.Errorf("%w: %v", concierge.ErrNoAudio, err)
		}
		return "", err
	}
	if len(resp.PCM) == 0 {
		return "", concierge.ErrNoAudio
	}
	return base64.StdEncoding.EncodeToString(resp.PCM), nil
}

// Client exposes the underlying TTS client.
func (s *Service) Client() *Client {
	return s.client
}
