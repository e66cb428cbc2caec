package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// SpeechService synthesizes with a Gemini TTS model, which returns raw
// PCM16 mono at 24 kHz.
type SpeechService struct {
	models contentGenerator
	model  string
	voice  string
}

var _ concierge.SpeechService = (*SpeechService)(nil)

// Synthesize returns base64 PCM, or ErrNoAudio for blank text and empty responses.
func (s *SpeechService) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", concierge.ErrNoAudio
	}

	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	})
	if err != nil {
		if isQuotaError(err) {
			log.Printf("[gemini] tts quota exceeded: %v", err)
		}
		return "", fmt.Errorf("gemini tts: %w", err)
	}

	data := firstInlineData(resp)
	if len(data) == 0 {
		log.Printf("[gemini] tts response carried no audio")
		return "", concierge.ErrNoAudio
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
