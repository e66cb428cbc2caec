package mock

import (
	"context"
	"encoding/base64"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mion-onsen/concierge/backend/internal/playback"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// maxSpeech caps the synthetic clip length.
const maxSpeech = 20 * time.Second

// SpeechService renders a quiet hum whose length follows the text, so
// subtitles still have a decoded duration to fit.
type SpeechService struct {
	sampleRate     int
	charsPerSecond float64
	silent         bool
}

var _ concierge.SpeechService = (*SpeechService)(nil)

// NewSpeechService creates the synthetic voice. silent makes every call
// report ErrNoAudio.
func NewSpeechService(sampleRate int, charsPerSecond float64, silent bool) *SpeechService {
	if sampleRate <= 0 {
		sampleRate = playback.DefaultSampleRate
	}
	if charsPerSecond <= 0 {
		charsPerSecond = playback.CharsPerSecond(playback.DefaultWordsPerMinute, playback.DefaultCharsPerWord)
	}
	return &SpeechService{sampleRate: sampleRate, charsPerSecond: charsPerSecond, silent: silent}
}

// Synthesize returns base64 PCM16 for text.
func (s *SpeechService) Synthesize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if s.silent || text == "" {
		return "", concierge.ErrNoAudio
	}

	length := time.Duration(float64(utf8.RuneCountInString(text)) / s.charsPerSecond * float64(time.Second))
	if length > maxSpeech {
		length = maxSpeech
	}
	samples := make([]float32, int(length.Seconds()*float64(s.sampleRate)))
	for i := range samples {
		t := float64(i) / float64(s.sampleRate)
		// 220 Hz 正弦，随时间缓慢起伏
		envelope := 0.5 - 0.5*math.Cos(2*math.Pi*t/1.5)
		samples[i] = float32(0.05 * envelope * math.Sin(2*math.Pi*220*t))
	}
	return base64.StdEncoding.EncodeToString(playback.EncodePCM16(samples)), nil
}
