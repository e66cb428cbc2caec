package concierge

import (
	"context"
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
)

var (
	// ErrNoAudio 表示语音服务本轮没有产出音频，属于正常降级。
	ErrNoAudio = errors.New("speech service returned no audio")
	// ErrVideoUnconfigured marks video failures caused by missing or rejected credentials.
	ErrVideoUnconfigured = errors.New("video service is not configured")
)

// ChatService produces the concierge's reply to one user message. The
// implementation keeps its own conversational context.
type ChatService interface {
	Reply(ctx context.Context, message string) (string, error)
}

// SpeechService turns text into base64 PCM16 mono audio at 24 kHz.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// ImageService renders onsen concept images (base64 PNG) from preferences.
type ImageService interface {
	GenerateImages(ctx context.Context, prefs onsen.Preferences) ([]string, error)
}

// VideoService starts a looping video generation from one concept image.
type VideoService interface {
	StartVideo(ctx context.Context, imageB64, mimeType string) (VideoOperation, error)
}

// VideoFetcher is implemented by video services whose result links need
// credentials. The orchestrator keeps such links private and serves the
// bytes itself.
type VideoFetcher interface {
	FetchVideo(ctx context.Context, source string) (data []byte, mimeType string, err error)
}

// VideoOperation is a long-running video generation.
type VideoOperation interface {
	// Poll refreshes the operation. When done is true, url holds the result.
	Poll(ctx context.Context) (url string, done bool, err error)
}

type languageKey struct{}

// WithLanguage asks the chat service to answer in tag.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, languageKey{}, tag)
}

// LanguageFromContext returns the requested reply language, if any.
func LanguageFromContext(ctx context.Context) (language.Tag, bool) {
	tag, ok := ctx.Value(languageKey{}).(language.Tag)
	if !ok || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// LanguageInstruction returns the system-prompt suffix for the requested
// reply language, or "" when none was requested.
func LanguageInstruction(ctx context.Context) string {
	tag, ok := LanguageFromContext(ctx)
	if !ok {
		return ""
	}
	return "Always respond in " + display.English.Tags().Name(tag) + "."
}
