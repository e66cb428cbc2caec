package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	"github.com/mion-onsen/concierge/backend/internal/service/ai"
	"github.com/mion-onsen/concierge/backend/internal/service/gemini"
	"github.com/mion-onsen/concierge/backend/internal/service/mock"
	"github.com/mion-onsen/concierge/backend/internal/service/speech"
)

// 脚本模式下模拟的网络延迟。
const (
	mockChatDelay  = 500 * time.Millisecond
	mockImageDelay = 2 * time.Second
	mockVideoPolls = 1
)

// MockProviders scripts every service. Each session gets its own script
// position; the image studio is shared so stills stay paired with clips.
func MockProviders(engine config.EngineConfig, chatDelay, imageDelay time.Duration) ProviderFactory {
	studio := mock.NewStudio(imageDelay, mockVideoPolls)
	cps := playback.CharsPerSecond(engine.WordsPerMinute, engine.CharsPerWord)
	return func(_ context.Context, _ chat.Session, _ persona.Persona) (Services, error) {
		return Services{
			Chat:   mock.NewChatService(nil, chatDelay),
			Speech: mock.NewSpeechService(engine.SampleRate, cps, false),
			Images: studio,
			Video:  studio,
		}, nil
	}
}

// NewProviderFactory wires the adapters selected by cfg.Providers.
func NewProviderFactory(ctx context.Context, cfg *config.Config) (ProviderFactory, error) {
	mode := cfg.Providers.Mode
	if mode == config.ModeMock {
		log.Printf("[session] provider mode: mock")
		return MockProviders(cfg.Engine, mockChatDelay, mockImageDelay), nil
	}

	var client *gemini.Client
	if cfg.Gemini.Enabled() {
		c, err := gemini.NewClient(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		client = c
	}

	var reference *gemini.ReferenceImage
	if client != nil {
		ref, err := gemini.LoadReferenceImage(cfg.Gemini.BaseImage)
		if err != nil {
			return nil, err
		}
		reference = ref
	}

	var arkService *ai.Service
	if mode == config.ModeProd && cfg.Providers.Chat == "ark" {
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("init ark chat: %w", err)
		}
		arkService = svc
	} else if mode == config.ModeProd && client == nil {
		return nil, fmt.Errorf("%w: MION_MODE=prod with the gemini chat provider needs GEMINI_API_KEY", gemini.ErrMissingAPIKey)
	}

	var volc *speech.Service
	if cfg.Providers.Speech == "volcengine" {
		if !cfg.Speech.Enabled {
			log.Printf("[session] volcengine speech selected without credentials, replies will be silent")
		}
		volc = speech.NewService(cfg.Speech.Volcengine(cfg.Engine.SampleRate), cfg.Speech.TTSVoice)
	}

	fallback := MockProviders(cfg.Engine, mockChatDelay, mockImageDelay)
	log.Printf("[session] provider mode: %s chat=%s speech=%s gemini=%t", mode, cfg.Providers.Chat, cfg.Providers.Speech, client != nil)

	return func(ctx context.Context, session chat.Session, p persona.Persona) (Services, error) {
		services, err := fallback(ctx, session, p)
		if err != nil {
			return Services{}, err
		}

		switch {
		case mode == config.ModeDev:
			// 脚本对话，其余走真实服务
		case arkService != nil:
			services.Chat = arkService.Conversation(p)
		default:
			services.Chat = client.Chat(p)
		}

		switch {
		case volc != nil:
			services.Speech = volc.ForSession(session.ID)
		case client != nil:
			services.Speech = client.Speech()
		case mode == config.ModeProd:
			services.Speech = nil
		}

		switch {
		case client != nil:
			services.Images = client.Images(reference)
			services.Video = client.Video()
		case mode == config.ModeProd:
			// 没有 Gemini 凭证时不生成概念图，选择视频会提示配置错误
			services.Images = nil
			services.Video = nil
		}
		return services, nil
	}, nil
}
