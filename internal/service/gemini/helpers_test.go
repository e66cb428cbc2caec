package gemini

import "github.com/mion-onsen/concierge/backend/internal/config"

func testConfig() config.GeminiConfig {
	return config.GeminiConfig{
		APIKey:     "test-key",
		ChatModel:  "gemini-2.5-flash",
		TTSModel:   "gemini-2.5-flash-preview-tts",
		Voice:      "Kore",
		ImageModel: "gemini-2.5-flash-image",
		VideoModel: "veo-3.1-fast-generate-preview",
	}
}
