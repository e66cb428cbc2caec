package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mion-onsen/concierge/backend/internal/model/speech"
)

// Mode 选择对话、语音、图片与视频服务的真实或脚本实现。
type Mode string

const (
	ModeMock Mode = "mock"
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeMock:
		return ModeMock, nil
	case ModeDev:
		return ModeDev, nil
	case ModeProd, "":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid MION_MODE value %q: want mock, dev or prod", raw)
	}
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Providers ProviderConfig
	Gemini    GeminiConfig
	AI        AIConfig
	Speech    SpeechConfig
	Telemetry TelemetryConfig
	// PersonaFile 可选的角色 YAML 文件。
	PersonaFile string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProviderConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speechCfg, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:      server,
		Engine:      engine,
		Providers:   providers,
		Gemini:      loadGeminiConfig(),
		AI:          ai,
		Speech:      speechCfg,
		Telemetry:   loadTelemetryConfig(),
		PersonaFile: strings.TrimSpace(os.Getenv("MION_PERSONA_FILE")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	SessionTTL  time.Duration
	TurnTimeout time.Duration
}

func loadServerConfig() (ServerConfig, error) {
	addr, err := ParseAddr(os.Getenv("PORT"))
	if err != nil {
		return ServerConfig{}, err
	}

	ttl, err := parseDurationEnv("MION_SESSION_TTL", 30*time.Minute)
	if err != nil {
		return ServerConfig{}, err
	}

	turnTimeout, err := parseDurationEnv("MION_TURN_TIMEOUT", 2*time.Minute)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{Addr: addr, SessionTTL: ttl, TurnTimeout: turnTimeout}, nil
}

// ParseAddr 解析监听地址，支持 "8080"、":8080" 与 "127.0.0.1:8080"。
func ParseAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// EngineConfig 控制打字、字幕与视频轮询的节奏。
type EngineConfig struct {
	TypingInterval    time.Duration
	WordsPerMinute    int
	CharsPerWord      int
	SubtitleLinger    time.Duration
	VideoPollInterval time.Duration
	VideoMaxPolls     int
	SampleRate        int
	// StartMuted 启动时即静音输出。
	StartMuted bool
}

func loadEngineConfig() (EngineConfig, error) {
	typing, err := parseDurationEnv("MION_TYPING_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return EngineConfig{}, err
	}
	linger, err := parseDurationEnv("MION_SUBTITLE_LINGER", 2*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}
	pollInterval, err := parseDurationEnv("MION_VIDEO_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	wpm, err := parseIntEnv("MION_WPM", 140)
	if err != nil {
		return EngineConfig{}, err
	}
	cpw, err := parseIntEnv("MION_CHARS_PER_WORD", 5)
	if err != nil {
		return EngineConfig{}, err
	}
	maxPolls, err := parseIntEnv("MION_VIDEO_MAX_POLLS", 60)
	if err != nil {
		return EngineConfig{}, err
	}
	rate, err := parseIntEnv("MION_SAMPLE_RATE", 24000)
	if err != nil {
		return EngineConfig{}, err
	}

	muted, err := parseBoolEnv("MION_START_MUTED", false)
	if err != nil {
		return EngineConfig{}, err
	}

	if wpm < 1 || cpw < 1 || maxPolls < 1 || rate < 1 {
		return EngineConfig{}, fmt.Errorf("engine settings must be positive (wpm=%d chars_per_word=%d max_polls=%d sample_rate=%d)", wpm, cpw, maxPolls, rate)
	}

	return EngineConfig{
		TypingInterval:    typing,
		WordsPerMinute:    wpm,
		CharsPerWord:      cpw,
		SubtitleLinger:    linger,
		VideoPollInterval: pollInterval,
		VideoMaxPolls:     maxPolls,
		SampleRate:        rate,
		StartMuted:        muted,
	}, nil
}

// ProviderConfig 选择运行模式与具体供应商。
type ProviderConfig struct {
	Mode   Mode
	Chat   string
	Speech string
}

func loadProviderConfig() (ProviderConfig, error) {
	mode, err := ParseMode(os.Getenv("MION_MODE"))
	if err != nil {
		return ProviderConfig{}, err
	}

	chatProvider := strings.ToLower(getEnvOrDefault("MION_CHAT_PROVIDER", "gemini"))
	if chatProvider != "gemini" && chatProvider != "ark" {
		return ProviderConfig{}, fmt.Errorf("invalid MION_CHAT_PROVIDER value %q: want gemini or ark", chatProvider)
	}

	speechProvider := strings.ToLower(getEnvOrDefault("MION_SPEECH_PROVIDER", "gemini"))
	if speechProvider != "gemini" && speechProvider != "volcengine" {
		return ProviderConfig{}, fmt.Errorf("invalid MION_SPEECH_PROVIDER value %q: want gemini or volcengine", speechProvider)
	}

	return ProviderConfig{Mode: mode, Chat: chatProvider, Speech: speechProvider}, nil
}

// GeminiConfig 描述 Gemini 相关配置。
type GeminiConfig struct {
	APIKey     string
	ChatModel  string
	TTSModel   string
	Voice      string
	ImageModel string
	VideoModel string
	// BaseImage 参考温泉图片路径，为空时仅凭提示词生成。
	BaseImage string
}

// Enabled 表示是否提供了 API Key。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadGeminiConfig() GeminiConfig {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	return GeminiConfig{
		APIKey:     apiKey,
		ChatModel:  getEnvOrDefault("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
		TTSModel:   getEnvOrDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		Voice:      getEnvOrDefault("GEMINI_TTS_VOICE", "Kore"),
		ImageModel: getEnvOrDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VideoModel: getEnvOrDefault("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		BaseImage:  strings.TrimSpace(os.Getenv("MION_BASE_IMAGE")),
	}
}

// SpeechConfig 描述火山引擎语音合成配置。
type SpeechConfig struct {
	AppID       string
	AccessToken string
	APIKey      string
	BaseURL     string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     time.Duration
	Enabled     bool
}

// Volcengine converts the section into the client settings.
func (c SpeechConfig) Volcengine(sampleRate int) speech.VolcengineConfig {
	return speech.VolcengineConfig{
		AppID:       c.AppID,
		AccessToken: c.AccessToken,
		APIKey:      c.APIKey,
		Endpoint:    c.BaseURL,
		Voice:       c.TTSVoice,
		Speed:       c.TTSSpeed,
		Volume:      c.TTSVolume,
		Language:    c.TTSLanguage,
		SampleRate:  sampleRate,
		Timeout:     c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		BaseURL:     getEnvOrDefault("SPEECH_BASE_URL", ""),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// TelemetryConfig 描述 OTLP 导出配置。
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

func loadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "mion-concierge"),
	}
}
