package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// AIConfig 描述 Ark 大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature, topP *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		// 与 Gemini 侧保持一致的低温度。
		t := 0.3
		temperature = &t
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit, err := parseIntEnv("ARK_HISTORY_LIMIT", 20)
	if err != nil {
		return AIConfig{}, err
	}
	if historyLimit < 1 {
		historyLimit = 1
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        modelName,
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
	}, nil
}
