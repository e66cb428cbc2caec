// Package ai 基于 eino 链路与火山方舟模型实现对话服务。
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Service owns the compiled chain shared by every conversation.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

// NewService creates the chain over the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.HistoryLimit)
}

// NewServiceWithModel compiles the chain over any eino chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, historyLimit int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if historyLimit < 1 {
		historyLimit = 20
	}
	return &Service{chain: runnable, historyLimit: historyLimit}, nil
}

// Conversation starts a chat bound to p. It implements concierge.ChatService.
func (s *Service) Conversation(p persona.Persona) *Conversation {
	return &Conversation{service: s, persona: p}
}

// Conversation keeps the history of one session.
type Conversation struct {
	service *Service
	persona persona.Persona

	mu      sync.Mutex
	history []chat.Message
}

var _ concierge.ChatService = (*Conversation)(nil)

// Reply runs the chain with the recent history and records the exchange.
func (c *Conversation) Reply(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	input := map[string]any{
		"system":  c.systemPrompt(ctx),
		"history": c.historyMessages(),
		"query":   message,
	}
	c.mu.Unlock()

	response, err := c.service.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("model returned an empty message")
	}

	c.mu.Lock()
	c.history = append(c.history, chat.UserMessage(message), chat.BotMessage(response.Content))
	c.mu.Unlock()

	log.Printf("[ai] generated response for persona=%s, length=%d", c.persona.ID, len(response.Content))
	return response.Content, nil
}

func (c *Conversation) systemPrompt(ctx context.Context) string {
	base := c.persona.RenderSystemPrompt()
	if instruction := concierge.LanguageInstruction(ctx); instruction != "" {
		return base + "\n\n" + instruction
	}
	return base
}

func (c *Conversation) historyMessages() []*schema.Message {
	if len(c.history) == 0 {
		return nil
	}

	startIdx := 0
	if len(c.history) > c.service.historyLimit {
		startIdx = len(c.history) - c.service.historyLimit
	}

	history := make([]*schema.Message, 0, len(c.history)-startIdx)
	for _, msg := range c.history[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderBot:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
