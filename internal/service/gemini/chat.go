package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// ChatTemperature keeps the concierge's answers steady.
const ChatTemperature float32 = 0.3

// ChatService keeps one Gemini conversation. History only grows on success.
type ChatService struct {
	models contentGenerator
	model  string
	system string

	mu      sync.Mutex
	history []*genai.Content
}

var _ concierge.ChatService = (*ChatService)(nil)

// Reply sends message with the accumulated history.
func (s *ChatService) Reply(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	s.mu.Unlock()

	user := genai.NewContentFromText(message, genai.RoleUser)
	contents = append(contents, user)

	resp, err := s.models.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(ChatTemperature),
		SystemInstruction: genai.NewContentFromText(s.systemPrompt(ctx), genai.RoleUser),
	})
	if err != nil {
		if isQuotaError(err) {
			log.Printf("[gemini] chat quota exceeded: %v", err)
		}
		return "", fmt.Errorf("gemini chat: %w", err)
	}

	text := responseText(resp)
	s.mu.Lock()
	s.history = append(s.history, user, genai.NewContentFromText(text, genai.RoleModel))
	s.mu.Unlock()
	return text, nil
}

// Turns returns the number of completed exchanges.
func (s *ChatService) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

func (s *ChatService) systemPrompt(ctx context.Context) string {
	if instruction := concierge.LanguageInstruction(ctx); instruction != "" {
		return strings.TrimSpace(s.system) + "\n\n" + instruction
	}
	return s.system
}
