// Package mock 提供脚本化的对话、语音、图片与视频服务，用于离线开发与演示。
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Responses is the scripted interview. The ninth entry carries the
// preferences block; the last one repeats forever.
var Responses = []string{
	"Konnichiwa, welcome. I am MION, your personal onsen concierge. My purpose is to help you create the perfect hot spring experience to soothe your body and mind.",
	"To create your personalized onsen experience, I need to understand your needs. Let's begin with your well-being profile. First, could you tell me about your skin type? Is it dry, oily, sensitive, or combination?",
	"Thank you. Now, do you have any muscle soreness or tension? If so, where do you feel it most?",
	"I understand. What is your current stress level? Would you say it's low, moderate, or high?",
	"Perfect. What water temperature do you prefer? Hot, warm, or moderate?",
	"Excellent. Now for the aesthetic profile. What kind of atmosphere appeals to you? For example, serene and secluded, traditional cedar wood, modern minimalist, or natural outdoor setting?",
	"Wonderful choice. What color palette would you like for your onsen scene? For example, warm autumn tones, cool blues and greens, earthy browns, or vibrant sunset colors?",
	"Beautiful. Finally, what time of day would you prefer? Misty morning, golden hour sunset, or starry night?",
	"Thank you for sharing all that information. Let me summarize what you've told me to make sure I have everything correct. Based on your preferences, here is your personalized onsen profile:\n\n" +
		"```json\n" +
		`{
  "wellbeingProfile": {
    "skinType": "sensitive",
    "muscleSoreness": "shoulders and neck",
    "stressLevel": "moderate",
    "waterTemperature": "warm",
    "healthGoals": "relaxation and stress relief"
  },
  "aestheticProfile": {
    "atmosphere": "serene natural outdoor setting",
    "colorPalette": "warm sunset tones with purple accents",
    "timeOfDay": "golden hour"
  }
}` + "\n```\n\n" +
		"Thank you. I have everything I need. Now, allow me to prepare a visual representation of your unique onsen. Please give me a moment.",
	"I hope you enjoy your personalized onsen experience. The warm waters and beautiful surroundings should help you relax and rejuvenate. Enjoy your virtual bath.",
}

// ChatService replays a fixed script, one entry per call.
type ChatService struct {
	script []string
	delay  time.Duration

	mu    sync.Mutex
	index int
}

var _ concierge.ChatService = (*ChatService)(nil)

// NewChatService replays script (Responses when empty) after delay.
func NewChatService(script []string, delay time.Duration) *ChatService {
	if len(script) == 0 {
		script = Responses
	}
	return &ChatService{script: script, delay: delay}
}

// Reply ignores message and returns the next scripted line.
func (s *ChatService) Reply(ctx context.Context, _ string) (string, error) {
	if err := wait(ctx, s.delay); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := s.script[s.index]
	if s.index < len(s.script)-1 {
		s.index++
	}
	return reply, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
