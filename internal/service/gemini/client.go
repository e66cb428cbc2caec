// Package gemini 基于 google.golang.org/genai 实现对话、语音、图片与视频服务。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
)

// ErrMissingAPIKey is returned by NewClient when no key is configured.
var ErrMissingAPIKey = errors.New("gemini api key not configured")

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type videoGenerator interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationGetter interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type fileDownloader interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// Client holds one genai client and hands out per-concern services.
type Client struct {
	cfg        config.GeminiConfig
	models     contentGenerator
	videos     videoGenerator
	operations operationGetter
	files      fileDownloader
}

// NewClient dials the Gemini API backend.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrMissingAPIKey
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cfg: cfg, models: c.Models, videos: c.Models, operations: c.Operations, files: c.Files}, nil
}

// Chat starts a fresh conversation for one session.
func (c *Client) Chat(p persona.Persona) *ChatService {
	return &ChatService{models: c.models, model: c.cfg.ChatModel, system: p.RenderSystemPrompt()}
}

// Speech returns the TTS adapter.
func (c *Client) Speech() *SpeechService {
	return &SpeechService{models: c.models, model: c.cfg.TTSModel, voice: c.cfg.Voice}
}

// Images returns the concept image adapter. reference may be nil, in which
// case images are generated from the prompt alone.
func (c *Client) Images(reference *ReferenceImage) *ImageService {
	return &ImageService{models: c.models, model: c.cfg.ImageModel, reference: reference}
}

// Video returns the Veo adapter.
func (c *Client) Video() *VideoService {
	return &VideoService{
		videos:     c.videos,
		operations: c.operations,
		files:      c.files,
		model:      c.cfg.VideoModel,
		apiKey:     c.cfg.APIKey,
	}
}

// ReferenceImage is the base onsen photo the concept images are edited from.
type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// LoadReferenceImage reads path; an empty path yields nil.
func LoadReferenceImage(path string) (*ReferenceImage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read base image: %w", err)
	}
	return &ReferenceImage{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

// firstInlineData returns the first binary part of the first candidate.
func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota")
}
