package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// VideoPrompt drives the gentle looping camera move.
const VideoPrompt = "The camera moves gently left and right like is admiring the scene trying to catch all the details from it. The sound has to be armonious and resembling nature. Almost like a spa massage."

var errNoVideoLink = errors.New("video generation succeeded, but no download link was found")

// VideoMIMEType is what Veo hands back.
const VideoMIMEType = "video/mp4"

// VideoService starts Veo generations. The first frame doubles as the last
// so the clip loops. Finished clips are downloaded server-side; the link
// handed to the orchestrator never carries the API key.
type VideoService struct {
	videos     videoGenerator
	operations operationGetter
	files      fileDownloader
	model      string
	apiKey     string
}

var (
	_ concierge.VideoService = (*VideoService)(nil)
	_ concierge.VideoFetcher = (*VideoService)(nil)
)

// StartVideo submits the generation and returns a pollable handle.
func (s *VideoService) StartVideo(ctx context.Context, imageB64, mimeType string) (concierge.VideoOperation, error) {
	if s.apiKey == "" {
		return nil, concierge.ErrVideoUnconfigured
	}
	raw, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return nil, fmt.Errorf("decode concept image: %w", err)
	}
	frame := &genai.Image{ImageBytes: raw, MIMEType: mimeType}

	op, err := s.videos.GenerateVideos(ctx, s.model, VideoPrompt, frame, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    "9:16",
		LastFrame:      frame,
	})
	if err != nil {
		return nil, classifyVideoError(err)
	}
	return &videoOperation{svc: s, op: op}, nil
}

type videoOperation struct {
	svc *VideoService
	op  *genai.GenerateVideosOperation
}

// Poll refreshes the operation and returns the file URI once done.
func (o *videoOperation) Poll(ctx context.Context) (string, bool, error) {
	if !o.op.Done {
		next, err := o.svc.operations.GetVideosOperation(ctx, o.op, nil)
		if err != nil {
			return "", false, classifyVideoError(err)
		}
		o.op = next
	}
	if len(o.op.Error) > 0 {
		return "", true, fmt.Errorf("veo operation failed: %v", o.op.Error)
	}
	if !o.op.Done {
		return "", false, nil
	}

	resp := o.op.Response
	if resp == nil || len(resp.GeneratedVideos) == 0 || resp.GeneratedVideos[0].Video == nil || resp.GeneratedVideos[0].Video.URI == "" {
		return "", true, errNoVideoLink
	}
	return resp.GeneratedVideos[0].Video.URI, true, nil
}

// FetchVideo downloads a finished clip through the authenticated client.
func (s *VideoService) FetchVideo(ctx context.Context, source string) ([]byte, string, error) {
	if s.files == nil || s.apiKey == "" {
		return nil, "", concierge.ErrVideoUnconfigured
	}
	data, err := s.files.Download(ctx, genai.NewDownloadURIFromVideo(&genai.Video{URI: source}), nil)
	if err != nil {
		return nil, "", classifyVideoError(err)
	}
	if len(data) == 0 {
		return nil, "", errNoVideoLink
	}
	return data, VideoMIMEType, nil
}

func classifyVideoError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "API_KEY") || strings.Contains(msg, "API key") || strings.Contains(msg, "PERMISSION_DENIED") {
		return fmt.Errorf("%w: %v", concierge.ErrVideoUnconfigured, err)
	}
	return fmt.Errorf("gemini video: %w", err)
}
