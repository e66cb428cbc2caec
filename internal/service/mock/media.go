package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Concept canvas, portrait like the generated videos.
const (
	conceptWidth  = 90
	conceptHeight = 160
)

// DefaultVideo is returned for images this package did not render.
const DefaultVideo = "/videos/concept-default.mp4"

// Studio renders placeholder concept images and maps each one to a canned
// video, the way the scripted demo pairs stills with clips.
type Studio struct {
	delay     time.Duration
	pollsLeft int

	mu     sync.Mutex
	videos map[string]string
}

var (
	_ concierge.ImageService = (*Studio)(nil)
	_ concierge.VideoService = (*Studio)(nil)
)

// NewStudio creates the image and video stand-in. Each video operation
// finishes after polls polls.
func NewStudio(delay time.Duration, polls int) *Studio {
	if polls < 1 {
		polls = 1
	}
	return &Studio{delay: delay, pollsLeft: polls, videos: make(map[string]string)}
}

// GenerateImages paints two gradients seeded from the aesthetic profile.
func (s *Studio) GenerateImages(ctx context.Context, prefs onsen.Preferences) ([]string, error) {
	if err := wait(ctx, s.delay); err != nil {
		return nil, err
	}

	a := prefs.AestheticProfile
	seed := sha256.Sum256([]byte(a.Atmosphere + "|" + a.ColorPalette + "|" + a.TimeOfDay))
	images := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		top := color.RGBA{seed[i*6], seed[i*6+1], seed[i*6+2], 0xff}
		bottom := color.RGBA{seed[i*6+3], seed[i*6+4], seed[i*6+5], 0xff}
		encoded, err := gradientPNG(top, bottom)
		if err != nil {
			return nil, err
		}
		b64 := base64.StdEncoding.EncodeToString(encoded)
		images = append(images, b64)

		s.mu.Lock()
		s.videos[b64] = fmt.Sprintf("/videos/concept-%x-%d.mp4", seed[:4], i+1)
		s.mu.Unlock()
	}
	return images, nil
}

// StartVideo looks up the clip paired with imageB64.
func (s *Studio) StartVideo(ctx context.Context, imageB64, _ string) (concierge.VideoOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	url, ok := s.videos[imageB64]
	s.mu.Unlock()
	if !ok {
		url = DefaultVideo
	}
	return &operation{url: url, remaining: s.pollsLeft}, nil
}

type operation struct {
	mu        sync.Mutex
	url       string
	remaining int
}

func (o *operation) Poll(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remaining--
	if o.remaining > 0 {
		return "", false, nil
	}
	return o.url, true, nil
}

func gradientPNG(top, bottom color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, conceptWidth, conceptHeight))
	for y := 0; y < conceptHeight; y++ {
		f := float64(y) / float64(conceptHeight-1)
		c := color.RGBA{
			R: mix(top.R, bottom.R, f),
			G: mix(top.G, bottom.G, f),
			B: mix(top.B, bottom.B, f),
			A: 0xff,
		}
		for x := 0; x < conceptWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode concept png: %w", err)
	}
	return buf.Bytes(), nil
}

func mix(a, b uint8, f float64) uint8 {
	return uint8(float64(a)*(1-f) + float64(b)*f)
}
