package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
)

// Variations appended to the base prompt, one image each.
var Variations = []string{
	" Show a wide angle view with modified surrounding nature and atmosphere.",
	" Focus on the water texture and steam with the new lighting and color palette.",
}

var errNoImages = errors.New("gemini returned no image data")

// ImageService renders concept images with a Gemini image model.
type ImageService struct {
	models    contentGenerator
	model     string
	reference *ReferenceImage
}

var _ concierge.ImageService = (*ImageService)(nil)

// ImagePrompt builds the instruction shared by every variation.
func ImagePrompt(prefs onsen.Preferences, edit bool) string {
	a, w := prefs.AestheticProfile, prefs.WellbeingProfile
	lead := "Create an image of a custom onsen experience based on these preferences:"
	keep := "Show a traditional onsen and shape"
	if edit {
		lead = "Modify this onsen image to create a custom experience based on these preferences:"
		keep = "Keep the overall onsen structure but modify"
	}
	return fmt.Sprintf(`%s
- Atmosphere: '%s'
- Time of day: '%s' with '%s' lighting
- Designed for: '%s' and soothing '%s'

%s the atmosphere, lighting, colors, and surrounding elements to match these preferences. The mood should be tranquil, inviting, and deeply peaceful.`,
		lead, a.Atmosphere, a.TimeOfDay, a.ColorPalette, w.HealthGoals, w.MuscleSoreness, keep)
}

// GenerateImages renders every variation concurrently. Variations without
// image data are dropped; any request error fails the whole batch.
func (s *ImageService) GenerateImages(ctx context.Context, prefs onsen.Preferences) ([]string, error) {
	base := ImagePrompt(prefs, s.reference != nil)
	results := make([][]byte, len(Variations))

	g, gctx := errgroup.WithContext(ctx)
	for i, variation := range Variations {
		g.Go(func() error {
			parts := []*genai.Part{genai.NewPartFromText(base + variation)}
			if s.reference != nil {
				parts = append(parts, genai.NewPartFromBytes(s.reference.Data, s.reference.MIMEType))
			}
			resp, err := s.models.GenerateContent(gctx, s.model,
				[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
				&genai.GenerateContentConfig{ResponseModalities: []string{string(genai.ModalityImage)}},
			)
			if err != nil {
				return fmt.Errorf("variation %d: %w", i+1, err)
			}
			results[i] = firstInlineData(resp)
			if results[i] == nil {
				log.Printf("[gemini] no image data in variation %d", i+1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if isQuotaError(err) {
			log.Printf("[gemini] image quota exceeded: %v", err)
		}
		return nil, fmt.Errorf("gemini image: %w", err)
	}

	images := make([]string, 0, len(results))
	for _, data := range results {
		if data != nil {
			images = append(images, base64.StdEncoding.EncodeToString(data))
		}
	}
	if len(images) == 0 {
		return nil, errNoImages
	}
	return images, nil
}
