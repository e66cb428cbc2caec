package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/playback"
	"github.com/mion-onsen/concierge/backend/internal/service/concierge"
	"github.com/mion-onsen/concierge/backend/internal/service/gemini"
	"github.com/mion-onsen/concierge/backend/internal/service/mock"
	"github.com/mion-onsen/concierge/backend/internal/service/speech"
)

var sayCmd = &cobra.Command{
	Use:   "say TEXT",
	Short: "Synthesize TEXT with the configured speech provider and write a WAV file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSay,
}

var (
	sayOut     string
	sayTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(sayCmd)
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "mion.wav", "output WAV file")
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", time.Minute, "synthesis timeout")
}

func runSay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := speechService(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sayTimeout)
	defer cancel()

	text := strings.Join(args, " ")
	start := time.Now()
	payload, err := svc.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}

	f, err := os.Create(sayOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := playback.WriteWAV(f, pcm, cfg.Engine.SampleRate); err != nil {
		return err
	}

	clip, _ := playback.DecodePCM16(pcm, cfg.Engine.SampleRate)
	log.Printf("wrote %s: %s of audio in %s", sayOut, clip.Duration().Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
	return nil
}

// speechService picks the same speech adapter a session would get.
func speechService(ctx context.Context, cfg *config.Config) (concierge.SpeechService, error) {
	if cfg.Providers.Mode == config.ModeMock {
		return mock.NewSpeechService(cfg.Engine.SampleRate,
			playback.CharsPerSecond(cfg.Engine.WordsPerMinute, cfg.Engine.CharsPerWord), false), nil
	}
	if cfg.Providers.Speech == "volcengine" {
		return speech.NewService(cfg.Speech.Volcengine(cfg.Engine.SampleRate), cfg.Speech.TTSVoice), nil
	}
	client, err := gemini.NewClient(ctx, cfg.Gemini)
	if err != nil {
		return nil, err
	}
	return client.Speech(), nil
}
