package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mion-onsen/concierge/backend/internal/playback"
	chatService "github.com/mion-onsen/concierge/backend/internal/service/chat"
	"github.com/mion-onsen/concierge/backend/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to MION in the terminal",
	Long: `Opens a terminal conversation with the concierge. Replies are spoken through
the default audio output when built with -tags portaudio and revealed with
synchronized captions and subtitles.`,
	RunE: runChat,
}

var (
	chatMute     bool
	chatPersona  string
	chatLanguage string
	chatLogFile  string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatMute, "mute", false, "start with audio muted")
	chatCmd.Flags().StringVar(&chatPersona, "persona", "", "persona id (default: the built-in concierge)")
	chatCmd.Flags().StringVar(&chatLanguage, "lang", "", "reply language as a BCP 47 tag, e.g. ja or es")
	chatCmd.Flags().StringVar(&chatLogFile, "log", "", "write logs to this file while the UI runs (default: discard)")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chatMute {
		cfg.Engine.StartMuted = true
	}

	personas, err := loadPersonas(cfg)
	if err != nil {
		return err
	}
	providers, err := chatService.NewProviderFactory(ctx, cfg)
	if err != nil {
		return err
	}

	restore, err := redirectLogs(chatLogFile)
	if err != nil {
		return err
	}
	defer restore()

	mixer := playback.DefaultMixer()
	mixer.SetMuted(cfg.Engine.StartMuted)
	defer func() {
		if err := mixer.Close(); err != nil {
			log.Printf("warning: close audio output: %v", err)
		}
	}()

	sessions := chatService.NewService(chatService.Options{
		Personas:    personas,
		Providers:   providers,
		Engine:      cfg.Engine,
		TurnTimeout: cfg.Server.TurnTimeout,
		Mixer:       mixer,
	})
	defer sessions.Shutdown()

	session, err := sessions.CreateSession(ctx, chatPersona, chatLanguage)
	if err != nil {
		return err
	}
	orch, err := sessions.Get(session.ID)
	if err != nil {
		return err
	}

	events, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	return tui.Run(ctx, orch, events, true)
}

// redirectLogs keeps log output from tearing the full-screen UI.
func redirectLogs(path string) (func(), error) {
	prev := log.Writer()
	if path == "" {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(prev) }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(prev)
		_ = f.Close()
	}, nil
}
