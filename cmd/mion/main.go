package main

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/model/persona"
)

var rootCmd = &cobra.Command{
	Use:          "mion",
	Short:        "MION onsen concierge",
	SilenceUsage: true,
	Long: `MION guides a guest through the onsen interview, speaks each reply with
synchronized captions and subtitles, and turns the confirmed preferences into
concept images and a looping video.`,
}

var (
	flagMode string
	flagEnv  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagMode, "mode", "", "provider mode: mock, dev or prod (overrides MION_MODE)")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env-file", ".env", "dotenv file to load before reading the environment")
}

// loadConfig reads .env, the environment and the persistent flags.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(flagEnv); err != nil {
		log.Printf("warning: failed to load %s: %v", flagEnv, err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(flagMode) != "" {
		mode, err := config.ParseMode(flagMode)
		if err != nil {
			return nil, err
		}
		cfg.Providers.Mode = mode
	}
	return cfg, nil
}

// loadPersonas merges the built-in concierge with the optional YAML file.
func loadPersonas(cfg *config.Config) (*persona.MemoryStore, error) {
	items := persona.Seed()
	if cfg.PersonaFile != "" {
		extra, err := persona.LoadFile(cfg.PersonaFile)
		if err != nil {
			return nil, err
		}
		items = append(items, extra...)
		log.Printf("loaded %d personas from %s", len(extra), cfg.PersonaFile)
	}
	return persona.NewMemoryStore(items), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
