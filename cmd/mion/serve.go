package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mion-onsen/concierge/backend/internal/config"
	"github.com/mion-onsen/concierge/backend/internal/handler"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	chatService "github.com/mion-onsen/concierge/backend/internal/service/chat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, SSE and WebSocket API",
	RunE:  runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, e.g. :8080 (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		addr, err := config.ParseAddr(serveAddr)
		if err != nil {
			return err
		}
		cfg.Server.Addr = addr
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("warning: tracing shutdown: %v", err)
		}
	}()

	personas, err := loadPersonas(cfg)
	if err != nil {
		return err
	}
	providers, err := chatService.NewProviderFactory(ctx, cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics("mion")
	sessions := chatService.NewService(chatService.Options{
		Personas:    personas,
		Providers:   providers,
		Engine:      cfg.Engine,
		TTL:         cfg.Server.SessionTTL,
		TurnTimeout: cfg.Server.TurnTimeout,
		Metrics:     metrics,
		VideoPath:   handler.VideoPath,
	})
	defer sessions.Shutdown()
	sessions.StartJanitor(ctx, janitorInterval(cfg.Server.SessionTTL))

	router := handler.NewRouter(handler.Deps{
		Personas:   personas,
		Sessions:   sessions,
		Metrics:    metrics,
		SampleRate: cfg.Engine.SampleRate,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Printf("MION concierge listening on %s (mode=%s)", cfg.Server.Addr, cfg.Providers.Mode)
	return runServer(ctx, srv)
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return interval
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
