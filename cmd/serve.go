package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nightjar/internal/exchange"
	"nightjar/internal/llm"
	"nightjar/internal/server"
	"nightjar/internal/settings"
	"nightjar/internal/tools"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP surface for the desktop shell",
	Long: `Run the loopback HTTP server the desktop shell talks to.

Endpoints:
  GET    /healthz
  GET    /api/catalog
  GET    /api/settings
  PUT    /api/settings
  GET    /api/conversations
  POST   /api/conversations
  GET    /api/conversations/search
  GET    /api/conversations/:id
  PATCH  /api/conversations/:id
  DELETE /api/conversations/:id
  POST   /api/conversations/:id/messages    (SSE)
  POST   /api/conversations/:id/regenerate  (SSE)
  PUT    /api/conversations/:id/messages/:index

Edits to the settings file are picked up while the server runs; the
endpoint client is rebuilt with the new credentials and defaults.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Bind address (default from settings, "+settings.DefaultListen+")")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		return err
	}

	st, err := openConversationStore(s)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := buildRegistry(s)
	orch := exchange.New(st, registry, exchange.Config{
		Client:   endpointClient(s),
		Settings: s,
	})
	srv := server.New(st, orch, s, "")

	settingsDir, err := settings.Dir()
	if err != nil {
		return err
	}
	// A fresh install has no config directory yet; the watcher needs one.
	if err := os.MkdirAll(settingsDir, 0755); err != nil {
		return err
	}
	unwatch, err := settings.Watch(settingsDir, func(next *settings.Settings) {
		orch.Reconfigure(exchange.Config{
			Client:   endpointClient(next),
			Settings: next,
		})
		srv.UpdateSettings(next)
		log.Info().Msg("settings reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("settings watch unavailable; restart to apply changes")
	} else {
		defer unwatch()
	}

	addr := serveListen
	if addr == "" {
		addr = s.Listen
	}
	if addr == "" {
		addr = settings.DefaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()
	log.Info().Str("addr", addr).Msg("nightjar listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	stop()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	orch.Wait()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// endpointClient builds the retrying endpoint client from the configured
// credential. A missing credential yields nil so exchanges fail before any
// network attempt.
func endpointClient(s *settings.Settings) llm.Streamer {
	key := s.AnthropicKey()
	if key == "" {
		return nil
	}
	return llm.WithRetry(llm.NewClient(key), llm.DefaultRetryConfig())
}

func buildRegistry(s *settings.Settings) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewFetchPageTool())
	registry.Register(tools.NewWolframTool(s.WolframKey()))
	return registry
}
