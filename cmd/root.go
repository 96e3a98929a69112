package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nightjar/internal/settings"
	"nightjar/internal/store"
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Emit debug logs")
}

var rootCmd = &cobra.Command{
	Use:   "nightjar",
	Short: "Desktop chat client for conversational LLM use",
	Long: `nightjar holds multi-turn conversations with an LLM endpoint: replies
stream in as rendered markdown, reasoning and tool calls are shown as
they happen, and every exchange is persisted locally.

Examples:
  nightjar serve                           # run the local surface the desktop shell talks to
  nightjar ask "Why is the sky blue?"      # one-shot question, nothing persisted
  nightjar conversations                   # list saved conversations
  nightjar conversations search "sqlite"   # full-text search across messages
  nightjar settings set mode engineer      # switch the default mode
  nightjar settings set-key               # store the API key (hidden input)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var verbose bool

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadSettings() (*settings.Settings, error) {
	s, err := settings.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, nil
}

func openConversationStore(s *settings.Settings) (*store.Store, error) {
	dir := s.DataDir
	if dir == "" {
		var err error
		dir, err = store.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
	}
	st, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	return st, nil
}
