package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nightjar/internal/catalog"
	"nightjar/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage nightjar settings",
	Long: `View or change settings. Changes are written to the settings file and
picked up live by a running 'nightjar serve'.

Examples:
  nightjar settings                          # show current settings
  nightjar settings set mode engineer
  nightjar settings set toggles web,tables
  nightjar settings set show_reasoning true
  nightjar settings set-key                  # store the Anthropic API key
  nightjar settings set-key wolfram          # store the Wolfram|Alpha App ID`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a settings value",
	Long: `Set a settings value.

Keys: mode, toggles, debug, show_reasoning, thinking_budget,
anthropic_api_key, wolfram_app_id, listen, data_dir.

Examples:
  nightjar settings set mode scholar
  nightjar settings set toggles web,citations
  nightjar settings set thinking_budget 8192
  nightjar settings set anthropic_api_key '$MY_KEY_VAR'`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key [anthropic|wolfram]",
	Short: "Store an API credential without echoing it",
	Long: `Prompt for an API credential with hidden input and store it in the
settings file (written 0600).

To keep the secret out of the file entirely, store an environment
indirection instead; it is resolved each time the credential is used:

  nightjar settings set anthropic_api_key '$MY_KEY_VAR'`,
	ValidArgs: []string{"anthropic", "wolfram"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE:      runSettingsSetKey,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	RunE:  runSettingsPath,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsSetKeyCmd)
	settingsCmd.AddCommand(settingsPathCmd)

	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	path, err := settings.Path()
	if err != nil {
		return err
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		fmt.Printf("# No settings file (using defaults)\n")
		fmt.Printf("# Create one with: nightjar settings set <key> <value>\n\n")
	} else {
		fmt.Printf("# %s\n\n", path)
	}

	fmt.Printf("mode: %s\n", catalog.ResolveMode(s.Mode).Name)
	fmt.Printf("toggles: [%s]\n", strings.Join(s.Toggles, ", "))
	fmt.Printf("debug: %t\n", s.Debug)
	fmt.Printf("show_reasoning: %t\n", s.ShowReasoning)
	fmt.Printf("thinking_budget: %d\n", s.ThinkingBudget)
	fmt.Printf("anthropic_api_key: %s\n", maskCredential(s.AnthropicAPIKey))
	fmt.Printf("wolfram_app_id: %s\n", maskCredential(s.WolframAppID))
	fmt.Printf("listen: %s\n", s.Listen)
	fmt.Printf("data_dir: %s\n", s.DataDir)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	s, err := loadSettings()
	if err != nil {
		return err
	}

	switch key {
	case "mode":
		if _, ok := catalog.ModeByName(value); !ok {
			return fmt.Errorf("unknown mode %q (valid: %s)", value, strings.Join(modeNames(), ", "))
		}
		s.Mode = value
	case "toggles":
		names := splitToggles(value)
		for _, name := range names {
			if _, ok := catalog.ToggleByName(name); !ok {
				return fmt.Errorf("unknown toggle %q (valid: %s)", name, strings.Join(toggleNames(), ", "))
			}
		}
		s.Toggles = names
	case "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("debug wants true or false, got %q", value)
		}
		s.Debug = b
	case "show_reasoning":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("show_reasoning wants true or false, got %q", value)
		}
		s.ShowReasoning = b
	case "thinking_budget":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("thinking_budget wants a non-negative integer, got %q", value)
		}
		s.ThinkingBudget = n
	case "anthropic_api_key":
		s.AnthropicAPIKey = value
	case "wolfram_app_id":
		s.WolframAppID = value
	case "listen":
		s.Listen = value
	case "data_dir":
		s.DataDir = value
	default:
		return fmt.Errorf("unknown key %q (valid: mode, toggles, debug, show_reasoning, thinking_budget, anthropic_api_key, wolfram_app_id, listen, data_dir)", key)
	}

	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsSetKey(cmd *cobra.Command, args []string) error {
	target := "anthropic"
	if len(args) == 1 {
		target = args[0]
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("set-key needs an interactive terminal")
	}

	label := "Anthropic API key"
	if target == "wolfram" {
		label = "Wolfram|Alpha App ID"
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return fmt.Errorf("no value entered")
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	if target == "wolfram" {
		s.WolframAppID = key
	} else {
		s.AnthropicAPIKey = key
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Printf("Saved %s.\n", label)
	return nil
}

func runSettingsPath(cmd *cobra.Command, args []string) error {
	path, err := settings.Path()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// maskCredential keeps stored secrets out of terminal output. Environment
// indirections are not secrets and print as written.
func maskCredential(v string) string {
	switch {
	case v == "":
		return "(not set)"
	case strings.HasPrefix(v, "$"):
		return v
	case len(v) <= 8:
		return "****"
	default:
		return v[:4] + "..." + v[len(v)-4:]
	}
}

func splitToggles(value string) []string {
	var names []string
	for _, part := range strings.Split(value, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func modeNames() []string {
	modes := catalog.Modes()
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, m.Name)
	}
	return names
}

func toggleNames() []string {
	toggles := catalog.Toggles()
	names := make([]string, 0, len(toggles))
	for _, t := range toggles {
		names = append(names, t.Name)
	}
	return names
}
