// Package settings loads and persists user settings from
// ~/.config/nightjar/settings.yaml. Credential values are stored as written;
// a value prefixed with $ names an environment variable and is resolved only
// when the credential is read, so secrets never land in the file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"nightjar/internal/catalog"
)

const settingsFile = "settings.yaml"

// DefaultListen is the loopback address the local server binds to.
const DefaultListen = "127.0.0.1:8723"

// Settings holds everything the user can configure.
type Settings struct {
	Mode            string   `mapstructure:"mode" json:"mode"`
	Toggles         []string `mapstructure:"toggles" json:"toggles"`
	Debug           bool     `mapstructure:"debug" json:"debug"`
	ShowReasoning   bool     `mapstructure:"show_reasoning" json:"show_reasoning"`
	ThinkingBudget  int      `mapstructure:"thinking_budget" json:"thinking_budget"`
	AnthropicAPIKey string   `mapstructure:"anthropic_api_key" json:"anthropic_api_key"`
	WolframAppID    string   `mapstructure:"wolfram_app_id" json:"wolfram_app_id"`
	Listen          string   `mapstructure:"listen" json:"listen"`
	DataDir         string   `mapstructure:"data_dir" json:"data_dir"`
}

// Dir returns the XDG config directory for nightjar.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func Dir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "nightjar"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "nightjar"), nil
}

// Path returns the full path of the settings file in the default config
// directory. The file may not exist yet.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFile), nil
}

// Load reads settings from the default config directory.
func Load() (*Settings, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	return LoadFrom(dir)
}

// LoadFrom reads settings from dir. A missing file yields defaults.
func LoadFrom(dir string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("show_reasoning", true)
	v.SetDefault("listen", DefaultListen)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

// Save writes the settings to the default config directory.
func (s *Settings) Save() error {
	dir, err := Dir()
	if err != nil {
		return fmt.Errorf("failed to get config dir: %w", err)
	}
	return s.SaveTo(dir)
}

// SaveTo writes settings.yaml into dir with a commented template. The file
// is 0600 because it may carry literal credentials.
func (s *Settings) SaveTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# Conversation mode (selects model, system prompt and reasoning defaults)
mode: %q

# Capability toggles enabled for new exchanges
toggles: [%s]

# Allow privileged debug toggles (adds runtime diagnostics to the system prompt)
debug: %t

# Show extended reasoning sections in rendered replies
show_reasoning: %t

# Reasoning token budget override; 0 uses the selected mode's own budget
thinking_budget: %d

# Credentials. A $NAME value is resolved from the environment when used,
# never stored literally. Empty falls back to ANTHROPIC_API_KEY.
anthropic_api_key: %q
wolfram_app_id: %q

# Local server bind address
listen: %q

# Conversation data directory; empty uses the XDG default
data_dir: %q
`, s.Mode, strings.Join(s.Toggles, ", "), s.Debug, s.ShowReasoning,
		s.ThinkingBudget, s.AnthropicAPIKey, s.WolframAppID, s.Listen, s.DataDir)

	return os.WriteFile(filepath.Join(dir, settingsFile), []byte(content), 0600)
}

// AnthropicKey resolves the endpoint credential: an explicit value (with env
// indirection expanded), falling back to $ANTHROPIC_API_KEY.
func (s *Settings) AnthropicKey() string {
	key := expandEnv(s.AnthropicAPIKey)
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	return key
}

// WolframKey resolves the Wolfram|Alpha App ID, falling back to
// $WOLFRAM_APP_ID.
func (s *Settings) WolframKey() string {
	key := expandEnv(s.WolframAppID)
	if key == "" {
		key = os.Getenv("WOLFRAM_APP_ID")
	}
	return key
}

// EnabledToggles returns the validated effective toggle set: unknown names
// dropped, prerequisites enforced, debug-gated toggles only when Debug is
// set.
func (s *Settings) EnabledToggles() []catalog.Toggle {
	return catalog.EffectiveToggles(s.Toggles, s.Debug)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		varName := v[2 : len(v)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(v, "$") {
		return os.Getenv(v[1:])
	}
	return v
}
