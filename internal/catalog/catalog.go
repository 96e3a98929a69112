// Package catalog defines the built-in conversation modes and feature
// toggles. Modes bundle a model, generation parameters and a prompt
// template; toggles contribute prompt fragments and may own a tool.
// Both catalogs are embedded and read-only at runtime.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed modes.yaml
var modesYAML []byte

//go:embed toggles.yaml
var togglesYAML []byte

// Mode is a named conversation style.
type Mode struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`

	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// Reasoning marks the mode as reasoning-capable; ReasoningBudget is
	// the mode's default thinking budget in tokens.
	Reasoning       bool `yaml:"reasoning,omitempty"`
	ReasoningBudget int  `yaml:"reasoning_budget,omitempty"`

	Prompt string `yaml:"prompt"`
}

// Toggle is an optional capability the user can switch on per settings.
// Requires names another toggle that must be effective first. Debug
// restricts the toggle to sessions with the privileged debug flag.
// Tool names the tool this toggle exposes to the model, if any.
type Toggle struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`
	Prompt      string `yaml:"prompt,omitempty"`
	Requires    string `yaml:"requires,omitempty"`
	Debug       bool   `yaml:"debug,omitempty"`
	Tool        string `yaml:"tool,omitempty"`
}

var (
	modes   = mustParseModes(modesYAML)
	toggles = mustParseToggles(togglesYAML)
)

func mustParseModes(data []byte) []Mode {
	var doc struct {
		Modes []Mode `yaml:"modes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("catalog: bad modes.yaml: %v", err))
	}
	if len(doc.Modes) == 0 {
		panic("catalog: modes.yaml defines no modes")
	}
	return doc.Modes
}

func mustParseToggles(data []byte) []Toggle {
	var doc struct {
		Toggles []Toggle `yaml:"toggles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("catalog: bad toggles.yaml: %v", err))
	}
	return doc.Toggles
}

// Modes returns every cataloged mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ModeByName looks up a mode by its name.
func ModeByName(name string) (Mode, bool) {
	for _, m := range modes {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

// DefaultMode returns the first cataloged mode.
func DefaultMode() Mode {
	return modes[0]
}

// ResolveMode returns the named mode, falling back to the default when
// the name is unknown or empty (a stale selection must never block an
// exchange).
func ResolveMode(name string) Mode {
	if m, ok := ModeByName(name); ok {
		return m
	}
	return DefaultMode()
}

// Toggles returns every cataloged toggle in declaration order.
func Toggles() []Toggle {
	out := make([]Toggle, len(toggles))
	copy(out, toggles)
	return out
}

// ToggleByName looks up a toggle by its name.
func ToggleByName(name string) (Toggle, bool) {
	for _, t := range toggles {
		if t.Name == name {
			return t, true
		}
	}
	return Toggle{}, false
}

// EffectiveToggles filters an enabled set down to the toggles that may
// actually take effect: unknown names are dropped, debug-gated toggles
// need debugAllowed, and a toggle whose prerequisite did not itself
// survive is excluded. The result preserves catalog order. Both the
// settings layer and request assembly run this, so a prerequisite
// disabled after its dependent was enabled still disarms the dependent.
func EffectiveToggles(enabled []string, debugAllowed bool) []Toggle {
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}

	alive := make(map[string]bool)
	for _, t := range toggles {
		if want[t.Name] && (!t.Debug || debugAllowed) {
			alive[t.Name] = true
		}
	}
	// Drop toggles with dead prerequisites until stable. Requirement
	// chains are short, so this settles in a pass or two.
	for {
		changed := false
		for _, t := range toggles {
			if alive[t.Name] && t.Requires != "" && !alive[t.Requires] {
				delete(alive, t.Name)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var out []Toggle
	for _, t := range toggles {
		if alive[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// ActiveTools returns the names of the tools owned by the given
// effective toggles, in catalog order.
func ActiveTools(effective []Toggle) []string {
	var names []string
	for _, t := range effective {
		if t.Tool != "" {
			names = append(names, t.Tool)
		}
	}
	return names
}
