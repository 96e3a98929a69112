package exchange

import (
	"fmt"
	"strings"

	"nightjar/internal/catalog"
)

// identityPreamble opens every system prompt, before the mode template and
// toggle fragments.
const identityPreamble = `You are Nightjar, a desktop assistant for focused multi-turn conversation. Answer in GitHub-flavored markdown; put code in fenced blocks with a language tag. Be direct about what you do not know.`

// titleInstruction drives the one-shot title request.
const titleInstruction = `Write a title of at most six words for a conversation that starts with the user's message. Reply with only the title, nothing else.`

// systemPrompt composes the identity preamble, the mode template and the
// non-empty fragments of the effective toggles in catalog order. Debug-gated
// toggles are skipped here; their runtime-built fragment arrives via
// diagnostics and is appended last.
func systemPrompt(mode catalog.Mode, effective []catalog.Toggle, diagnostics string) string {
	var b strings.Builder
	b.WriteString(identityPreamble)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(mode.Prompt))
	for _, t := range effective {
		if t.Debug {
			continue
		}
		fragment := strings.TrimSpace(t.Prompt)
		if fragment == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(fragment)
	}
	if diagnostics != "" {
		b.WriteString("\n\n")
		b.WriteString(diagnostics)
	}
	return b.String()
}

// diagnosticsFragment builds the debug toggle's prompt fragment from a
// snapshot of the configured and effective request parameters.
func diagnosticsFragment(mode catalog.Mode, configuredBudget, effectiveBudget int, effective []catalog.Toggle, toolNames []string) string {
	toggleNames := make([]string, 0, len(effective))
	for _, t := range effective {
		toggleNames = append(toggleNames, t.Name)
	}
	return fmt.Sprintf(
		"Diagnostics are on. End every reply with a short section titled \"Request parameters\" stating exactly: mode=%s model=%s max_tokens=%d thinking_budget=%d (configured %d) toggles=[%s] tools=[%s].",
		mode.Name, mode.Model, mode.MaxTokens,
		effectiveBudget, configuredBudget,
		strings.Join(toggleNames, " "), strings.Join(toolNames, " "),
	)
}

// cleanTitle normalizes a generated title: first line only, surrounding
// quotes stripped, length capped.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimSuffix(strings.TrimSpace(title), ".")
	if runes := []rune(title); len(runes) > 80 {
		title = strings.TrimSpace(string(runes[:80]))
	}
	return title
}
