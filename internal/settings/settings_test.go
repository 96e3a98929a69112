package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromMissingFileYieldsDefaults(t *testing.T) {
	s, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if !s.ShowReasoning {
		t.Error("expected show_reasoning to default to true")
	}
	if s.Listen != DefaultListen {
		t.Errorf("listen=%q, want %q", s.Listen, DefaultListen)
	}
	if s.Mode != "" || s.Debug || s.ThinkingBudget != 0 {
		t.Errorf("unexpected non-zero defaults: %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Settings{
		Mode:            "engineer",
		Toggles:         []string{"web", "citations"},
		Debug:           true,
		ShowReasoning:   false,
		ThinkingBudget:  4096,
		AnthropicAPIKey: "$MY_ANTHROPIC_KEY",
		WolframAppID:    "ABC123-XYZ",
		Listen:          "127.0.0.1:9999",
		DataDir:         "/tmp/nightjar-data",
	}
	if err := in.SaveTo(dir); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}

	out, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if out.Mode != "engineer" {
		t.Errorf("mode=%q, want %q", out.Mode, "engineer")
	}
	if len(out.Toggles) != 2 || out.Toggles[0] != "web" || out.Toggles[1] != "citations" {
		t.Errorf("toggles=%v, want [web citations]", out.Toggles)
	}
	if !out.Debug {
		t.Error("expected debug to survive")
	}
	if out.ShowReasoning {
		t.Error("expected show_reasoning=false to survive")
	}
	if out.ThinkingBudget != 4096 {
		t.Errorf("thinking_budget=%d, want 4096", out.ThinkingBudget)
	}
	if out.AnthropicAPIKey != "$MY_ANTHROPIC_KEY" {
		t.Errorf("anthropic_api_key=%q, want the raw indirection", out.AnthropicAPIKey)
	}
	if out.Listen != "127.0.0.1:9999" {
		t.Errorf("listen=%q, want %q", out.Listen, "127.0.0.1:9999")
	}
	if out.DataDir != "/tmp/nightjar-data" {
		t.Errorf("data_dir=%q, want %q", out.DataDir, "/tmp/nightjar-data")
	}
}

func TestSaveFilePermissions(t *testing.T) {
	dir := t.TempDir()
	s := &Settings{AnthropicAPIKey: "sk-ant-secret"}
	if err := s.SaveTo(dir); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		t.Fatalf("failed to stat settings file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file mode=%o, want 0600", perm)
	}
}

func TestSecretIndirectionNeverStoredLiterally(t *testing.T) {
	t.Setenv("MY_ANTHROPIC_KEY", "sk-ant-resolved")

	dir := t.TempDir()
	s := &Settings{AnthropicAPIKey: "$MY_ANTHROPIC_KEY"}
	if s.AnthropicKey() != "sk-ant-resolved" {
		t.Errorf("resolved key=%q, want value from environment", s.AnthropicKey())
	}

	if err := s.SaveTo(dir); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		t.Fatalf("failed to read settings file: %v", err)
	}
	if strings.Contains(string(data), "sk-ant-resolved") {
		t.Error("resolved secret leaked into settings file")
	}
	if !strings.Contains(string(data), "$MY_ANTHROPIC_KEY") {
		t.Error("expected raw indirection in settings file")
	}
}

func TestAnthropicKeyEnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")

	s := &Settings{}
	if s.AnthropicKey() != "sk-ant-from-env" {
		t.Errorf("resolved key=%q, want fallback from ANTHROPIC_API_KEY", s.AnthropicKey())
	}

	s.AnthropicAPIKey = "sk-ant-explicit"
	if s.AnthropicKey() != "sk-ant-explicit" {
		t.Errorf("resolved key=%q, want explicit value to win", s.AnthropicKey())
	}
}

func TestWolframKeyIndirection(t *testing.T) {
	t.Setenv("MY_WOLFRAM_ID", "WOLF-123")

	s := &Settings{WolframAppID: "${MY_WOLFRAM_ID}"}
	if s.WolframKey() != "WOLF-123" {
		t.Errorf("resolved app id=%q, want value from environment", s.WolframKey())
	}
}

func TestEnabledTogglesValidates(t *testing.T) {
	s := &Settings{Toggles: []string{"citations", "diagnostics", "bogus"}}

	if got := s.EnabledToggles(); len(got) != 0 {
		t.Errorf("expected empty effective set, got %v", got)
	}

	s.Toggles = []string{"web", "citations", "diagnostics"}
	s.Debug = true
	got := s.EnabledToggles()
	names := make([]string, len(got))
	for i, tg := range got {
		names[i] = tg.Name
	}
	want := []string{"web", "citations", "diagnostics"}
	if len(names) != len(want) {
		t.Fatalf("effective toggles=%v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("effective toggles=%v, want %v", names, want)
		}
	}
}

func TestWatchReloadsOnSave(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan *Settings, 1)
	stop, err := Watch(dir, func(s *Settings) {
		select {
		case changed <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer stop()

	s := &Settings{Mode: "scholar", Listen: DefaultListen}
	if err := s.SaveTo(dir); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}

	select {
	case got := <-changed:
		if got.Mode != "scholar" {
			t.Errorf("reloaded mode=%q, want %q", got.Mode, "scholar")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the reload")
	}
}
