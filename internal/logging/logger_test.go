package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	configMu.Lock()
	config = loggingConfig{}
	configMu.Unlock()

	logsDir = ""
	stateDir = ""
	logLevel = LevelInfo
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestInitializeWithoutConfigIsSilent(t *testing.T) {
	defer resetState()
	dir := t.TempDir()

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsDebugMode() {
		t.Error("debug mode should default to off without a config file")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory must not be created when logging is disabled")
	}

	// Writing through a disabled logger must be a no-op, not a panic.
	Forge("dropped message %d", 1)
}

func TestInitializeRequiresStateDir(t *testing.T) {
	defer resetState()
	if err := Initialize(""); err == nil {
		t.Error("expected error for empty state dir")
	}
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: debug\n")

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("debug mode not picked up from config")
	}

	Forge("iteration %d scored %.1f", 2, 83.5)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	var forgeLog string
	for _, e := range entries {
		if strings.Contains(e.Name(), "_forge.log") {
			forgeLog = filepath.Join(dir, "logs", e.Name())
		}
	}
	if forgeLog == "" {
		t.Fatalf("no forge log file created, have %v", entries)
	}
	data, err := os.ReadFile(forgeLog)
	if err != nil {
		t.Fatalf("reading forge log: %v", err)
	}
	if !strings.Contains(string(data), "iteration 2 scored 83.5") {
		t.Errorf("log file missing message, got: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, `logging:
  debug_mode: true
  level: debug
  categories:
    gemini: false
`)

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsCategoryEnabled(CategoryGemini) {
		t.Error("gemini category should be disabled")
	}
	if !IsCategoryEnabled(CategoryForge) {
		t.Error("unlisted categories should default to enabled")
	}
	if l := Get(CategoryGemini); l.logger != nil {
		t.Error("disabled category must return a no-op logger")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer resetState()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: warn\n")

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ForgeDebug("below threshold")
	Forge("also below threshold")
	ForgeWarn("kept")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(dir, "logs"))
	for _, e := range entries {
		if !strings.Contains(e.Name(), "_forge.log") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
		if err != nil {
			t.Fatalf("reading log: %v", err)
		}
		if strings.Contains(string(data), "below threshold") {
			t.Error("messages below the configured level were written")
		}
		if !strings.Contains(string(data), "kept") {
			t.Error("warn message missing")
		}
	}
}

func TestTimer(t *testing.T) {
	defer resetState()
	// Timers must be safe with logging disabled.
	timer := StartTimer(CategoryForge, "noop operation")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
	timer = StartTimer(CategoryForge, "thresholded operation")
	if d := timer.StopWithThreshold(0); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}
