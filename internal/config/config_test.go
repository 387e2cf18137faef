package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"kanaime/internal/ime"
	"kanaime/internal/logging"
)

// isolate points every path default at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)
	t.Setenv("KANAIME_CONFIG_DIR", dir)
	for _, k := range []string{
		"KANAIME_ENGINE_SOCKET", "KANAIME_DICTIONARY_PATH", "KANAIME_AI_ASSIST_ENABLED",
		"KANAIME_AI_ASSIST_LIMIT", "KANAIME_AI_ASSIST_WEIGHT_PATH", "KANAIME_LEARNING_MODE",
		"KANAIME_MEMORY_PATH", "KANAIME_LOG_LEVEL", "KANAIME_LOG_PATH",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Memory.Path != filepath.Join(dir, "memory.db") {
		t.Errorf("memory path = %s", cfg.Memory.Path)
	}
	if cfg.Engine.Language != ime.DefaultLanguage {
		t.Errorf("language = %s", cfg.Engine.Language)
	}
	if cfg.Engine.AIAssistInferenceLimit != 10 {
		t.Errorf("inference limit = %d, want 10", cfg.Engine.AIAssistInferenceLimit)
	}
	if cfg.Logging.LogText {
		t.Error("composition text must not be logged by default")
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)
	if got := ConfigPath(); got != filepath.Join(dir, "config.toml") {
		t.Errorf("ConfigPath() = %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected default version, got %d", cfg.Version)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "config.toml", `
version = 1
[engine]
dictionary_path = "/opt/dict"
learning_mode = "output_only"
ai_assist_inference_limit = 4
[cache]
enabled = false
`},
		{"json", "config.json", `{
  "version": 1,
  "engine": {"dictionary_path": "/opt/dict", "learning_mode": "output_only", "ai_assist_inference_limit": 4},
  "cache": {"enabled": false}
}`},
		{"yaml", "config.yaml", `
version: 1
engine:
  dictionary_path: /opt/dict
  learning_mode: output_only
  ai_assist_inference_limit: 4
cache:
  enabled: false
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Engine.DictionaryPath != "/opt/dict" {
				t.Errorf("dictionary path = %s", cfg.Engine.DictionaryPath)
			}
			if cfg.Engine.AIAssistInferenceLimit != 4 {
				t.Errorf("inference limit = %d", cfg.Engine.AIAssistInferenceLimit)
			}
			if cfg.CacheTTL() != 0 {
				t.Errorf("disabled cache should have zero TTL, got %v", cfg.CacheTTL())
			}
			if cfg.Session.ContextRunes != ime.DefaultContextRunes {
				t.Errorf("unset fields keep defaults, got context runes %d", cfg.Session.ContextRunes)
			}
			if got := cfg.SessionConfig().Learning; got != ime.LearnOutputOnly {
				t.Errorf("learning = %s", got)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "this is not [valid toml")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KANAIME_DICTIONARY_PATH", "/env/dict")
	t.Setenv("KANAIME_AI_ASSIST_ENABLED", "0")
	t.Setenv("KANAIME_AI_ASSIST_LIMIT", "7")
	t.Setenv("KANAIME_AI_ASSIST_WEIGHT_PATH", "/env/weights.gguf")
	t.Setenv("KANAIME_LOG_LEVEL", "debug")

	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.DictionaryPath != "/env/dict" {
		t.Errorf("dictionary path = %s", cfg.Engine.DictionaryPath)
	}
	if cfg.Engine.AIAssistEnabled {
		t.Error("KANAIME_AI_ASSIST_ENABLED=0 should disable AI assist")
	}
	if cfg.Engine.AIAssistInferenceLimit != 7 {
		t.Errorf("inference limit = %d", cfg.Engine.AIAssistInferenceLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}

	t.Setenv("KANAIME_AI_ASSIST_LIMIT", "-3")
	cfg, _ = Load("/nonexistent/config.toml")
	if cfg.Engine.AIAssistInferenceLimit != 10 {
		t.Errorf("non-positive limits are ignored, got %d", cfg.Engine.AIAssistInferenceLimit)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Engine.LearningMode = "sometimes"
	cfg.Engine.TimeoutMs = 0
	cfg.Cache.Capacity = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "printer"

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	for _, field := range []string{
		"engine.learning_mode", "engine.timeout_ms", "cache.capacity", "logging.level", "logging.output",
	} {
		if !slices.Contains(verrs.Fields(), field) {
			t.Errorf("missing error for %s in %v", field, verrs.Fields())
		}
	}
}

func TestValidateMemoryDisabled(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Memory.Enabled = false
	cfg.Memory.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled memory needs no path: %v", err)
	}
}

func TestConversions(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Engine.AIAssistWeightPath = "/w.gguf"
	cfg.Session.KeyTimeoutMs = 500
	cfg.Logging.Format = "json"
	cfg.Logging.LogText = true

	es := cfg.EngineSettings()
	if !es.AIAssistActive() {
		t.Error("enabled flag plus weight path should activate AI assist")
	}
	if es.DictionaryPath != cfg.Engine.DictionaryPath {
		t.Errorf("dictionary path = %s", es.DictionaryPath)
	}

	sc := cfg.SessionConfig()
	if sc.KeyTimeout != 500*time.Millisecond {
		t.Errorf("key timeout = %v", sc.KeyTimeout)
	}
	if sc.Learning != ime.LearnInputOutput {
		t.Errorf("learning = %s", sc.Learning)
	}

	lc, err := cfg.LoggingConfig()
	if err != nil {
		t.Fatalf("LoggingConfig failed: %v", err)
	}
	if lc.Format != logging.FormatJSON || !lc.LogText || lc.Level != logging.LevelInfo {
		t.Errorf("logging config = %+v", lc)
	}

	if cfg.EngineTimeout() != 2*time.Second {
		t.Errorf("engine timeout = %v", cfg.EngineTimeout())
	}
	if cfg.CacheTTL() != 2*time.Minute {
		t.Errorf("cache ttl = %v", cfg.CacheTTL())
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()
	cfg.Memory.Path = filepath.Join(dir, "a", "b", "memory.db")
	cfg.Engine.SocketPath = filepath.Join(dir, "run", "engine.sock")
	cfg.Logging.Output = "stderr"

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, d := range []string{filepath.Join(dir, "a", "b"), filepath.Join(dir, "run")} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", d)
		}
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "config."+ext)

			cfg := DefaultConfig()
			cfg.Engine.Language = "en_US"
			cfg.Memory.RetentionDays = 30
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Engine.Language != "en_US" || got.Memory.RetentionDays != 30 {
				t.Errorf("reloaded config differs: %+v", got.Engine)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := isolate(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config file, got %s", got)
	}
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "version: 1\n")
	if got := FindConfigFile(); got != path {
		t.Errorf("FindConfigFile() = %s, want %s", got, path)
	}
}

func TestEncodeTOMLHasSections(t *testing.T) {
	isolate(t)
	data, err := Encode(DefaultConfig(), "config.toml")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, section := range []string{"[engine]", "[memory]", "[cache]", "[session]", "[logging]", "[ibus]"} {
		if !strings.Contains(string(data), section) {
			t.Errorf("encoded TOML missing %s", section)
		}
	}
}
