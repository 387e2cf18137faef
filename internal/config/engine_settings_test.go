package config

import (
	"path/filepath"
	"testing"
)

func TestParseEngineSettings(t *testing.T) {
	f, err := ParseEngineSettings([]byte(`{
		"dictionaryPath": "/usr/share/kanaime/dict",
		"zenzaiEnabled": false,
		"zenzaiInferenceLimit": 3
	}`))
	if err != nil {
		t.Fatalf("ParseEngineSettings failed: %v", err)
	}

	e := EngineConfig{MemoryPath: "/keep", AIAssistEnabled: true, AIAssistInferenceLimit: 10}
	f.Apply(&e)

	if e.DictionaryPath != "/usr/share/kanaime/dict" {
		t.Errorf("dictionary path = %s", e.DictionaryPath)
	}
	if e.MemoryPath != "/keep" {
		t.Errorf("absent keys must not overwrite, memory path = %s", e.MemoryPath)
	}
	if e.AIAssistEnabled {
		t.Error("zenzaiEnabled=false should disable AI assist")
	}
	if e.AIAssistInferenceLimit != 3 {
		t.Errorf("inference limit = %d", e.AIAssistInferenceLimit)
	}
}

func TestParseEngineSettingsRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"not an object", `[]`},
		{"unknown key", `{"dictonaryPath": "/typo"}`},
		{"wrong type", `{"zenzaiEnabled": "yes"}`},
		{"limit too small", `{"zenzaiInferenceLimit": 0}`},
		{"fractional limit", `{"zenzaiInferenceLimit": 2.5}`},
		{"empty dictionary", `{"dictionaryPath": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEngineSettings([]byte(tt.data)); err == nil {
				t.Errorf("expected %s to be rejected", tt.data)
			}
		})
	}
}

func TestLoadAppliesSettingsFile(t *testing.T) {
	dir := isolate(t)
	settings := filepath.Join(dir, "engine.json")
	writeFile(t, settings, `{"zenzaiWeightPath": "/models/zenz.gguf", "memoryPath": "/var/mem"}`)

	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n[engine]\nsettings_file = \""+filepath.ToSlash(settings)+"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.AIAssistWeightPath != "/models/zenz.gguf" {
		t.Errorf("weight path = %s", cfg.Engine.AIAssistWeightPath)
	}
	if cfg.Engine.MemoryPath != "/var/mem" {
		t.Errorf("memory path = %s", cfg.Engine.MemoryPath)
	}

	t.Setenv("KANAIME_AI_ASSIST_WEIGHT_PATH", "/env/w.gguf")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.AIAssistWeightPath != "/env/w.gguf" {
		t.Errorf("environment wins over the settings file, got %s", cfg.Engine.AIAssistWeightPath)
	}
}

func TestLoadBadSettingsFile(t *testing.T) {
	dir := isolate(t)
	settings := filepath.Join(dir, "engine.json")
	writeFile(t, settings, `{"zenzaiInferenceLimit": -1}`)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n[engine]\nsettings_file = \""+filepath.ToSlash(settings)+"\"\n")

	if _, err := Load(path); err == nil {
		t.Error("expected schema violation to fail Load")
	}
}
