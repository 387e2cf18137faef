package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed engine_settings.schema.json
var engineSettingsSchemaJSON []byte

const engineSettingsSchemaURL = "engine_settings.schema.json"

var (
	engineSchemaOnce sync.Once
	engineSchema     *jsonschema.Schema
	engineSchemaErr  error
)

func compiledEngineSchema() (*jsonschema.Schema, error) {
	engineSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(engineSettingsSchemaURL, bytes.NewReader(engineSettingsSchemaJSON)); err != nil {
			engineSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		engineSchema, engineSchemaErr = compiler.Compile(engineSettingsSchemaURL)
	})
	return engineSchema, engineSchemaErr
}

// EngineSettingsFile is the engine's JSON settings file. Absent keys leave
// the configured value alone.
type EngineSettingsFile struct {
	DictionaryPath       *string `json:"dictionaryPath,omitempty"`
	MemoryPath           *string `json:"memoryPath,omitempty"`
	ZenzaiEnabled        *bool   `json:"zenzaiEnabled,omitempty"`
	ZenzaiInferenceLimit *int    `json:"zenzaiInferenceLimit,omitempty"`
	ZenzaiWeightPath     *string `json:"zenzaiWeightPath,omitempty"`
}

// LoadEngineSettings reads and schema-validates an engine settings file.
func LoadEngineSettings(path string) (*EngineSettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine settings: %w", err)
	}
	return ParseEngineSettings(data)
}

// ParseEngineSettings validates data against the engine settings schema and
// decodes it.
func ParseEngineSettings(data []byte) (*EngineSettingsFile, error) {
	schema, err := compiledEngineSchema()
	if err != nil {
		return nil, fmt.Errorf("compile engine settings schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("decode engine settings: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("engine settings: %w", err)
	}

	var f EngineSettingsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode engine settings: %w", err)
	}
	return &f, nil
}

// Apply overlays the keys present in f onto e.
func (f *EngineSettingsFile) Apply(e *EngineConfig) {
	if f.DictionaryPath != nil {
		e.DictionaryPath = *f.DictionaryPath
	}
	if f.MemoryPath != nil {
		e.MemoryPath = *f.MemoryPath
	}
	if f.ZenzaiEnabled != nil {
		e.AIAssistEnabled = *f.ZenzaiEnabled
	}
	if f.ZenzaiInferenceLimit != nil {
		e.AIAssistInferenceLimit = *f.ZenzaiInferenceLimit
	}
	if f.ZenzaiWeightPath != nil {
		e.AIAssistWeightPath = *f.ZenzaiWeightPath
	}
}

// ApplySettingsFile loads the engine settings file at path onto e.
func (e *EngineConfig) ApplySettingsFile(path string) error {
	f, err := LoadEngineSettings(path)
	if err != nil {
		return err
	}
	f.Apply(e)
	return nil
}
