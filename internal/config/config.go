// Package config handles configuration loading, validation, and hot reload
// for kanaime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"kanaime/internal/ime"
	"kanaime/internal/ipc"
	"kanaime/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete input method configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configures the conversion engine and how it is reached.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Memory configures the learning memory database.
	Memory MemoryConfig `toml:"memory" json:"memory" yaml:"memory"`

	// Cache configures the candidate result cache.
	Cache CacheConfig `toml:"cache" json:"cache" yaml:"cache"`

	// Session configures per-document composition sessions.
	Session SessionConfig `toml:"session" json:"session" yaml:"session"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus configures the Linux host adapter.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`
}

// EngineConfig holds conversion engine settings.
type EngineConfig struct {
	// SocketPath is the unix socket the engine server listens on.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// SettingsFile is an optional JSON engine settings file overlaid onto
	// this section. See LoadEngineSettings.
	SettingsFile string `toml:"settings_file" json:"settings_file" yaml:"settings_file"`

	// DictionaryPath is the engine dictionary directory.
	DictionaryPath string `toml:"dictionary_path" json:"dictionary_path" yaml:"dictionary_path"`

	// MemoryPath is the engine's own learning directory.
	MemoryPath string `toml:"memory_path" json:"memory_path" yaml:"memory_path"`

	// AIAssistEnabled turns on neural re-ranking when a weight file is set.
	AIAssistEnabled bool `toml:"ai_assist_enabled" json:"ai_assist_enabled" yaml:"ai_assist_enabled"`

	// AIAssistInferenceLimit bounds neural inference steps per request.
	AIAssistInferenceLimit int `toml:"ai_assist_inference_limit" json:"ai_assist_inference_limit" yaml:"ai_assist_inference_limit"`

	// AIAssistWeightPath is the neural weight file.
	AIAssistWeightPath string `toml:"ai_assist_weight_path" json:"ai_assist_weight_path" yaml:"ai_assist_weight_path"`

	// Language is the keyboard language tag passed with each request.
	Language string `toml:"language" json:"language" yaml:"language"`

	// LearningMode is "input_output", "output_only" or "none".
	LearningMode string `toml:"learning_mode" json:"learning_mode" yaml:"learning_mode"`

	// TimeoutMs bounds a single engine call.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// MemoryConfig holds learning memory settings.
type MemoryConfig struct {
	// Enabled turns on the SQLite learning memory.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays prunes selections unused for longer. Zero keeps them.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// CacheConfig holds candidate cache settings.
type CacheConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	TTLSeconds int    `toml:"ttl_seconds" json:"ttl_seconds" yaml:"ttl_seconds"`
	Capacity   uint64 `toml:"capacity" json:"capacity" yaml:"capacity"`
}

// SessionConfig holds composition session settings.
type SessionConfig struct {
	// ContextRunes is how much preceding text is sent with each request.
	ContextRunes int `toml:"context_runes" json:"context_runes" yaml:"context_runes"`

	// KeyTimeoutMs bounds the work done for a single key.
	KeyTimeoutMs int `toml:"key_timeout_ms" json:"key_timeout_ms" yaml:"key_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// LogText writes composition text to the log. Off by default.
	LogText bool `toml:"log_text" json:"log_text" yaml:"log_text"`
}

// IBusConfig holds IBus component registration settings.
type IBusConfig struct {
	// ComponentPath is where -install writes the component XML.
	ComponentPath string `toml:"component_path" json:"component_path" yaml:"component_path"`

	// ExecPath is the command IBus runs to start the engine.
	ExecPath string `toml:"exec_path" json:"exec_path" yaml:"exec_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			SocketPath:             ipc.DefaultSocketPath(),
			DictionaryPath:         filepath.Join(dir, "dictionary"),
			MemoryPath:             filepath.Join(dir, "engine-memory"),
			AIAssistEnabled:        true,
			AIAssistInferenceLimit: 10,
			Language:               ime.DefaultLanguage,
			LearningMode:           ime.LearnInputOutput.String(),
			TimeoutMs:              int(ipc.DefaultTimeout / time.Millisecond),
		},
		Memory: MemoryConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "memory.db"),
			RetentionDays: 365,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 120,
			Capacity:   512,
		},
		Session: SessionConfig{
			ContextRunes: ime.DefaultContextRunes,
			KeyTimeoutMs: int(ime.DefaultKeyTimeout / time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		IBus: IBusConfig{
			ComponentPath: filepath.Join(xdgDataHome(), "ibus", "component", "kanaime.xml"),
			ExecPath:      "/usr/libexec/kanaime-ibus -ibus",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from the specified path. A missing file yields
// the defaults. TOML, JSON and YAML are chosen by extension. Environment
// overrides and the engine settings file are applied afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies the engine settings file and environment overrides.
func (c *Config) finish() error {
	if c.Engine.SettingsFile != "" {
		if err := c.Engine.ApplySettingsFile(c.Engine.SettingsFile); err != nil {
			return err
		}
	}
	c.ApplyEnvOverrides()
	return nil
}

func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode config (unknown format): %w", err)
		}
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Memory.Path),
		filepath.Dir(c.Engine.SocketPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies KANAIME_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KANAIME_ENGINE_SOCKET"); v != "" {
		c.Engine.SocketPath = v
	}
	if v := os.Getenv("KANAIME_DICTIONARY_PATH"); v != "" {
		c.Engine.DictionaryPath = v
	}
	if v := os.Getenv("KANAIME_AI_ASSIST_ENABLED"); v != "" {
		switch strings.ToLower(v) {
		case "false", "0":
			c.Engine.AIAssistEnabled = false
		case "true", "1":
			c.Engine.AIAssistEnabled = true
		}
	}
	if v := os.Getenv("KANAIME_AI_ASSIST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.AIAssistInferenceLimit = n
		}
	}
	if v := os.Getenv("KANAIME_AI_ASSIST_WEIGHT_PATH"); v != "" {
		c.Engine.AIAssistWeightPath = v
	}
	if v := os.Getenv("KANAIME_LEARNING_MODE"); v != "" {
		c.Engine.LearningMode = v
	}
	if v := os.Getenv("KANAIME_MEMORY_PATH"); v != "" {
		c.Memory.Path = v
	}
	if v := os.Getenv("KANAIME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KANAIME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// EngineSettings converts the engine section for ime.ConverterClient.
func (c *Config) EngineSettings() ime.EngineSettings {
	return ime.EngineSettings{
		DictionaryPath:         c.Engine.DictionaryPath,
		MemoryPath:             c.Engine.MemoryPath,
		AIAssistEnabled:        c.Engine.AIAssistEnabled,
		AIAssistInferenceLimit: c.Engine.AIAssistInferenceLimit,
		AIAssistWeightPath:     c.Engine.AIAssistWeightPath,
	}
}

// SessionConfig converts the session settings for ime.Session. An invalid
// learning mode falls back to none; Validate reports it.
func (c *Config) SessionConfig() ime.SessionConfig {
	mode, err := ime.ParseLearningMode(c.Engine.LearningMode)
	if err != nil {
		mode = ime.LearnNone
	}
	return ime.SessionConfig{
		Language:     c.Engine.Language,
		Learning:     mode,
		ContextRunes: c.Session.ContextRunes,
		KeyTimeout:   time.Duration(c.Session.KeyTimeoutMs) * time.Millisecond,
	}
}

// EngineTimeout returns the per-call engine timeout.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the candidate cache TTL, or zero when caching is off.
func (c *Config) CacheTTL() time.Duration {
	if !c.Cache.Enabled {
		return 0
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.LogText = c.Logging.LogText
	return lc, nil
}
