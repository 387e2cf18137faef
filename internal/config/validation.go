package config

import (
	"errors"
	"fmt"
	"strings"

	"kanaime/internal/ime"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateMemory(&c.Memory)...)
	errs = append(errs, validateCache(&c.Cache)...)
	errs = append(errs, validateSession(&c.Session)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.SocketPath == "" {
		errs = append(errs, *RequiredFieldError("engine.socket_path"))
	}
	if e.DictionaryPath == "" {
		errs = append(errs, *RequiredFieldError("engine.dictionary_path"))
	}
	if e.AIAssistInferenceLimit < 1 || e.AIAssistInferenceLimit > 1000 {
		errs = append(errs, *RangeError("engine.ai_assist_inference_limit", 1, 1000))
	}
	if _, err := ime.ParseLearningMode(e.LearningMode); err != nil {
		errs = append(errs, ValidationError{
			Field:   "engine.learning_mode",
			Message: fmt.Sprintf("invalid learning mode: %s (valid: input_output, output_only, none)", e.LearningMode),
		})
	}
	if e.TimeoutMs < 10 || e.TimeoutMs > 60000 {
		errs = append(errs, *RangeError("engine.timeout_ms", 10, 60000))
	}

	return errs
}

func validateMemory(m *MemoryConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Enabled && m.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "memory.path",
			Message: "path is required when memory is enabled",
		})
	}
	if m.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "memory.retention_days",
			Message: "retention cannot be negative",
		})
	}

	return errs
}

func validateCache(c *CacheConfig) ValidationErrors {
	var errs ValidationErrors

	if !c.Enabled {
		return errs
	}
	if c.TTLSeconds < 1 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_seconds",
			Message: "ttl must be at least 1 second",
		})
	}
	if c.Capacity < 1 {
		errs = append(errs, ValidationError{
			Field:   "cache.capacity",
			Message: "capacity must be at least 1",
		})
	}

	return errs
}

func validateSession(s *SessionConfig) ValidationErrors {
	var errs ValidationErrors

	if s.ContextRunes < 0 || s.ContextRunes > 1000 {
		errs = append(errs, *RangeError("session.context_runes", 0, 1000))
	}
	if s.KeyTimeoutMs < 10 || s.KeyTimeoutMs > 60000 {
		errs = append(errs, *RangeError("session.key_timeout_ms", 10, 60000))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
