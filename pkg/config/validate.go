package config

import (
	"errors"
	"fmt"

	"github.com/wlyh514/discord-llmvc-bot/runtime/telemetry"
)

// Log level names.
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return "config validation error: " + e.Field + ": " + e.Message + " (got: " + e.Value + ")"
	}
	return "config validation error: " + e.Field + ": " + e.Message
}

// Validate checks the values the schema cannot express. It returns every
// violation joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg, value string) {
		errs = append(errs, &ValidationError{Field: field, Message: msg, Value: value})
	}

	if c.OpenAI.APIKey == "" {
		add("openai.apiKey", "required (or set "+EnvAPIKey+")", "")
	}
	if !isValidLogLevel(c.Logging.Level) {
		add("logging.level", "must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != LogFormatJSON && c.Logging.Format != LogFormatText {
		add("logging.format", "must be one of: json, text", c.Logging.Format)
	}
	for i, m := range c.Logging.Modules {
		if m.Name == "" {
			add(fmt.Sprintf("logging.modules[%d].name", i), "module name is required", "")
		}
		if !isValidLogLevel(m.Level) {
			add(fmt.Sprintf("logging.modules[%d].level", i), "must be one of: trace, debug, info, warn, error", m.Level)
		}
	}
	if c.Logging.File != nil && c.Logging.File.Path == "" {
		add("logging.file.path", "required when file logging is configured", "")
	}
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			add("tracing.endpoint", "required when tracing is enabled", "")
		}
		if _, err := telemetry.Propagator(c.Tracing.Propagators...); err != nil {
			add("tracing.propagators", err.Error(), "")
		}
	}
	if c.Segments.MaxDuration > 0 && c.Segments.MaxDuration < c.Segments.SilenceGap {
		add("segments.maxDuration", "must not be shorter than segments.silenceGap", c.Segments.MaxDuration.String())
	}
	if c.Speech.Speed != 0 && (c.Speech.Speed < 0.25 || c.Speech.Speed > 4) {
		add("speech.speed", "must be between 0.25 and 4.0", fmt.Sprint(c.Speech.Speed))
	}
	return errors.Join(errs...)
}

func isValidLogLevel(level string) bool {
	switch level {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}
