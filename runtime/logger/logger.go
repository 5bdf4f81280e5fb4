// Package logger provides structured logging with automatic secret redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Agent (LLM) call logging (requests, tool calls, errors)
//   - Speech service logging (STT and TTS round trips)
//   - Automatic API key and sensitive data redaction
//   - Contextual logging with session, speaker and turn fields
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats, log levels and sinks.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers built by this package write.
	logOutput io.Writer = os.Stderr

	// customHandler is set by SetLogger and survives Configure calls.
	customHandler slog.Handler

	setupMu sync.Mutex
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}

	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	setupMu.Lock()
	defer setupMu.Unlock()

	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetLogger installs a caller-provided handler. Passing nil restores the default
// text handler. A custom handler is preserved across Configure calls.
func SetLogger(h slog.Handler) {
	setupMu.Lock()
	defer setupMu.Unlock()

	customHandler = h
	if h == nil {
		DefaultLogger = slog.New(NewContextHandler(slog.NewTextHandler(logOutput, nil)))
		return
	}
	DefaultLogger = slog.New(NewContextHandler(h))
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context fields attached.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context fields attached.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context fields attached.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context fields attached.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// AgentCall logs an agent invocation step with the size of the conversation
// and the number of tools on offer.
func AgentCall(ctx context.Context, model string, messages, tools int, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"messages", messages,
		"tools", tools,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "agent call", allAttrs...)
}

// AgentResponse logs the outcome of one agent step.
func AgentResponse(ctx context.Context, model string, toolCalls int, tokensIn, tokensOut int64, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"tool_calls", toolCalls,
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "agent response", allAttrs...)
}

// AgentError logs a failed agent invocation.
func AgentError(ctx context.Context, model string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"model", model,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	ErrorContext(ctx, "agent call failed", allAttrs...)
}

// SpeechCall logs a completed STT or TTS round trip at debug level.
func SpeechCall(ctx context.Context, provider, operation string, bytes int, err error) {
	if err != nil {
		WarnContext(ctx, "speech call failed",
			"provider", provider, "operation", operation, "bytes", bytes, "error", err)
		return
	}
	DebugContext(ctx, "speech call",
		"provider", provider, "operation", operation, "bytes", bytes)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9_-]{32,}`),   // OpenAI API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`), // Bearer tokens
		regexp.MustCompile(`Bot\s+[a-zA-Z0-9_.-]{20,}`), // bot tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// Keys keep their first four characters for debugging context; bearer and bot
// tokens are replaced entirely.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, "Bot"):
				return "Bot [REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			default:
				return "[REDACTED]"
			}
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with redaction.
// It is a no-op when debug logging is disabled.
func APIRequest(provider, method, url string, headers map[string]string, body any) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redacted := make(map[string]string, len(headers))
		for key, value := range headers {
			redacted[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redacted)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("api request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with redaction.
// Errors are always logged, at error level.
func APIResponse(provider string, statusCode int, body string, err error) {
	if err != nil {
		Error("api response error",
			"provider", provider, "status_code", statusCode, "error", err.Error())
		return
	}
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{"provider", provider, "status_code", statusCode}
	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}
	Debug("api response", attrs...)
}
