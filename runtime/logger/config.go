package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ModuleConfig manages per-module logging configuration.
// It supports hierarchical module names where more specific modules
// override less specific ones (e.g., "runtime.playback" overrides "runtime").
type ModuleConfig struct {
	defaultLevel slog.Level
	modules      map[string]slog.Level
	mu           sync.RWMutex
}

// NewModuleConfig creates a new ModuleConfig with the given default level.
func NewModuleConfig(defaultLevel slog.Level) *ModuleConfig {
	return &ModuleConfig{
		defaultLevel: defaultLevel,
		modules:      make(map[string]slog.Level),
	}
}

// SetModuleLevel sets the log level for a specific module.
// Module names use dot notation (e.g., "runtime.segment").
func (m *ModuleConfig) SetModuleLevel(module string, level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modules[module] = level
}

// SetDefaultLevel sets the default log level.
func (m *ModuleConfig) SetDefaultLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLevel = level
}

// LevelFor returns the log level for the given module.
// It checks for exact match first, then walks up the hierarchy.
// For example, for "runtime.transport.wsbridge" it checks the exact name,
// then "runtime.transport", then "runtime", then falls back to the default.
func (m *ModuleConfig) LevelFor(module string) slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Check exact match first
	if level, ok := m.modules[module]; ok {
		return level
	}

	// Walk up the hierarchy
	for {
		lastDot := strings.LastIndex(module, ".")
		if lastDot == -1 {
			break
		}
		module = module[:lastDot]
		if level, ok := m.modules[module]; ok {
			return level
		}
	}

	return m.defaultLevel
}

// globalModuleConfig is the global module configuration.
var globalModuleConfig = NewModuleConfig(slog.LevelInfo)

// LoggingConfigSpec defines the logging configuration for the Configure function.
// It mirrors config.LoggingConfig to avoid an import cycle.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
	Modules      []ModuleLoggingSpec
	File         *FileSinkSpec
}

// ModuleLoggingSpec configures logging for a specific module.
type ModuleLoggingSpec struct {
	Name  string
	Level string
}

// FileSinkSpec enables a size-rotated log file next to stderr output.
type FileSinkSpec struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Configure applies a LoggingConfigSpec to the global logger.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}

	setupMu.Lock()
	defer setupMu.Unlock()

	// If a custom logger was set via SetLogger(), preserve it.
	if customHandler != nil {
		return nil
	}

	defaultLevel := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		defaultLevel = ParseLevel(cfg.DefaultLevel)
	}

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	moduleConfig := NewModuleConfig(defaultLevel)
	for _, mod := range cfg.Modules {
		moduleConfig.SetModuleLevel(mod.Name, ParseLevel(mod.Level))
	}
	globalModuleConfig = moduleConfig

	out := logOutput
	if cfg.File != nil && cfg.File.Path != "" {
		out = io.MultiWriter(os.Stderr, newRotatingFile(cfg.File))
	}

	initLoggerWithConfig(out, defaultLevel, commonFields, moduleConfig, cfg.Format == FormatJSON)
	return nil
}

func newRotatingFile(spec *FileSinkSpec) io.Writer {
	maxSize := spec.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	return &lumberjack.Logger{
		Filename:   spec.Path,
		MaxSize:    maxSize,
		MaxBackups: spec.MaxBackups,
		MaxAge:     spec.MaxAgeDays,
		Compress:   spec.Compress,
	}
}

// initLoggerWithConfig creates the logger with full configuration.
func initLoggerWithConfig(
	out io.Writer, level slog.Level, commonFields []slog.Attr, moduleConfig *ModuleConfig, useJSON bool,
) {
	var baseHandler slog.Handler
	opts := &slog.HandlerOptions{
		Level: minLevel(level, moduleConfig),
	}

	if useJSON {
		baseHandler = slog.NewJSONHandler(out, opts)
	} else {
		baseHandler = slog.NewTextHandler(out, opts)
	}

	var handler slog.Handler
	if moduleConfig != nil && len(moduleConfig.modules) > 0 {
		handler = NewModuleHandler(baseHandler, moduleConfig, commonFields...)
	} else {
		handler = NewContextHandler(baseHandler, commonFields...)
	}

	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// minLevel lowers the base handler level so module overrides below the
// default are not filtered out before the module handler sees them.
func minLevel(level slog.Level, moduleConfig *ModuleConfig) slog.Level {
	if moduleConfig == nil {
		return level
	}
	moduleConfig.mu.RLock()
	defer moduleConfig.mu.RUnlock()
	for _, l := range moduleConfig.modules {
		if l < level {
			level = l
		}
	}
	return level
}

// GetModuleConfig returns the global module configuration.
func GetModuleConfig() *ModuleConfig {
	return globalModuleConfig
}
