package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// moduleRoot is stripped from function names when deriving module names.
const moduleRoot = "github.com/wlyh514/discord-llmvc-bot/"

const selfModule = "runtime.logger"

// ContextHandler is a slog.Handler that copies the logging fields stored in a
// context (session, speaker, turn, ...) onto every record before delegating
// to the wrapped handler.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// NewContextHandler creates a new ContextHandler wrapping the given handler.
// The commonFields are added to every log record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{
		inner:        inner,
		commonFields: commonFields,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with common and context fields.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, h.enrich(ctx, r, ""))
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) enrich(ctx context.Context, r slog.Record, module string) slog.Record {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	// Common fields first so record attributes can override them.
	out.AddAttrs(h.commonFields...)
	if module != "" {
		out.AddAttrs(slog.String("logger", module))
	}
	if ctx != nil {
		for _, key := range allContextKeys {
			if s, ok := ctx.Value(key).(string); ok && s != "" {
				out.AddAttrs(slog.String(string(key), s))
			}
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return out
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields}
}

// WithGroup returns a new handler with the given group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields}
}

// Unwrap returns the inner handler.
func (h *ContextHandler) Unwrap() slog.Handler {
	return h.inner
}

var _ slog.Handler = (*ContextHandler)(nil)

// ModuleHandler extends ContextHandler with per-module level filtering. The
// module is derived from the package of the function that emitted the record.
type ModuleHandler struct {
	ContextHandler
	moduleConfig *ModuleConfig
}

// NewModuleHandler creates a new ModuleHandler with per-module log level filtering.
func NewModuleHandler(inner slog.Handler, moduleConfig *ModuleConfig, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: inner, commonFields: commonFields},
		moduleConfig:   moduleConfig,
	}
}

// Enabled reports whether any module could accept the level. The precise
// per-module decision happens in Handle, where the caller PC is known.
func (h *ModuleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle drops records below the calling module's level and tags the rest
// with a "logger" attribute.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	module := moduleFromPC(r.PC)
	if r.Level < h.moduleConfig.LevelFor(module) {
		return nil
	}
	return h.inner.Handle(ctx, h.enrich(ctx, r, module))
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

var _ slog.Handler = (*ModuleHandler)(nil)

// moduleFromPC resolves the module of the record's call site. Records logged
// through this package's wrappers carry a PC inside the logger package, so
// the live stack is searched for the first frame outside it.
func moduleFromPC(pc uintptr) string {
	if pc != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		if module := extractModuleFromFunction(frame.Function); module != "" && module != selfModule {
			return module
		}
	}

	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if module := extractModuleFromFunction(frame.Function); module != "" && module != selfModule {
			return module
		}
		if !more {
			return ""
		}
	}
}

// extractModuleFromFunction turns a fully qualified function name such as
// "github.com/wlyh514/discord-llmvc-bot/runtime/playback.(*Controller).Pause"
// into "runtime.playback".
func extractModuleFromFunction(fn string) string {
	idx := strings.Index(fn, moduleRoot)
	if fn == "" || idx == -1 {
		return ""
	}

	path := fn[idx+len(moduleRoot):]
	if parenIdx := strings.Index(path, "("); parenIdx != -1 {
		path = path[:parenIdx]
	}
	// The package name ends at the first dot after the last slash.
	lastSlash := strings.LastIndex(path, "/")
	if dotIdx := strings.Index(path[lastSlash+1:], "."); dotIdx != -1 {
		path = path[:lastSlash+1+dotIdx]
	}
	return strings.TrimSuffix(strings.ReplaceAll(path, "/", "."), ".")
}
