package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestModuleConfig_LevelFor(t *testing.T) {
	mc := NewModuleConfig(slog.LevelInfo)
	mc.SetModuleLevel("runtime", slog.LevelWarn)
	mc.SetModuleLevel("runtime.playback", slog.LevelDebug)

	tests := []struct {
		module string
		want   slog.Level
	}{
		{"runtime.playback", slog.LevelDebug},
		{"runtime.playback.internal", slog.LevelDebug},
		{"runtime.segment", slog.LevelWarn},
		{"runtime", slog.LevelWarn},
		{"cmd.llmvc", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := mc.LevelFor(tt.module); got != tt.want {
			t.Errorf("LevelFor(%q) = %v, want %v", tt.module, got, tt.want)
		}
	}

	mc.SetDefaultLevel(slog.LevelError)
	if got := mc.LevelFor("cmd.llmvc"); got != slog.LevelError {
		t.Errorf("expected default level to change, got %v", got)
	}
}

func TestConfigure_Nil(t *testing.T) {
	if err := Configure(nil); err != nil {
		t.Errorf("Configure(nil) should not error, got: %v", err)
	}
}

func TestConfigure_JSONFormat(t *testing.T) {
	originalLogger := DefaultLogger
	originalOutput := logOutput
	defer func() {
		DefaultLogger = originalLogger
		logOutput = originalOutput
	}()

	var buf bytes.Buffer
	logOutput = &buf

	err := Configure(&LoggingConfigSpec{
		DefaultLevel: "info",
		Format:       FormatJSON,
		CommonFields: map[string]string{"service": "llmvc"},
	})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	Info("test message", "key", "value")

	out := buf.String()
	for _, want := range []string{`"msg":"test message"`, `"key":"value"`, `"service":"llmvc"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestConfigure_PreservesCustomHandler(t *testing.T) {
	originalLogger := DefaultLogger
	defer func() {
		SetLogger(nil)
		DefaultLogger = originalLogger
	}()

	var buf bytes.Buffer
	SetLogger(slog.NewJSONHandler(&buf, nil))

	if err := Configure(&LoggingConfigSpec{Format: FormatText}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	Info("still json")

	if !strings.Contains(buf.String(), `"msg":"still json"`) {
		t.Errorf("expected custom handler to be kept, got: %s", buf.String())
	}
}

func TestModuleHandler_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer

	mc := NewModuleConfig(slog.LevelWarn)
	handler := NewModuleHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}), mc)
	log := slog.New(handler)

	log.Info("this should be filtered")
	log.Warn("this should appear")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Errorf("expected info record to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "this should appear") {
		t.Errorf("expected warn record, got: %s", out)
	}
}

func TestModuleHandler_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer

	handler := NewModuleHandler(slog.NewTextHandler(&buf, nil), NewModuleConfig(slog.LevelInfo),
		slog.String("env", "test"))
	log := slog.New(handler).With("component", "segmenter")

	log.InfoContext(WithTurnID(context.Background(), "turn-9"), "sealed")

	out := buf.String()
	for _, want := range []string{"env=test", "turn_id=turn-9", "component=segmenter"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestExtractModuleFromFunction(t *testing.T) {
	tests := []struct {
		fn   string
		want string
	}{
		{"github.com/wlyh514/discord-llmvc-bot/runtime/playback.(*Controller).Pause", "runtime.playback"},
		{"github.com/wlyh514/discord-llmvc-bot/runtime/transport/wsbridge.(*Server).serve", "runtime.transport.wsbridge"},
		{"github.com/wlyh514/discord-llmvc-bot/runtime/turn.New.func1", "runtime.turn"},
		{"github.com/wlyh514/discord-llmvc-bot/cmd/llmvc.main", "cmd.llmvc"},
		{"net/http.(*Server).Serve", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractModuleFromFunction(tt.fn); got != tt.want {
			t.Errorf("extractModuleFromFunction(%q) = %q, want %q", tt.fn, got, tt.want)
		}
	}
}
