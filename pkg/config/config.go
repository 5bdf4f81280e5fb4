// Package config loads the llmvc YAML configuration file.
package config

import (
	"slices"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/dispatch"
	"github.com/wlyh514/discord-llmvc-bot/runtime/identity"
	"github.com/wlyh514/discord-llmvc-bot/runtime/playback"
	"github.com/wlyh514/discord-llmvc-bot/runtime/segment"
	"github.com/wlyh514/discord-llmvc-bot/runtime/session"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/telemetry"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport/wsbridge"
)

// Config is the root of the configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Speech     SpeechConfig     `yaml:"speech"`
	Segments   SegmentsConfig   `yaml:"segments"`
	Interrupt  InterruptConfig  `yaml:"interrupt"`
	Agent      AgentConfig      `yaml:"agent"`
	Connection ConnectionConfig `yaml:"connection"`
	Identity   IdentityConfig   `yaml:"identity"`
}

// ServerConfig configures the gateway WebSocket endpoint.
type ServerConfig struct {
	Listen           string        `yaml:"listen"`
	Path             string        `yaml:"path"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	WriteWait        time.Duration `yaml:"writeWait"`
	MaxMessageSize   int64         `yaml:"maxMessageSize"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Endpoint    string   `yaml:"endpoint"`
	ServiceName string   `yaml:"serviceName"`
	Propagators []string `yaml:"propagators"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level        string            `yaml:"level"`
	Format       string            `yaml:"format"`
	CommonFields map[string]string `yaml:"commonFields"`
	Modules      []ModuleLogging   `yaml:"modules"`
	File         *LogFileConfig    `yaml:"file"`
}

// ModuleLogging overrides the level of one module, e.g. "runtime.playback".
type ModuleLogging struct {
	Name  string `yaml:"name"`
	Level string `yaml:"level"`
}

// LogFileConfig enables a rotated log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// OpenAIConfig holds the credentials shared by STT, TTS and the agent.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

// SpeechConfig configures transcription, synthesis and playback.
type SpeechConfig struct {
	STTModel      string        `yaml:"sttModel"`
	Language      string        `yaml:"language"`
	Prompt        string        `yaml:"prompt"`
	TTSModel      string        `yaml:"ttsModel"`
	Voice         string        `yaml:"voice"`
	Speed         float64       `yaml:"speed"`
	FrameDuration time.Duration `yaml:"frameDuration"`
	VAD           VADConfig     `yaml:"vad"`
}

// VADConfig configures the speech-validity gate in front of STT.
type VADConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinVolume float64 `yaml:"minVolume"`
	StartSecs float64 `yaml:"startSecs"`
	StopSecs  float64 `yaml:"stopSecs"`
}

// SegmentsConfig bounds per-speaker audio segments.
type SegmentsConfig struct {
	SilenceGap  time.Duration `yaml:"silenceGap"`
	MaxDuration time.Duration `yaml:"maxDuration"`
}

// InterruptConfig configures barge-in handling.
type InterruptConfig struct {
	GracePeriod time.Duration `yaml:"gracePeriod"`
}

// AgentConfig configures the LLM agent and the reply dispatcher.
type AgentConfig struct {
	Model           string            `yaml:"model"`
	Temperature     float64           `yaml:"temperature"`
	SystemPrompt    string            `yaml:"systemPrompt"`
	MaxSteps        int               `yaml:"maxSteps"`
	MaxHistory      int               `yaml:"maxHistory"`
	Timeout         time.Duration     `yaml:"timeout"`
	Apology         string            `yaml:"apology"`
	ApologyInterval time.Duration     `yaml:"apologyInterval"`
	Notices         map[string]string `yaml:"notices"`
	Search          SearchConfig      `yaml:"search"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseURL"`
}

// ConnectionConfig bounds connection state waits.
type ConnectionConfig struct {
	ReadyTimeout     time.Duration `yaml:"readyTimeout"`
	ReconnectTimeout time.Duration `yaml:"reconnectTimeout"`
}

// IdentityConfig configures participant lookups.
type IdentityConfig struct {
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	LookupTimeout time.Duration `yaml:"lookupTimeout"`
}

// Default listen addresses.
const (
	DefaultListen        = ":8080"
	DefaultPath          = "/gateway"
	DefaultMetricsListen = ":9090"
	DefaultServiceName   = "llmvc"
)

// Defaults returns a Config with every field set.
func Defaults() *Config {
	ag := agent.DefaultConfig()
	disp := dispatch.DefaultConfig()
	seg := segment.DefaultConfig()
	sess := session.DefaultConfig()
	vad := audio.DefaultVADParams()

	return &Config{
		Server: ServerConfig{
			Listen:           DefaultListen,
			Path:             DefaultPath,
			HandshakeTimeout: wsbridge.DefaultHandshakeTimeout,
			WriteWait:        wsbridge.DefaultWriteWait,
			MaxMessageSize:   wsbridge.DefaultMaxMessageSize,
		},
		Metrics: MetricsConfig{Enabled: true, Listen: DefaultMetricsListen},
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
			Propagators: slices.Clone(telemetry.DefaultPropagators),
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Speech: SpeechConfig{
			STTModel:      stt.ModelWhisper1,
			Prompt:        stt.DefaultPrompt,
			TTSModel:      disp.Synthesis.Model,
			Voice:         disp.Synthesis.Voice,
			Speed:         disp.Synthesis.Speed,
			FrameDuration: playback.DefaultFrameDuration,
			VAD: VADConfig{
				Enabled:   true,
				MinVolume: vad.MinVolume,
				StartSecs: vad.StartSecs,
				StopSecs:  vad.StopSecs,
			},
		},
		Segments: SegmentsConfig{
			SilenceGap:  seg.SilenceGap,
			MaxDuration: seg.MaxDuration,
		},
		Interrupt: InterruptConfig{GracePeriod: playback.DefaultGracePeriod},
		Agent: AgentConfig{
			Model:           ag.Model,
			Temperature:     ag.Temperature,
			SystemPrompt:    ag.SystemPrompt,
			MaxSteps:        ag.MaxSteps,
			MaxHistory:      ag.MaxHistory,
			Timeout:         ag.Timeout,
			Apology:         disp.Apology,
			ApologyInterval: disp.ApologyInterval,
			Search:          SearchConfig{Enabled: true},
		},
		Connection: ConnectionConfig{
			ReadyTimeout:     sess.ReadyTimeout,
			ReconnectTimeout: sess.ReconnectTimeout,
		},
		Identity: IdentityConfig{
			CacheTTL:      identity.DefaultCacheTTL,
			LookupTimeout: sess.LookupTimeout,
		},
	}
}
