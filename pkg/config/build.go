package config

import (
	"maps"

	"github.com/wlyh514/discord-llmvc-bot/runtime/agent"
	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/dispatch"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/segment"
	"github.com/wlyh514/discord-llmvc-bot/runtime/session"
	"github.com/wlyh514/discord-llmvc-bot/runtime/stt"
	"github.com/wlyh514/discord-llmvc-bot/runtime/transport/wsbridge"
	"github.com/wlyh514/discord-llmvc-bot/runtime/tts"
)

// SessionConfig builds the per-session configuration.
func (c *Config) SessionConfig() session.Config {
	notices := maps.Clone(dispatch.DefaultNotices)
	maps.Copy(notices, c.Agent.Notices)

	return session.Config{
		ReadyTimeout:     c.Connection.ReadyTimeout,
		ReconnectTimeout: c.Connection.ReconnectTimeout,
		GracePeriod:      c.Interrupt.GracePeriod,
		FrameDuration:    c.Speech.FrameDuration,
		LookupTimeout:    c.Identity.LookupTimeout,
		Segments: segment.Config{
			SilenceGap:    c.Segments.SilenceGap,
			MaxDuration:   c.Segments.MaxDuration,
			Transcription: c.TranscriptionConfig(),
		},
		Dispatch: dispatch.Config{
			Synthesis:       c.SynthesisConfig(),
			Notices:         notices,
			Apology:         c.Agent.Apology,
			ApologyInterval: c.Agent.ApologyInterval,
		},
	}
}

// TranscriptionConfig builds the STT request settings.
func (c *Config) TranscriptionConfig() stt.TranscriptionConfig {
	tc := stt.DefaultTranscriptionConfig()
	tc.Model = c.Speech.STTModel
	tc.Language = c.Speech.Language
	tc.Prompt = c.Speech.Prompt
	return tc
}

// SynthesisConfig builds the TTS request settings.
func (c *Config) SynthesisConfig() tts.SynthesisConfig {
	sc := tts.DefaultSynthesisConfig()
	if c.Speech.Voice != "" {
		sc.Voice = c.Speech.Voice
	}
	if c.Speech.TTSModel != "" {
		sc.Model = c.Speech.TTSModel
	}
	if c.Speech.Speed != 0 {
		sc.Speed = c.Speech.Speed
	}
	return sc
}

// AgentConfig builds the agent configuration.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		Model:        c.Agent.Model,
		Temperature:  c.Agent.Temperature,
		SystemPrompt: c.Agent.SystemPrompt,
		MaxSteps:     c.Agent.MaxSteps,
		MaxHistory:   c.Agent.MaxHistory,
		Timeout:      c.Agent.Timeout,
	}
}

// VADParams builds the speech-validity gate parameters.
func (c *Config) VADParams() audio.VADParams {
	p := audio.DefaultVADParams()
	p.MinVolume = c.Speech.VAD.MinVolume
	p.StartSecs = c.Speech.VAD.StartSecs
	p.StopSecs = c.Speech.VAD.StopSecs
	return p
}

// BridgeConfig builds the gateway server configuration.
func (c *Config) BridgeConfig() wsbridge.Config {
	return wsbridge.Config{
		HandshakeTimeout: c.Server.HandshakeTimeout,
		WriteWait:        c.Server.WriteWait,
		MaxMessageSize:   c.Server.MaxMessageSize,
	}
}

// LoggingSpec converts the logging section for logger.Configure.
func (c *Config) LoggingSpec() *logger.LoggingConfigSpec {
	spec := &logger.LoggingConfigSpec{
		DefaultLevel: c.Logging.Level,
		Format:       c.Logging.Format,
		CommonFields: c.Logging.CommonFields,
	}
	for _, m := range c.Logging.Modules {
		spec.Modules = append(spec.Modules, logger.ModuleLoggingSpec{Name: m.Name, Level: m.Level})
	}
	if f := c.Logging.File; f != nil {
		spec.File = &logger.FileSinkSpec{
			Path:       f.Path,
			MaxSizeMB:  f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAgeDays: f.MaxAgeDays,
			Compress:   f.Compress,
		}
	}
	return spec
}
