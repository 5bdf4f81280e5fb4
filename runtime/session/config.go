package session

import (
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/dispatch"
	"github.com/wlyh514/discord-llmvc-bot/runtime/playback"
	"github.com/wlyh514/discord-llmvc-bot/runtime/segment"
	"github.com/wlyh514/discord-llmvc-bot/runtime/tts"
)

// Connection timeouts.
const (
	DefaultReadyTimeout     = 20 * time.Second
	DefaultReconnectTimeout = 5 * time.Second
	DefaultLookupTimeout    = 5 * time.Second
)

// Config is the per-session configuration. It is built once per session
// from the loaded configuration file and handed down to every component.
type Config struct {
	// ReadyTimeout bounds the wait for the connection to become ready.
	ReadyTimeout time.Duration
	// ReconnectTimeout bounds each reconnection wait after a disconnect.
	ReconnectTimeout time.Duration
	// GracePeriod is how long a focal speaker may talk over playback
	// before it pauses.
	GracePeriod time.Duration
	// FrameDuration is the pacing of outgoing audio frames.
	FrameDuration time.Duration
	// LookupTimeout bounds identity lookups.
	LookupTimeout time.Duration

	Segments segment.Config
	Dispatch dispatch.Config
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout:     DefaultReadyTimeout,
		ReconnectTimeout: DefaultReconnectTimeout,
		GracePeriod:      playback.DefaultGracePeriod,
		FrameDuration:    playback.DefaultFrameDuration,
		LookupTimeout:    DefaultLookupTimeout,
		Segments:         segment.DefaultConfig(),
		Dispatch:         dispatch.DefaultConfig(),
	}
}

//nolint:gocritic // hugeParam: config is copied once per session
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = d.ReconnectTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = d.FrameDuration
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	if c.Dispatch.Synthesis == (tts.SynthesisConfig{}) {
		c.Dispatch.Synthesis = d.Dispatch.Synthesis
	}
	return c
}
