package stt

import (
	"context"
)

const (
	// Default audio settings.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultBitDepth   = 16

	// DefaultPrompt primes Whisper with the way users address the bot.
	DefaultPrompt = "Hey GPT. "

	// Common audio formats.
	FormatPCM = "pcm"
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Service transcribes audio to text.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Transcribe converts audio to text. An empty result means nothing
	// intelligible was said.
	Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error)

	// SupportedFormats returns supported audio input formats.
	SupportedFormats() []string
}

// TranscriptionConfig configures speech-to-text transcription.
type TranscriptionConfig struct {
	// Format is the audio format ("pcm", "wav", "mp3"). Default: "pcm".
	Format string

	// SampleRate is the audio sample rate in Hz. Default: 16000.
	SampleRate int

	// Channels is the number of audio channels (1=mono, 2=stereo). Default: 1.
	Channels int

	// BitDepth is the bits per sample for PCM audio. Default: 16.
	BitDepth int

	// Language is an optional ISO-639-1 hint. Empty lets the provider detect it.
	Language string

	// Model is the STT model to use (provider-specific).
	Model string

	// Prompt is a text prompt to guide transcription.
	Prompt string

	// Temperature is the sampling temperature. Zero keeps output deterministic.
	Temperature float64
}

// DefaultTranscriptionConfig returns sensible defaults for transcription.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Format:     FormatPCM,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
		Prompt:     DefaultPrompt,
	}
}

// withDefaults fills zero-valued audio fields.
//
//nolint:gocritic // hugeParam: copied on purpose
func (c TranscriptionConfig) withDefaults() TranscriptionConfig {
	if c.Format == "" {
		c.Format = FormatPCM
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.BitDepth == 0 {
		c.BitDepth = DefaultBitDepth
	}
	return c
}
