package tts

import (
	"context"
	"io"
)

const (
	sampleRateDefault = 24000
	bitDepthDefault   = 16
)

// Service converts text to speech audio.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Synthesize converts text to audio. The caller must close the reader.
	Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error)

	// SupportedVoices returns available voices for this provider.
	SupportedVoices() []Voice

	// SupportedFormats returns supported audio output formats.
	SupportedFormats() []AudioFormat
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the voice ID to use for synthesis.
	Voice string

	// Format is the output audio format.
	Format AudioFormat

	// Speed is the speech rate multiplier (0.25-4.0, default 1.0).
	Speed float64

	// Model is the TTS model to use (provider-specific).
	Model string
}

// DefaultSynthesisConfig returns the settings the player expects: PCM16 in
// the echo voice at normal speed.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Voice:  VoiceEcho,
		Format: FormatPCM16,
		Speed:  1.0,
		Model:  ModelTTS1,
	}
}

// Voice describes a TTS voice available from a provider.
type Voice struct {
	ID          string
	Name        string
	Language    string
	Gender      string
	Description string
}

// AudioFormat describes an audio output format.
type AudioFormat struct {
	// Name is the format identifier ("mp3", "opus", "pcm", "aac", "flac", "wav").
	Name string

	// MIMEType is the content type (e.g., "audio/mpeg").
	MIMEType string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// BitDepth is the bits per sample; zero for compressed formats.
	BitDepth int

	// Channels is the number of audio channels (1=mono, 2=stereo).
	Channels int
}

// Common audio formats.
var (
	FormatMP3   = AudioFormat{Name: "mp3", MIMEType: "audio/mpeg", SampleRate: sampleRateDefault, Channels: 1}
	FormatOpus  = AudioFormat{Name: "opus", MIMEType: "audio/opus", SampleRate: sampleRateDefault, Channels: 1}
	FormatAAC   = AudioFormat{Name: "aac", MIMEType: "audio/aac", SampleRate: sampleRateDefault, Channels: 1}
	FormatFLAC  = AudioFormat{Name: "flac", MIMEType: "audio/flac", SampleRate: sampleRateDefault, BitDepth: bitDepthDefault, Channels: 1}
	FormatWAV   = AudioFormat{Name: "wav", MIMEType: "audio/wav", SampleRate: sampleRateDefault, BitDepth: bitDepthDefault, Channels: 1}
	FormatPCM16 = AudioFormat{Name: "pcm", MIMEType: "audio/pcm", SampleRate: sampleRateDefault, BitDepth: bitDepthDefault, Channels: 1}
)

// String returns the format name.
func (f AudioFormat) String() string {
	return f.Name
}

// IsRawPCM reports whether the format is headerless PCM the player can pace directly.
func (f AudioFormat) IsRawPCM() bool {
	return f.Name == FormatPCM16.Name
}
