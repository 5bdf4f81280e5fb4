// Package stt provides speech-to-text services for converting captured voice
// segments to text.
//
// The package provides:
//   - Service, the provider-neutral transcription interface
//   - OpenAIService, backed by the Whisper transcription endpoint
//   - Gated, a Service decorator that discards segments a speech detector
//     classifies as noise
//
// # Usage
//
//	inner := stt.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
//	svc, _ := stt.NewGated(inner, audio.DefaultVADParams())
//	text, err := svc.Transcribe(ctx, pcm, stt.DefaultTranscriptionConfig())
//
// An empty string with a nil error means the segment held no speech.
package stt
