package stt

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// errNoSpeech aborts the transcription branch once the detector has ruled
// the segment out.
var errNoSpeech = errors.New("segment holds no speech")

// Gated runs a transcription and a speech-detector pass over the same PCM
// segment concurrently. If the detector finds no speech the transcription is
// cancelled, awaited, and the segment resolves to empty text; otherwise the
// transcription result is returned as is. Non-PCM input bypasses the gate.
type Gated struct {
	inner    Service
	detector *audio.SpeechDetector
}

// NewGated wraps inner with a speech-validity gate using the given VAD params.
func NewGated(inner Service, params audio.VADParams) (*Gated, error) {
	detector, err := audio.NewSpeechDetector(params)
	if err != nil {
		return nil, err
	}
	return &Gated{inner: inner, detector: detector}, nil
}

// Name returns the wrapped provider name with a gate marker.
func (g *Gated) Name() string {
	return g.inner.Name() + "+vad"
}

// SupportedFormats returns the wrapped provider formats.
func (g *Gated) SupportedFormats() []string {
	return g.inner.SupportedFormats()
}

// Transcribe joins the detector and the provider call. Whichever finishes
// first, both are awaited before returning.
//
//nolint:gocritic // hugeParam: TranscriptionConfig passed by value to satisfy Service interface
func (g *Gated) Transcribe(ctx context.Context, pcm []byte, config TranscriptionConfig) (string, error) {
	config = config.withDefaults()
	if config.Format != FormatPCM || config.BitDepth != DefaultBitDepth {
		return g.inner.Transcribe(ctx, pcm, config)
	}

	grp, gctx := errgroup.WithContext(ctx)

	var text string
	grp.Go(func() error {
		var err error
		text, err = g.inner.Transcribe(gctx, pcm, config)
		return err
	})
	grp.Go(func() error {
		format := audio.Format{SampleRate: config.SampleRate, Channels: config.Channels}
		speech, err := g.detector.ContainsSpeech(gctx, pcm, format)
		if err != nil {
			// Cancelled because the transcription failed first.
			return nil
		}
		if !speech {
			return errNoSpeech
		}
		return nil
	})

	err := grp.Wait()
	switch {
	case errors.Is(err, errNoSpeech):
		logger.DebugContext(ctx, "segment rejected by speech detector", "bytes", len(pcm))
		return "", nil
	case err != nil:
		return "", err
	default:
		return text, nil
	}
}
