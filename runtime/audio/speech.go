package audio

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

const (
	// defaultSmoothingAlpha is the exponential smoothing factor (0.0-1.0).
	defaultSmoothingAlpha = 0.3
	// pcmMaxAmplitude is the maximum amplitude for 16-bit signed audio.
	pcmMaxAmplitude = 32768.0
	// maxExpectedRMS is the expected maximum RMS for voice audio.
	maxExpectedRMS = 0.5
	// ctxCheckInterval is how many frames are analyzed between context checks.
	ctxCheckInterval = 50
)

// SpeechAnalysis summarizes a buffer run through the speech detector.
type SpeechAnalysis struct {
	// ContainsSpeech is true once the detector reached VADStateSpeaking.
	ContainsSpeech bool
	// SpeechDuration is the total time spent in the speaking states.
	SpeechDuration time.Duration
	// PeakProbability is the highest per-frame voice probability.
	PeakProbability float64
	// Frames is the number of analysis windows.
	Frames int
}

// SpeechDetector decides whether a captured segment holds speech or only
// noise. It is an RMS detector whose state machine advances on audio time
// rather than wall-clock time, so a whole segment can be analyzed at once.
// A SpeechDetector holds no per-call state and is safe for concurrent use.
type SpeechDetector struct {
	params VADParams
	alpha  float64
}

// NewSpeechDetector creates a SpeechDetector with the given parameters.
func NewSpeechDetector(params VADParams) (*SpeechDetector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &SpeechDetector{params: params, alpha: defaultSmoothingAlpha}, nil
}

// Name returns the analyzer identifier.
func (d *SpeechDetector) Name() string {
	return "simple-rms"
}

// Analyze walks pcm in FrameMS windows. Multi-channel input is downmixed
// first. It returns ctx.Err() if the context is cancelled mid-analysis.
func (d *SpeechDetector) Analyze(ctx context.Context, pcm []byte, format Format) (SpeechAnalysis, error) {
	var res SpeechAnalysis
	if len(pcm) < pcmBytesPerSample {
		return res, nil
	}

	if format.channels() > 1 {
		mono, err := DownmixPCM16(pcm, format.channels())
		if err != nil {
			return res, err
		}
		pcm = mono
		format.Channels = 1
	}
	if format.SampleRate <= 0 {
		format.SampleRate = d.params.SampleRate
	}

	frameDur := time.Duration(d.params.FrameMS) * time.Millisecond
	frameBytes := format.FrameBytes(frameDur)
	if frameBytes < pcmBytesPerSample {
		frameBytes = pcmBytesPerSample
	}

	state := VADStateQuiet
	var inState time.Duration
	var smoothed float64

	for off := 0; off < len(pcm); off += frameBytes {
		if res.Frames%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		end := min(off+frameBytes, len(pcm))
		frame := pcm[off:end]
		actual := format.Duration(len(frame))

		smoothed = d.alpha*calculateRMS(frame) + (1-d.alpha)*smoothed
		probability := d.rmsToProbability(smoothed)
		res.PeakProbability = math.Max(res.PeakProbability, probability)
		res.Frames++

		inState += actual
		next := d.nextState(state, probability, inState.Seconds())
		if next != state {
			state = next
			inState = 0
		}
		if state == VADStateSpeaking || state == VADStateStopping {
			res.SpeechDuration += actual
			res.ContainsSpeech = true
		}
	}
	return res, nil
}

// ContainsSpeech is a convenience wrapper around Analyze.
func (d *SpeechDetector) ContainsSpeech(ctx context.Context, pcm []byte, format Format) (bool, error) {
	res, err := d.Analyze(ctx, pcm, format)
	return res.ContainsSpeech, err
}

// calculateRMS computes the Root Mean Square of 16-bit PCM audio samples.
func calculateRMS(audio []byte) float64 {
	numSamples := len(audio) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(audio[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}

// rmsToProbability converts RMS to a voice probability.
func (d *SpeechDetector) rmsToProbability(rms float64) float64 {
	if rms <= d.params.MinVolume {
		return 0
	}
	// Typical voice RMS is 0.05-0.3 for normalized audio.
	probability := (rms - d.params.MinVolume) / (maxExpectedRMS - d.params.MinVolume)
	return math.Min(math.Max(probability, 0), 1)
}

// nextState is the VAD state machine step.
func (d *SpeechDetector) nextState(current VADState, probability, stateSecs float64) VADState {
	aboveThreshold := probability >= d.params.Confidence

	switch current {
	case VADStateQuiet:
		if aboveThreshold {
			return VADStateStarting
		}
	case VADStateStarting:
		if !aboveThreshold {
			return VADStateQuiet
		}
		if stateSecs >= d.params.StartSecs {
			return VADStateSpeaking
		}
	case VADStateSpeaking:
		if !aboveThreshold {
			return VADStateStopping
		}
	case VADStateStopping:
		if aboveThreshold {
			return VADStateSpeaking
		}
		if stateSecs >= d.params.StopSecs {
			return VADStateQuiet
		}
	}
	return current
}
