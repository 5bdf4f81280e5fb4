// Package audio provides PCM helpers used by the voice pipeline: format
// arithmetic, RMS-based speech detection over a captured segment, and
// sample-rate and channel conversion.
//
// All functions operate on little-endian signed 16-bit PCM.
//
// # Usage Example
//
//	det, _ := audio.NewSpeechDetector(audio.DefaultVADParams())
//	res, err := det.Analyze(ctx, segmentPCM, audio.Format{SampleRate: 16000, Channels: 1})
//	if err == nil && !res.ContainsSpeech {
//	    // treat the segment as noise
//	}
package audio
