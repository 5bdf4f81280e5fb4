package audio

import "time"

// pcmBytesPerSample is the number of bytes per 16-bit PCM sample.
const pcmBytesPerSample = 2

// Format describes interleaved 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Common formats.
var (
	// FormatSTT is what speech-to-text services expect.
	FormatSTT = Format{SampleRate: SampleRate16kHz, Channels: 1}
	// FormatTTS is what the OpenAI speech endpoint returns for "pcm".
	FormatTTS = Format{SampleRate: SampleRate24kHz, Channels: 1}
)

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.channels() * pcmBytesPerSample
}

// FrameBytes returns the size of a frame of duration d, rounded down to a
// whole number of sample frames.
func (f Format) FrameBytes(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.channels() * pcmBytesPerSample
}

// Duration returns the playback length of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}
