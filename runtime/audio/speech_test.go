package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// sineWave creates mono 16-bit PCM of the given duration and amplitude (0.0-1.0).
func sineWave(f Format, d time.Duration, amplitude float64) []byte {
	samples := f.FrameBytes(d) / pcmBytesPerSample
	data := make([]byte, samples*pcmBytesPerSample)
	for i := 0; i < samples; i++ {
		sample := int16(amplitude * 32767 * math.Sin(float64(i)*0.1))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}

func TestNewSpeechDetector(t *testing.T) {
	if _, err := NewSpeechDetector(VADParams{Confidence: -1}); err == nil {
		t.Error("expected error on invalid params")
	}
	d, err := NewSpeechDetector(DefaultVADParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name() != "simple-rms" {
		t.Errorf("Name() = %q", d.Name())
	}
}

func TestSpeechDetector_Analyze(t *testing.T) {
	d, _ := NewSpeechDetector(DefaultVADParams())
	ctx := context.Background()

	tests := []struct {
		name   string
		pcm    []byte
		format Format
		want   bool
	}{
		{"empty", nil, FormatSTT, false},
		{"silence", make([]byte, FormatSTT.FrameBytes(time.Second)), FormatSTT, false},
		{"faint hum", sineWave(FormatSTT, time.Second, 0.03), FormatSTT, false},
		{"short click", sineWave(FormatSTT, 60*time.Millisecond, 0.8), FormatSTT, false},
		{"loud voice", sineWave(FormatSTT, 800*time.Millisecond, 0.5), FormatSTT, true},
		{"loud voice at 24kHz", sineWave(FormatTTS, 800*time.Millisecond, 0.5), FormatTTS, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Analyze(ctx, tt.pcm, tt.format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ContainsSpeech != tt.want {
				t.Errorf("ContainsSpeech = %v, want %v (analysis %+v)", res.ContainsSpeech, tt.want, res)
			}
			if tt.want && res.SpeechDuration <= 0 {
				t.Errorf("expected a positive speech duration, got %v", res.SpeechDuration)
			}
		})
	}
}

func TestSpeechDetector_Stereo(t *testing.T) {
	d, _ := NewSpeechDetector(DefaultVADParams())
	mono := sineWave(FormatSTT, 800*time.Millisecond, 0.5)
	stereo := UpmixPCM16(mono, 2)

	ok, err := d.ContainsSpeech(context.Background(), stereo, Format{SampleRate: 16000, Channels: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected stereo voice to be detected")
	}
}

func TestSpeechDetector_Cancelled(t *testing.T) {
	d, _ := NewSpeechDetector(DefaultVADParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Analyze(ctx, sineWave(FormatSTT, time.Second, 0.5), FormatSTT); err == nil {
		t.Error("expected context error")
	}
}
