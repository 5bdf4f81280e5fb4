// Package testutil provides shared test helpers.
package testutil

import (
	"encoding/binary"
	"math"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Tone returns mono PCM16 little-endian audio holding a sine wave of the
// given number of samples at amplitude in [0, 1].
func Tone(samples int, amplitude float64) []byte {
	out := make([]byte, samples*2)
	for i := range samples {
		s := int16(amplitude * math.MaxInt16 * math.Sin(float64(i)*0.1))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
