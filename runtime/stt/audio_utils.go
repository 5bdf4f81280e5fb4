package stt

import "encoding/binary"

const wavHeaderSize = 44

// WrapPCMAsWAV prefixes raw little-endian PCM with a canonical 44-byte WAV
// header so it can be uploaded as a file.
//
//nolint:gosec // header fields are small positive values; segments are capped far below 4GiB
func WrapPCMAsWAV(pcmData []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := uint32(len(pcmData))
	blockAlign := uint16(channels * bitsPerSample / 8)
	le := binary.LittleEndian

	wav := make([]byte, wavHeaderSize+len(pcmData))

	copy(wav[0:4], "RIFF")
	le.PutUint32(wav[4:8], 36+dataSize)
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	le.PutUint32(wav[16:20], 16) // PCM fmt chunk size
	le.PutUint16(wav[20:22], 1)  // PCM
	le.PutUint16(wav[22:24], uint16(channels))
	le.PutUint32(wav[24:28], uint32(sampleRate))
	le.PutUint32(wav[28:32], uint32(sampleRate)*uint32(blockAlign))
	le.PutUint16(wav[32:34], blockAlign)
	le.PutUint16(wav[34:36], uint16(bitsPerSample))

	copy(wav[36:40], "data")
	le.PutUint32(wav[40:44], dataSize)
	copy(wav[44:], pcmData)

	return wav
}
