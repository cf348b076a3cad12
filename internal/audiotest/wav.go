// Package audiotest builds small audio fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
)

// RampWAV returns a 16-bit stereo PCM WAV file with the given number of frames.
// Frame i holds the value i+1 on both channels, so decoded samples strictly
// increase and any reordering or duplication is visible.
func RampWAV(sampleRate, frames int) []byte {
	const (
		channels      = 2
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	dataSize := frames * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames; i++ {
		v := int16(i%32767 + 1)
		_ = binary.Write(&buf, binary.LittleEndian, v)
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}

	return buf.Bytes()
}

// Noise returns deterministic bytes that no codec accepts as a header.
func Noise(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}
