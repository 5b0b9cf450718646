package database

import (
	"encoding/binary"
	"math"
)

// Embedding vectors and waveform samples are stored as packed little-endian
// float32 values.

// EncodeFloat32s packs values into a blob.
func EncodeFloat32s(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32s unpacks a blob; a trailing partial value is ignored.
func DecodeFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
