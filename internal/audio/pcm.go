package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeFloat32LE reinterprets raw bytes as little-endian float32 mono PCM
// samples, the wire format speakers send (spec §6: "audio: base64(float32
// PCM LE)"). Returns an error if the byte count is not a multiple of 4.
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("audio payload length %d is not a multiple of 4 bytes", len(data))
	}
	n := len(data) / 4
	samples := make([]float32, n)
	for i := range n {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
