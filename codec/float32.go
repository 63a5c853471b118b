package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PackFloat32 encodes a vector as packed little-endian float32 bytes, the
// on-disk format of the embeddings table.
func PackFloat32(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// UnpackFloat32 decodes packed little-endian float32 bytes. A length that
// is not a multiple of 4 indicates a corrupt row.
func UnpackFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed float32 length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
