package compress

import (
	"fmt"
	"strconv"
)

// Metadata keys recorded by the Vector codec.
const (
	metaOffset = "offset"
	metaScale  = "scale"
)

// Vector quantizes float32 vectors to one byte per element before
// compressing, trading precision for a 4x size reduction ahead of the
// entropy coder. The value range is mapped linearly onto [0, 255]; the
// offset and scale needed to invert the mapping are recorded in the
// Result metadata, so reconstruction is exact in shape and bounded in
// error by scale/2 per element.
type Vector struct {
	inner *Gzip
}

// NewVector creates a Vector codec backed by a gzip coder at the given
// level.
func NewVector(level int) *Vector {
	return &Vector{inner: NewGzip(level)}
}

// CompressVector quantizes and compresses a float32 vector.
func (v *Vector) CompressVector(vec []float32) (*Result, error) {
	if len(vec) == 0 {
		return &Result{
			Algorithm: AlgorithmVectorQ8,
			Metadata:  map[string]string{metaOffset: "0", metaScale: "0"},
		}, nil
	}

	min, max := vec[0], vec[0]
	for _, f := range vec[1:] {
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}

	scale := float64(max-min) / 255.0
	quantized := make([]byte, len(vec))
	if scale > 0 {
		for i, f := range vec {
			quantized[i] = byte(float64(f-min)/scale + 0.5)
		}
	}

	compressed, err := v.inner.Compress(quantized)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:           compressed.Data,
		OriginalSize:   len(vec) * 4,
		CompressedSize: compressed.CompressedSize,
		Algorithm:      AlgorithmVectorQ8,
		Metadata: map[string]string{
			metaOffset: strconv.FormatFloat(float64(min), 'g', -1, 64),
			metaScale:  strconv.FormatFloat(scale, 'g', -1, 64),
			// The inner algorithm tag is needed to pick the right
			// byte-level decoder.
			"inner": compressed.Algorithm,
		},
	}, nil
}

// DecompressVector reconstructs a quantized vector from its compressed
// bytes and metadata.
func (v *Vector) DecompressVector(data []byte, algorithm string, metadata map[string]string) ([]float32, error) {
	if algorithm != AlgorithmVectorQ8 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	offset, err := strconv.ParseFloat(metadata[metaOffset], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad offset %q", ErrCorruptPayload, metadata[metaOffset])
	}
	scale, err := strconv.ParseFloat(metadata[metaScale], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad scale %q", ErrCorruptPayload, metadata[metaScale])
	}

	if len(data) == 0 {
		return nil, nil
	}

	inner := metadata["inner"]
	if inner == "" {
		inner = AlgorithmGzip
	}
	quantized, err := v.inner.Decompress(data, inner, nil)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(quantized))
	for i, q := range quantized {
		out[i] = float32(offset + float64(q)*scale)
	}
	return out, nil
}
