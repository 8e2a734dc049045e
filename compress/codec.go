package compress

import "errors"

// Common errors returned by codecs.
var (
	// ErrUnknownAlgorithm is returned when a Result carries an
	// algorithm tag the codec cannot decode.
	ErrUnknownAlgorithm = errors.New("compress: unknown algorithm")

	// ErrCorruptPayload is returned when compressed bytes cannot be
	// reconstructed.
	ErrCorruptPayload = errors.New("compress: corrupt payload")
)

// Algorithm tags recorded in Result.Algorithm.
const (
	// AlgorithmNone marks a payload stored uncompressed because
	// compression would not have reduced its size.
	AlgorithmNone = "none"

	// AlgorithmGzip marks a gzip-compressed payload.
	AlgorithmGzip = "gzip"

	// AlgorithmVectorQ8 marks a payload quantized to uint8 and then
	// gzip-compressed. Reconstruction requires the scale and offset
	// metadata.
	AlgorithmVectorQ8 = "vector-q8"
)

// Result is the outcome of a compression call. Everything needed to
// reconstruct the original — the bytes, the algorithm tag, and the
// metadata — travels together with the stored payload.
type Result struct {
	// Data is the compressed payload.
	Data []byte

	// OriginalSize is the input size in bytes.
	OriginalSize int

	// CompressedSize is len(Data).
	CompressedSize int

	// Algorithm tags how Data was produced.
	Algorithm string

	// Metadata carries algorithm-specific reconstruction parameters,
	// such as the scale and offset of a quantized vector.
	Metadata map[string]string
}

// Ratio returns CompressedSize / OriginalSize, or 1 for empty input.
func (r *Result) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 1
	}
	return float64(r.CompressedSize) / float64(r.OriginalSize)
}

// Codec compresses and decompresses opaque byte payloads.
type Codec interface {
	// Compress compresses data. The returned Result carries the tag
	// and metadata Decompress needs.
	Compress(data []byte) (*Result, error)

	// Decompress reconstructs the original bytes from a compressed
	// payload, its algorithm tag, and its metadata.
	Decompress(data []byte, algorithm string, metadata map[string]string) ([]byte, error)
}
