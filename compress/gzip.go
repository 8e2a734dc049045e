package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Gzip is a DEFLATE-family Codec. When gzip does not shrink the input
// (small or incompressible payloads), the original bytes are stored
// as-is under AlgorithmNone, so reads never pay an inflation cost for
// payloads that did not benefit.
type Gzip struct {
	level int
}

// NewGzip creates a Gzip codec with the given compression level
// (gzip.BestSpeed through gzip.BestCompression). Out-of-range levels
// select gzip.DefaultCompression.
func NewGzip(level int) *Gzip {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Gzip{level: level}
}

// Compress implements Codec.
func (g *Gzip) Compress(data []byte) (*Result, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("compress: create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: gzip close: %w", err)
	}

	result := &Result{
		OriginalSize: len(data),
		Algorithm:    AlgorithmGzip,
	}
	if buf.Len() >= len(data) {
		result.Algorithm = AlgorithmNone
		result.Data = append([]byte(nil), data...)
	} else {
		result.Data = buf.Bytes()
	}
	result.CompressedSize = len(result.Data)
	return result, nil
}

// Decompress implements Codec.
func (g *Gzip) Decompress(data []byte, algorithm string, _ map[string]string) ([]byte, error) {
	switch algorithm {
	case AlgorithmNone:
		return append([]byte(nil), data...), nil
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
