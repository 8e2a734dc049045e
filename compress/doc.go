// Package compress provides the byte-compression boundary used for
// stored pattern payloads.
//
// The Codec contract is deliberately narrow: compress bytes, get back
// the compressed form plus the algorithm tag and metadata needed for
// exact reconstruction; hand all three back to decompress. Storage and
// cache layers call a Codec opportunistically and never interpret the
// compressed bytes themselves.
//
// Two implementations are provided: Gzip, a general-purpose DEFLATE
// codec, and Vector, a lossy uint8 quantizer for embedding-like float32
// payloads that records the scale and offset required to reconstruct
// the original value range.
package compress
