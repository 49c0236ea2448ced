// Package compress wraps zstd compression for the cache's on-disk
// payloads, with optional support for a shared trained dictionary.
// A Codec pairs an encoder and a decoder that carry the same
// dictionary reference, so callers never risk compressing with one
// dictionary and decompressing with another.
package compress

import (
	"fmt"

	"github.com/cuemby/geocache/pkg/metrics"
	"github.com/klauspost/compress/zstd"
)

// DefaultLevel is "balanced" compression, matching the teacher
// convention of defaulting to zstd level 6: fast enough for a bulk
// writer ingesting millions of records, while still compressing
// small JSON documents well.
const DefaultLevel = 6

// Level is a zstd compression level in the 1-22 range accepted by the
// underlying library. Values outside that range are rejected by
// NewCodec.
type Level int

// Codec holds a compressor and a decompressor that share an optional
// dictionary. A read-only Codec (built with NewDecodeOnlyCodec) has no
// compressor; calling Compress on it is a misuse error.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	dict    []byte
}

// NewCodec builds a read-write Codec at the given level, optionally
// bound to dict. Passing a nil dict compresses without one.
func NewCodec(level Level, dict []byte) (*Codec, error) {
	if level < 1 || level > 22 {
		return nil, fmt.Errorf("compress: level %d out of range [1,22]", level)
	}

	eopts := []zstd.EOption{zstd.WithEncoderLevel(zstdLevel(level))}
	dopts := []zstd.DOption{}
	if dict != nil {
		eopts = append(eopts, zstd.WithEncoderDictRaw(0, dict))
		dopts = append(dopts, zstd.WithDecoderDictRaw(0, dict))
	}

	enc, err := zstd.NewWriter(nil, eopts...)
	if err != nil {
		return nil, fmt.Errorf("compress: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, dopts...)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("compress: new decoder: %w", err)
	}

	return &Codec{encoder: enc, decoder: dec, dict: dict}, nil
}

// NewDecodeOnlyCodec builds a Codec with no encoder, for read-only
// cache handles. Compress on the result always returns an error.
func NewDecodeOnlyCodec(dict []byte) (*Codec, error) {
	dopts := []zstd.DOption{}
	if dict != nil {
		dopts = append(dopts, zstd.WithDecoderDictRaw(0, dict))
	}
	dec, err := zstd.NewReader(nil, dopts...)
	if err != nil {
		return nil, fmt.Errorf("compress: new decoder: %w", err)
	}
	return &Codec{decoder: dec, dict: dict}, nil
}

// Dict returns the dictionary bytes this codec was built with, or nil
// if none was configured.
func (c *Codec) Dict() []byte {
	return c.dict
}

// Writable reports whether Compress can be called on this codec.
func (c *Codec) Writable() bool {
	return c.encoder != nil
}

// Compress zstd-compresses data. Returns an error if the codec was
// built read-only.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	if c.encoder == nil {
		return nil, fmt.Errorf("compress: misuse: Compress called on a read-only codec")
	}
	timer := metrics.NewTimer()
	out := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	timer.ObserveDuration(metrics.CompressDuration)
	if len(out) > 0 {
		metrics.CompressionRatio.Observe(float64(len(data)) / float64(len(out)))
	}
	return out, nil
}

// Decompress reverses Compress. The dictionary, if any, must match
// the one used at compress time or the result is corrupt.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	timer := metrics.NewTimer()
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: decode: %w", err)
	}
	timer.ObserveDuration(metrics.DecompressDuration)
	return out, nil
}

// Close releases the encoder and decoder's background resources. Safe
// to call on a read-only codec.
func (c *Codec) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= 1:
		return zstd.SpeedFastest
	case l <= 6:
		return zstd.SpeedDefault
	case l <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
