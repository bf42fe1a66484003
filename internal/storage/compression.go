// internal/storage/compression.go
package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

// Codec compresses stored values. Values under MinSize are kept as they
// are; Decode tells the two apart by the zstd frame magic, so JSON written
// plain stays readable after compression is switched on.
type Codec struct {
	opts     CompressionOptions
	disabled bool

	encoders sync.Pool
	decoders sync.Pool
}

// PlainCodec stores values uncompressed but still decodes compressed ones.
func PlainCodec() *Codec {
	c, _ := NewCodec(DefaultCompressionOptions())
	c.disabled = true
	return c
}

func NewCodec(opts CompressionOptions) (*Codec, error) {
	level := zstd.EncoderLevelFromZstd(opts.Level)

	// Validate the options once so the pools never hand out nil.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	c := &Codec{opts: opts}
	c.encoders.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
		return enc
	}
	c.decoders.New = func() interface{} {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}
	c.encoders.Put(enc)
	c.decoders.Put(dec)
	return c, nil
}

func (c *Codec) shouldCompress(size int) bool {
	return !c.disabled && size >= c.opts.MinSize
}

func (c *Codec) Encode(data []byte) ([]byte, error) {
	if !c.shouldCompress(len(data)) {
		return data, nil
	}

	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)

	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *Codec) Decode(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing value: %w", err)
	}
	return out, nil
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return len(data) > len(zstdMagic) && bytes.Equal(data[:len(zstdMagic)], zstdMagic)
}
