// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func init() {
	register(LZ4, lz4Codec{})

	register(ZstdMin, &zstdCodec{level: zstd.SpeedFastest})
	register(ZstdDefault, &zstdCodec{level: zstd.SpeedDefault})
	register(ZstdMax, &zstdCodec{level: zstd.SpeedBestCompression})

	register(BrotliMin, brotliCodec{quality: brotli.BestSpeed, window: 22})
	register(BrotliDefault, brotliCodec{quality: brotli.DefaultCompression, window: 22})
	register(BrotliMax, brotliCodec{quality: brotli.BestCompression, window: 24})
	register(BrotliTextMin, brotliCodec{quality: brotli.BestSpeed, window: 18})
	register(BrotliTextDefault, brotliCodec{quality: brotli.DefaultCompression, window: 18})
	register(BrotliTextMax, brotliCodec{quality: brotli.BestCompression, window: 20})
}

// lz4Codec is block-mode LZ4.
type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for input it cannot shrink.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

func (lz4Codec) Decompress(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdCodec builds its encoder on first use. zstd.Encoder and
// zstd.Decoder are safe for concurrent EncodeAll/DecodeAll calls.
type zstdCodec struct {
	level zstd.EncoderLevel

	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	err     error
}

func (c *zstdCodec) init() error {
	c.once.Do(func() {
		c.encoder, c.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
		if c.err != nil {
			c.err = fmt.Errorf("creating zstd encoder: %w", c.err)
			return
		}
		c.decoder, c.err = zstd.NewReader(nil)
		if c.err != nil {
			c.err = fmt.Errorf("creating zstd decoder: %w", c.err)
		}
	})
	return c.err
}

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	compressed := c.encoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, ErrIncompressible
	}
	return compressed, nil
}

func (c *zstdCodec) Decompress(compressed []byte, uncompressedSize int) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	result, err := c.decoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// brotliCodec streams through the brotli writer. The text variants
// use a smaller window, which suits the short repetitive spans of
// source and markup.
type brotliCodec struct {
	quality int
	window  int
}

func (c brotliCodec) Compress(data []byte) ([]byte, error) {
	var output bytes.Buffer
	writer := brotli.NewWriterOptions(&output, brotli.WriterOptions{Quality: c.quality, LGWin: c.window})
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if output.Len() >= len(data) {
		return nil, ErrIncompressible
	}
	return output.Bytes(), nil
}

func (c brotliCodec) Decompress(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	reader := brotli.NewReader(bytes.NewReader(compressed))
	if _, err := io.ReadFull(reader, destination); err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}
	var extra [1]byte
	if count, _ := reader.Read(extra[:]); count != 0 {
		return nil, fmt.Errorf("brotli decompress: more than %d bytes", uncompressedSize)
	}
	return destination, nil
}
