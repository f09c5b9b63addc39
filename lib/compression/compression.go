// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression maps block tags to codecs. A tag names both the
// algorithm and its quality setting and is recorded in every block
// header, so the reader never has to guess how a block was written.
package compression

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// Tag identifies a codec and its quality. Tags are protocol
// constants: changing a value makes existing blocks unreadable.
type Tag uint32

// Quality selects the speed/ratio tradeoff within one codec.
type Quality uint8

const (
	QualityMin Quality = 1 + iota
	QualityDefault
	QualityMax
	// Brotli's text qualities tune the window for text-like input.
	QualityTextMin
	QualityTextDefault
	QualityTextMax
)

func makeTag(a, b, c byte, quality Quality) Tag {
	return Tag(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(quality))
}

// Codec returns the tag with its quality byte cleared, identifying
// the algorithm alone.
func (tag Tag) Codec() Tag { return tag &^ 0xff }

// Quality returns the quality byte of the tag.
func (tag Tag) Quality() Quality { return Quality(tag & 0xff) }

var (
	None Tag = 0

	LZ4 = makeTag('l', 'z', '4', QualityDefault)

	ZstdMin     = makeTag('z', 't', 'd', QualityMin)
	ZstdDefault = makeTag('z', 't', 'd', QualityDefault)
	ZstdMax     = makeTag('z', 't', 'd', QualityMax)

	BrotliMin         = makeTag('b', 'r', 't', QualityMin)
	BrotliDefault     = makeTag('b', 'r', 't', QualityDefault)
	BrotliMax         = makeTag('b', 'r', 't', QualityMax)
	BrotliTextMin     = makeTag('b', 'r', 't', QualityTextMin)
	BrotliTextDefault = makeTag('b', 'r', 't', QualityTextDefault)
	BrotliTextMax     = makeTag('b', 'r', 't', QualityTextMax)
)

var names = map[Tag]string{
	None:              "none",
	LZ4:               "lz4",
	ZstdMin:           "zstd_min",
	ZstdDefault:       "zstd",
	ZstdMax:           "zstd_max",
	BrotliMin:         "brotli_min",
	BrotliDefault:     "brotli",
	BrotliMax:         "brotli_max",
	BrotliTextMin:     "brotli_text_min",
	BrotliTextDefault: "brotli_text",
	BrotliTextMax:     "brotli_text_max",
}

// String returns the command-line name of the tag.
func (tag Tag) String() string {
	if name, ok := names[tag]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%08x)", uint32(tag))
}

// Parse resolves a command-line codec name.
func Parse(name string) (Tag, error) {
	for tag, candidate := range names {
		if candidate == name {
			return tag, nil
		}
	}
	return 0, errno.Wrap(errno.EINVAL, "unknown compression algorithm %q (want one of %s)", name, strings.Join(Names(), ", "))
}

// Names lists every codec name in sorted order.
func Names() []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Codec compresses and decompresses whole buffers.
type Codec interface {
	// Compress returns the compressed form of data, or
	// ErrIncompressible when the output would not be smaller.
	Compress(data []byte) ([]byte, error)

	// Decompress reverses Compress. The result must be exactly
	// uncompressedSize bytes long.
	Decompress(compressed []byte, uncompressedSize int) ([]byte, error)
}

// ErrIncompressible reports that compressing did not shrink the
// input. Framing stores such payloads verbatim.
var ErrIncompressible = errors.New("data is incompressible")

var codecs = map[Tag]Codec{}

func register(tag Tag, codec Codec) {
	codecs[tag] = codec
}

// Lookup returns the codec for tag. None has no codec and reports
// EINVAL; unknown tags report ENOENT.
func Lookup(tag Tag) (Codec, error) {
	if tag == None {
		return nil, errno.Wrap(errno.EINVAL, "compression tag none has no codec")
	}
	if codec, ok := codecs[tag]; ok {
		return codec, nil
	}
	return nil, errno.Wrap(errno.ENOENT, "compression tag %s", tag)
}

// storedExtensions are formats that are already compressed. Spending
// CPU on them rarely saves a byte.
var storedExtensions = map[string]bool{
	".7z": true, ".br": true, ".bz2": true, ".gz": true, ".jar": true,
	".jpeg": true, ".jpg": true, ".lz4": true, ".mp3": true, ".mp4": true,
	".ogg": true, ".png": true, ".webm": true, ".webp": true, ".xz": true,
	".zip": true, ".zst": true,
}

var textExtensions = map[string]bool{
	".c": true, ".cpp": true, ".css": true, ".csv": true, ".go": true,
	".h": true, ".html": true, ".ini": true, ".js": true, ".json": true,
	".md": true, ".txt": true, ".xml": true, ".yaml": true, ".yml": true,
}

// SelectForPath returns the tag to use for the asset at assetPath
// when fallback is the configured codec. Already-compressed formats
// are stored uncompressed; text-like assets switch a generic brotli
// quality to its text variant.
func SelectForPath(assetPath string, fallback Tag) Tag {
	extension := strings.ToLower(path.Ext(assetPath))
	if storedExtensions[extension] {
		return None
	}
	if textExtensions[extension] && fallback.Codec() == BrotliDefault.Codec() {
		switch fallback {
		case BrotliMin:
			return BrotliTextMin
		case BrotliDefault:
			return BrotliTextDefault
		case BrotliMax:
			return BrotliTextMax
		}
	}
	return fallback
}
