// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// FrameHeaderSize is the length of the size prefix on a framed
// payload: uncompressed size then stored size, both u32
// little-endian.
const FrameHeaderSize = 8

// Encode compresses data with the codec for tag and frames it. When
// the codec cannot shrink data, the frame stores it verbatim with
// equal sizes, which Decode recognizes.
func Encode(tag Tag, data []byte) ([]byte, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, errno.Wrap(errno.EINVAL, "payload of %d bytes exceeds the frame limit", len(data))
	}
	codec, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	stored, err := codec.Compress(data)
	if errors.Is(err, ErrIncompressible) {
		stored = data
	} else if err != nil {
		return nil, fmt.Errorf("compressing with %s: %w", tag, err)
	}

	frame := make([]byte, FrameHeaderSize+len(stored))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(stored)))
	copy(frame[FrameHeaderSize:], stored)
	return frame, nil
}

// Decode reverses Encode. Truncated or inconsistent frames report
// EBADF.
func Decode(tag Tag, frame []byte) ([]byte, error) {
	if len(frame) < FrameHeaderSize {
		return nil, errno.Wrap(errno.EBADF, "compressed frame of %d bytes is shorter than its header", len(frame))
	}
	uncompressedSize := int(binary.LittleEndian.Uint32(frame[0:4]))
	storedSize := int(binary.LittleEndian.Uint32(frame[4:8]))
	if storedSize != len(frame)-FrameHeaderSize {
		return nil, errno.Wrap(errno.EBADF, "compressed frame declares %d bytes but carries %d", storedSize, len(frame)-FrameHeaderSize)
	}
	stored := frame[FrameHeaderSize:]
	if storedSize == uncompressedSize {
		return stored, nil
	}

	codec, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	data, err := codec.Decompress(stored, uncompressedSize)
	if err != nil {
		return nil, errno.Wrap(errno.EBADF, "decompressing %s frame: %v", tag, err)
	}
	return data, nil
}
