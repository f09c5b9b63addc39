// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunker splits byte streams into content-defined chunks.
//
// Boundaries come from a 48-byte buzhash rolling window: a boundary
// is declared when the hash modulo a discriminator derived from the
// average chunk size equals discriminator-1. Because the decision
// depends only on the bytes inside the window, an insertion early in
// a file moves only the boundaries near the insertion and the rest of
// the chunks (and therefore their hashes) are unchanged. This is what
// lets consecutive versions of a file share most of their blocks.
//
// The boundary rule, window size and hash table are protocol
// constants. Changing any of them invalidates every stored version
// index.
package chunker

import (
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// WindowSize is the number of bytes covered by the rolling hash.
const WindowSize = 48

// Params bounds the chunks a Chunker produces. Every chunk except
// the last one of a stream is at least Min and at most Max bytes
// long; Avg steers the expected length.
type Params struct {
	Min uint32
	Avg uint32
	Max uint32
}

// ParamsForTarget derives the conventional parameters for a target
// chunk size: min is an eighth of it, max twice it.
func ParamsForTarget(target uint32) Params {
	return Params{
		Min: target / 8,
		Avg: target,
		Max: target * 2,
	}
}

// Validate reports EINVAL when the parameters cannot drive the
// rolling hash: the minimum must cover a full window, and the
// sizes must be ordered.
func (p Params) Validate() error {
	if p.Min < WindowSize {
		return errno.Wrap(errno.EINVAL, "chunker min size %d is smaller than the %d byte window", p.Min, WindowSize)
	}
	if p.Avg < p.Min || p.Max < p.Avg {
		return errno.Wrap(errno.EINVAL, "chunker sizes must satisfy min <= avg <= max (got %d/%d/%d)", p.Min, p.Avg, p.Max)
	}
	return nil
}

// Discriminator returns the modulus for the boundary test. The
// correction term compensates for the min/max clamping so that the
// observed average lands near avg.
func Discriminator(avg uint32) uint32 {
	average := float64(avg)
	return uint32(average / (-1.42888852e-7*average + 1.33237515))
}

// bufferSize is the streaming buffer capacity for params: four
// maximum chunks, clamped to what a uint32 can address.
func bufferSize(params Params) int {
	size := uint64(params.Max) * 4
	if size > math.MaxUint32 {
		size = math.MaxUint32
	}
	return int(size)
}

// Feeder fills buffer with the next bytes of the input and returns
// the number written. Returning zero signals the end of the input.
// A feeder may return fewer bytes than requested without meaning
// end-of-input; the chunker keeps calling until the buffer is full
// or zero comes back.
type Feeder func(buffer []byte) (int, error)

// ReaderFeeder adapts an io.Reader to a Feeder.
func ReaderFeeder(reader io.Reader) Feeder {
	return func(buffer []byte) (int, error) {
		count, err := io.ReadFull(reader, buffer)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return count, nil
		}
		return count, err
	}
}

// Range is one chunk produced by [Chunker.Next].
type Range struct {
	// Offset is the position of the chunk's first byte within the
	// whole input stream.
	Offset uint64

	// Data aliases the chunker's internal buffer. It is only valid
	// until the next call to Next or Reset.
	Data []byte
}

// Chunker is the streaming state for one input. It is not safe for
// concurrent use; use a [Pool] to share chunkers between goroutines.
type Chunker struct {
	params        Params
	discriminator uint32

	buffer []byte
	// size is the number of valid bytes in buffer, offset the number
	// already returned as chunks.
	size   int
	offset int

	// processed is the stream position of buffer[0]. It only grows.
	processed uint64
	endOfData bool
}

// New returns a chunker for params.
func New(params Params) (*Chunker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		params:        params,
		discriminator: Discriminator(params.Avg),
		buffer:        make([]byte, bufferSize(params)),
	}, nil
}

// Params returns the parameters the chunker was configured with.
func (c *Chunker) Params() Params {
	return c.params
}

// Reset prepares the chunker for a new input stream, reusing the
// existing buffer when it is large enough for params.
func (c *Chunker) Reset(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	needed := bufferSize(params)
	if cap(c.buffer) < needed {
		c.buffer = make([]byte, needed)
	}
	c.buffer = c.buffer[:needed]
	c.params = params
	c.discriminator = Discriminator(params.Avg)
	c.size = 0
	c.offset = 0
	c.processed = 0
	c.endOfData = false
	return nil
}

// Next returns the next chunk of the stream supplied by feed. After
// the last chunk it returns io.EOF with an empty Range positioned at
// the end of the stream. An empty stream yields io.EOF immediately.
func (c *Chunker) Next(feed Feeder) (Range, error) {
	if err := c.fill(feed); err != nil {
		return Range{}, err
	}

	remaining := c.buffer[c.offset:c.size]
	position := c.processed + uint64(c.offset)
	if len(remaining) == 0 {
		return Range{Offset: position}, io.EOF
	}

	length := findBoundary(c.params, c.discriminator, remaining)
	c.offset += length
	return Range{Offset: position, Data: remaining[:length:length]}, nil
}

// fill guarantees that at least Max unconsumed bytes are buffered
// unless the feeder has reported end of input. With Max bytes
// available, no boundary decision can depend on bytes not yet read,
// so boundaries are independent of how the feeder slices the input.
func (c *Chunker) fill(feed Feeder) error {
	if c.endOfData || c.size-c.offset >= int(c.params.Max) {
		return nil
	}

	if c.offset > 0 {
		copy(c.buffer, c.buffer[c.offset:c.size])
		c.size -= c.offset
		c.processed += uint64(c.offset)
		c.offset = 0
	}

	for c.size < len(c.buffer) {
		count, err := feed(c.buffer[c.size:])
		if err != nil {
			return fmt.Errorf("feeding chunker at offset %d: %w", c.processed+uint64(c.size), err)
		}
		if count < 0 || count > len(c.buffer)-c.size {
			return errno.Wrap(errno.EINVAL, "feeder returned %d bytes for a %d byte buffer", count, len(c.buffer)-c.size)
		}
		if count == 0 {
			c.endOfData = true
			break
		}
		c.size += count
	}
	return nil
}

// NextChunkFromBuffer returns the length of the first chunk of data,
// treating data as the complete remaining input. It keeps no state
// and is the same boundary rule [Chunker.Next] applies.
func NextChunkFromBuffer(params Params, data []byte) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	return findBoundary(params, Discriminator(params.Avg), data), nil
}

func findBoundary(params Params, discriminator uint32, data []byte) int {
	length := len(data)
	minimum := int(params.Min)
	if length <= minimum {
		return length
	}

	var hash uint32
	for i, value := range data[minimum-WindowSize : minimum] {
		hash ^= bits.RotateLeft32(hashTable[value], WindowSize-i-1)
	}

	end := int(params.Max)
	if length < end {
		end = length
	}
	for i := minimum; i < end; i++ {
		if hash%discriminator == discriminator-1 {
			return i
		}
		out := data[i-WindowSize]
		in := data[i]
		hash = bits.RotateLeft32(hash, 1) ^ bits.RotateLeft32(hashTable[out], WindowSize) ^ hashTable[in]
	}
	return end
}
