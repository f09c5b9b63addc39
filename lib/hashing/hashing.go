// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hashing is the pluggable hash API behind every chunk, block
// and asset identifier. Each algorithm is selected at runtime by a
// 32-bit tag that is recorded in every index and block header, so a
// store written with one algorithm is never read with another.
//
// All variants produce 64-bit values: the first eight bytes of the
// algorithm's digest, read little-endian.
package hashing

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// FourCC packs four ASCII bytes into a tag, most significant first.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// Algorithm tags.
var (
	BLAKE3 = FourCC('b', 'l', 'k', '3')
	BLAKE2 = FourCC('b', 'l', 'k', '2')
	Meow   = FourCC('m', 'i', 'a', 'w')
)

// Stream accumulates bytes for one hash computation.
type Stream interface {
	io.Writer
	Sum64() uint64
}

// Hasher is one hash algorithm.
type Hasher interface {
	// Identifier returns the algorithm's tag.
	Identifier() uint32

	// New starts a streaming computation.
	New() Stream

	// Sum64 hashes data in one shot. It equals writing data to a
	// fresh Stream and calling Sum64.
	Sum64(data []byte) uint64
}

// digestStream adapts a hash.Hash to Stream.
type digestStream struct {
	digest hash.Hash
}

func (s digestStream) Write(data []byte) (int, error) {
	return s.digest.Write(data)
}

func (s digestStream) Sum64() uint64 {
	var scratch [64]byte
	return binary.LittleEndian.Uint64(s.digest.Sum(scratch[:0]))
}

var registry = map[uint32]Hasher{}

// known lists every tag the binary formats define, registered or not.
var known = map[uint32]string{
	BLAKE3: "blake3",
	BLAKE2: "blake2",
	Meow:   "meow",
}

func register(hasher Hasher) {
	registry[hasher.Identifier()] = hasher
}

// Lookup returns the hasher for tag. A tag the formats define but
// this build does not provide reports ENOTSUP; any other tag reports
// ENOENT.
func Lookup(tag uint32) (Hasher, error) {
	if hasher, ok := registry[tag]; ok {
		return hasher, nil
	}
	if name, ok := known[tag]; ok {
		return nil, errno.Wrap(errno.ENOTSUP, "hash algorithm %s", name)
	}
	return nil, errno.Wrap(errno.ENOENT, "hash algorithm tag 0x%08x", tag)
}

// ByName resolves a command-line algorithm name.
func ByName(name string) (Hasher, error) {
	for tag, candidate := range known {
		if strings.EqualFold(candidate, name) {
			return Lookup(tag)
		}
	}
	return nil, errno.Wrap(errno.EINVAL, "unknown hash algorithm %q (want blake3, blake2 or meow)", name)
}

// Name returns the command-line name of tag, or its hex form.
func Name(tag uint32) string {
	if name, ok := known[tag]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", tag)
}

// SumUint64s hashes the little-endian encoding of values. Block and
// asset identifiers are built this way from chunk hash lists.
func SumUint64s(hasher Hasher, values ...uint64) uint64 {
	stream := hasher.New()
	var scratch [8]byte
	for _, value := range values {
		binary.LittleEndian.PutUint64(scratch[:], value)
		stream.Write(scratch[:])
	}
	return stream.Sum64()
}
