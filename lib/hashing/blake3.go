// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashing

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// blake3Hasher is the default content-addressing hash.
type blake3Hasher struct{}

func init() { register(blake3Hasher{}) }

func (blake3Hasher) Identifier() uint32 { return BLAKE3 }

func (blake3Hasher) New() Stream { return digestStream{digest: blake3.New()} }

func (blake3Hasher) Sum64(data []byte) uint64 {
	sum := blake3.Sum256(data)
	return binary.LittleEndian.Uint64(sum[:8])
}
