// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashing

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

type blake2Hasher struct{}

func init() { register(blake2Hasher{}) }

func (blake2Hasher) Identifier() uint32 { return BLAKE2 }

func (blake2Hasher) New() Stream {
	// New256 only fails for keys longer than 64 bytes.
	digest, _ := blake2b.New256(nil)
	return digestStream{digest: digest}
}

func (blake2Hasher) Sum64(data []byte) uint64 {
	sum := blake2b.Sum256(data)
	return binary.LittleEndian.Uint64(sum[:8])
}
