// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashing

import "github.com/cespare/xxhash/v2"

// meowHasher occupies the fast non-cryptographic slot. It is
// backed by XXH64, so stores written under this tag are only
// readable by builds that agree on that choice.
type meowHasher struct{}

func init() { register(meowHasher{}) }

func (meowHasher) Identifier() uint32 { return Meow }

func (meowHasher) New() Stream { return xxhash.New() }

func (meowHasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }
