// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import "github.com/bureau-foundation/longtail/lib/errno"

// ArchiveIndex describes a single-file archive: the version it
// restores, the blocks it holds, and where each block's bytes sit in
// the file. BlockOffsets[i] and BlockSizes[i] locate Store block i.
type ArchiveIndex struct {
	Store        StoreIndex
	Version      VersionIndex
	BlockOffsets []uint64
	BlockSizes   []uint32
}

// Check verifies that the location arrays match the store.
func (a *ArchiveIndex) Check() error {
	if len(a.BlockOffsets) != a.Store.BlockCount() || len(a.BlockSizes) != a.Store.BlockCount() {
		return errno.Wrap(errno.EBADF, "archive index locates %d blocks but lists %d", len(a.BlockOffsets), a.Store.BlockCount())
	}
	if err := a.Store.Check(); err != nil {
		return err
	}
	return a.Version.Check()
}

// MarshalBinary encodes the index as a .la header.
func (a *ArchiveIndex) MarshalBinary() ([]byte, error) {
	var encode encoder
	encode.magic(archiveIndexMagic)
	a.Store.encodeBody(&encode)
	a.Version.encodeBody(&encode)
	encode.u64s(a.BlockOffsets)
	encode.u32s(a.BlockSizes)
	return encode.buffer, nil
}

// UnmarshalBinary decodes a .la header.
func (a *ArchiveIndex) UnmarshalBinary(data []byte) error {
	decode := decoder{data: data, what: "archive index"}
	decode.magic(archiveIndexMagic)
	a.Store.decodeBody(&decode)
	a.Version.decodeBody(&decode)
	blockCount := len(a.Store.BlockHashes)
	a.BlockOffsets = decode.u64s(blockCount)
	a.BlockSizes = decode.u32s(blockCount)
	if err := decode.finish(); err != nil {
		return err
	}
	return a.Check()
}
