// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"encoding/binary"
	"sync"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
)

// BlockIndex is the manifest of one block: the ordered chunks it
// holds and the codec tag its payload is stored with.
type BlockIndex struct {
	BlockHash      uint64
	HashIdentifier uint32
	Tag            uint32
	ChunkHashes    []uint64
	ChunkSizes     []uint32
}

// BlockHash derives a block's identifier from its manifest. The tag
// participates so that the same chunks stored under two codecs are
// two different blocks.
func BlockHash(hasher hashing.Hasher, tag uint32, chunkHashes []uint64, chunkSizes []uint32) uint64 {
	stream := hasher.New()
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], tag)
	stream.Write(scratch[:4])
	for _, hash := range chunkHashes {
		binary.LittleEndian.PutUint64(scratch[:], hash)
		stream.Write(scratch[:])
	}
	for _, size := range chunkSizes {
		binary.LittleEndian.PutUint32(scratch[:4], size)
		stream.Write(scratch[:4])
	}
	return stream.Sum64()
}

// NewBlockIndex builds a manifest and computes its hash.
func NewBlockIndex(hasher hashing.Hasher, tag uint32, chunkHashes []uint64, chunkSizes []uint32) (BlockIndex, error) {
	if len(chunkHashes) == 0 {
		return BlockIndex{}, errno.Wrap(errno.EINVAL, "block must hold at least one chunk")
	}
	if len(chunkHashes) != len(chunkSizes) {
		return BlockIndex{}, errno.Wrap(errno.EINVAL, "block has %d chunk hashes but %d sizes", len(chunkHashes), len(chunkSizes))
	}
	return BlockIndex{
		BlockHash:      BlockHash(hasher, tag, chunkHashes, chunkSizes),
		HashIdentifier: hasher.Identifier(),
		Tag:            tag,
		ChunkHashes:    chunkHashes,
		ChunkSizes:     chunkSizes,
	}, nil
}

// ChunkCount returns the number of chunks in the block.
func (b BlockIndex) ChunkCount() int { return len(b.ChunkHashes) }

// DataSize returns the uncompressed payload size: the sum of the
// chunk sizes.
func (b BlockIndex) DataSize() uint64 {
	var total uint64
	for _, size := range b.ChunkSizes {
		total += uint64(size)
	}
	return total
}

// blockHeaderFixedSize covers BlockHash, HashIdentifier, ChunkCount
// and Tag.
const blockHeaderFixedSize = 8 + 4 + 4 + 4

// BlockHeaderSize returns the encoded manifest size for chunkCount
// chunks.
func BlockHeaderSize(chunkCount int) int {
	return blockHeaderFixedSize + chunkCount*(8+4)
}

// AppendBinary appends the encoded manifest to buffer.
func (b BlockIndex) AppendBinary(buffer []byte) []byte {
	buffer = binary.LittleEndian.AppendUint64(buffer, b.BlockHash)
	buffer = binary.LittleEndian.AppendUint32(buffer, b.HashIdentifier)
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(len(b.ChunkHashes)))
	buffer = binary.LittleEndian.AppendUint32(buffer, b.Tag)
	for _, hash := range b.ChunkHashes {
		buffer = binary.LittleEndian.AppendUint64(buffer, hash)
	}
	for _, size := range b.ChunkSizes {
		buffer = binary.LittleEndian.AppendUint32(buffer, size)
	}
	return buffer
}

// ParseBlockIndex decodes a manifest from the front of data and
// returns it with the number of bytes consumed.
func ParseBlockIndex(data []byte) (BlockIndex, int, error) {
	if len(data) < blockHeaderFixedSize {
		return BlockIndex{}, 0, errno.Wrap(errno.EBADF, "block header truncated at %d bytes", len(data))
	}
	chunkCount := binary.LittleEndian.Uint32(data[12:16])
	if chunkCount == 0 {
		return BlockIndex{}, 0, errno.Wrap(errno.EBADF, "block header declares no chunks")
	}
	if uint64(chunkCount)*12 > uint64(len(data)-blockHeaderFixedSize) {
		return BlockIndex{}, 0, errno.Wrap(errno.EBADF, "block header declares %d chunks but only %d bytes follow", chunkCount, len(data)-blockHeaderFixedSize)
	}
	decode := decoder{data: data[blockHeaderFixedSize:], what: "block header"}
	block := BlockIndex{
		BlockHash:      binary.LittleEndian.Uint64(data[0:8]),
		HashIdentifier: binary.LittleEndian.Uint32(data[8:12]),
		Tag:            binary.LittleEndian.Uint32(data[16:20]),
		ChunkHashes:    decode.u64s(int(chunkCount)),
		ChunkSizes:     decode.u32s(int(chunkCount)),
	}
	if decode.err != nil {
		return BlockIndex{}, 0, decode.err
	}
	return block, BlockHeaderSize(int(chunkCount)), nil
}

// StoredBlock pairs a manifest with its payload. For Tag zero the
// payload is the concatenated chunk bytes; otherwise it is whatever
// the codec layer that owns the tag wrote.
//
// Whoever produced the block decides what Dispose releases: a heap
// buffer, a memory mapping, a reference count. Every consumer must
// call Dispose exactly once when done; extra calls are ignored.
type StoredBlock struct {
	Index BlockIndex
	Data  []byte

	dispose func()
	once    sync.Once
}

// NewStoredBlock wraps index and data. dispose may be nil when
// nothing needs releasing.
func NewStoredBlock(index BlockIndex, data []byte, dispose func()) *StoredBlock {
	return &StoredBlock{Index: index, Data: data, dispose: dispose}
}

// Dispose releases the block's resources.
func (b *StoredBlock) Dispose() {
	b.once.Do(func() {
		if b.dispose != nil {
			b.dispose()
		}
	})
}

// CheckData verifies that an uncompressed payload matches the
// manifest's chunk sizes.
func (b *StoredBlock) CheckData() error {
	if uint64(len(b.Data)) != b.Index.DataSize() {
		return errno.Wrap(errno.EBADF, "block 0x%016x carries %d bytes but its chunks sum to %d", b.Index.BlockHash, len(b.Data), b.Index.DataSize())
	}
	return nil
}

// Marshal encodes the block as stored on disk: manifest then
// payload.
func (b *StoredBlock) Marshal() []byte {
	buffer := make([]byte, 0, BlockHeaderSize(b.Index.ChunkCount())+len(b.Data))
	buffer = b.Index.AppendBinary(buffer)
	return append(buffer, b.Data...)
}

// ParseStoredBlock decodes an on-disk block. The returned block's
// Data aliases data.
func ParseStoredBlock(data []byte, dispose func()) (*StoredBlock, error) {
	blockIndex, headerSize, err := ParseBlockIndex(data)
	if err != nil {
		return nil, err
	}
	return NewStoredBlock(blockIndex, data[headerSize:], dispose), nil
}

// ChunkOffsets returns the byte offset of each chunk within the
// uncompressed payload.
func (b BlockIndex) ChunkOffsets() []uint64 {
	offsets := make([]uint64, len(b.ChunkSizes))
	var offset uint64
	for i, size := range b.ChunkSizes {
		offsets[i] = offset
		offset += uint64(size)
	}
	return offsets
}
