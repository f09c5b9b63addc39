// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
)

// ContentIndex is a store index together with the packing limits
// its blocks were built under. It describes content that is planned
// or uploaded for one or more versions.
type ContentIndex struct {
	StoreIndex
	MaxBlockSize      uint32
	MaxChunksPerBlock uint32
}

// packingLimits validates the block size constraints.
func packingLimits(maxBlockSize, maxChunksPerBlock uint32) error {
	if maxBlockSize == 0 {
		return errno.Wrap(errno.EINVAL, "max block size must be positive")
	}
	if maxChunksPerBlock == 0 {
		return errno.Wrap(errno.EINVAL, "max chunks per block must be positive")
	}
	return nil
}

// CreateContentIndex packs every chunk of version into blocks.
func CreateContentIndex(hasher hashing.Hasher, version *VersionIndex, maxBlockSize, maxChunksPerBlock uint32) (*ContentIndex, error) {
	return CreateContentIndexFromChunks(hasher, version.ChunkHashes, version.ChunkSizes, version.ChunkTags, maxBlockSize, maxChunksPerBlock)
}

// CreateMissingContent packs the chunks of version that existing
// does not already hold.
func CreateMissingContent(hasher hashing.Hasher, existing *StoreIndex, version *VersionIndex, maxBlockSize, maxChunksPerBlock uint32) (*ContentIndex, error) {
	if existing.BlockCount() > 0 && existing.HashIdentifier != version.HashIdentifier {
		return nil, errno.Wrap(errno.EINVAL, "store uses hash 0x%08x but version uses 0x%08x", existing.HashIdentifier, version.HashIdentifier)
	}
	present := existing.ChunkLocations()
	var hashes []uint64
	var sizes, tags []uint32
	for i, hash := range version.ChunkHashes {
		if _, ok := present[hash]; ok {
			continue
		}
		hashes = append(hashes, hash)
		sizes = append(sizes, version.ChunkSizes[i])
		tags = append(tags, version.ChunkTags[i])
	}
	return CreateContentIndexFromChunks(hasher, hashes, sizes, tags, maxBlockSize, maxChunksPerBlock)
}

// CreateContentIndexFromChunks packs chunks into blocks. Duplicate
// chunk hashes are packed once. Chunks with different tags never
// share a block; within a tag, chunks keep their input order and a
// new block starts when the next chunk would exceed either limit. A
// chunk larger than maxBlockSize gets a block of its own.
func CreateContentIndexFromChunks(hasher hashing.Hasher, chunkHashes []uint64, chunkSizes, chunkTags []uint32, maxBlockSize, maxChunksPerBlock uint32) (*ContentIndex, error) {
	if err := packingLimits(maxBlockSize, maxChunksPerBlock); err != nil {
		return nil, err
	}
	if len(chunkHashes) != len(chunkSizes) || len(chunkHashes) != len(chunkTags) {
		return nil, errno.Wrap(errno.EINVAL, "chunk arrays disagree on length (%d hashes, %d sizes, %d tags)",
			len(chunkHashes), len(chunkSizes), len(chunkTags))
	}

	// Group by tag, preserving first-seen order of tags and chunks.
	var tagOrder []uint32
	groups := map[uint32][]int{}
	seen := make(map[uint64]struct{}, len(chunkHashes))
	for i, hash := range chunkHashes {
		if _, duplicate := seen[hash]; duplicate {
			continue
		}
		seen[hash] = struct{}{}
		tag := chunkTags[i]
		if _, ok := groups[tag]; !ok {
			tagOrder = append(tagOrder, tag)
		}
		groups[tag] = append(groups[tag], i)
	}

	var blocks []BlockIndex
	for _, tag := range tagOrder {
		var hashes []uint64
		var sizes []uint32
		var blockSize uint64
		flush := func() error {
			if len(hashes) == 0 {
				return nil
			}
			block, err := NewBlockIndex(hasher, tag, hashes, sizes)
			if err != nil {
				return err
			}
			blocks = append(blocks, block)
			hashes, sizes, blockSize = nil, nil, 0
			return nil
		}
		for _, chunk := range groups[tag] {
			size := chunkSizes[chunk]
			if len(hashes) == int(maxChunksPerBlock) || (len(hashes) > 0 && blockSize+uint64(size) > uint64(maxBlockSize)) {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			hashes = append(hashes, chunkHashes[chunk])
			sizes = append(sizes, size)
			blockSize += uint64(size)
		}
		if err := flush(); err != nil {
			return nil, err
		}
	}

	store, err := NewStoreIndex(blocks)
	if err != nil {
		return nil, err
	}
	if store.BlockCount() == 0 {
		store.HashIdentifier = hasher.Identifier()
	}
	return &ContentIndex{
		StoreIndex:        *store,
		MaxBlockSize:      maxBlockSize,
		MaxChunksPerBlock: maxChunksPerBlock,
	}, nil
}

// MergeContentIndex returns the union of a and b by block hash,
// with a's manifests and packing limits taking precedence.
func MergeContentIndex(a, b *ContentIndex) (*ContentIndex, error) {
	merged, err := MergeStoreIndex(&a.StoreIndex, &b.StoreIndex)
	if err != nil {
		return nil, err
	}
	return &ContentIndex{
		StoreIndex:        *merged,
		MaxBlockSize:      a.MaxBlockSize,
		MaxChunksPerBlock: a.MaxChunksPerBlock,
	}, nil
}

// MarshalBinary encodes the index as a .lci file.
func (c *ContentIndex) MarshalBinary() ([]byte, error) {
	var encode encoder
	encode.magic(contentIndexMagic)
	encode.u32(c.MaxBlockSize)
	encode.u32(c.MaxChunksPerBlock)
	c.StoreIndex.encodeBody(&encode)
	return encode.buffer, nil
}

// UnmarshalBinary decodes a .lci file.
func (c *ContentIndex) UnmarshalBinary(data []byte) error {
	decode := decoder{data: data, what: "content index"}
	decode.magic(contentIndexMagic)
	c.MaxBlockSize = decode.u32()
	c.MaxChunksPerBlock = decode.u32()
	c.StoreIndex.decodeBody(&decode)
	if err := decode.finish(); err != nil {
		return err
	}
	return c.StoreIndex.Check()
}
