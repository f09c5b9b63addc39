// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"sort"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// StoreIndex lists the blocks a store holds and the chunks inside
// each, as flat parallel arrays. Block i owns
// ChunkHashes[BlockChunksOffsets[i] : BlockChunksOffsets[i]+BlockChunkCounts[i]].
//
// A StoreIndex is immutable once built: merge, prune and subset
// operations return new instances and the accessors below hand out
// slices aliasing the arrays.
type StoreIndex struct {
	// HashIdentifier is zero only for an index with no blocks.
	HashIdentifier     uint32
	BlockHashes        []uint64
	BlockTags          []uint32
	BlockChunksOffsets []uint32
	BlockChunkCounts   []uint32
	ChunkHashes        []uint64
	ChunkSizes         []uint32
}

// ChunkLocation places a chunk inside a store.
type ChunkLocation struct {
	Block  int
	Offset uint64
	Size   uint32
}

// NewStoreIndex builds an index over blocks. Blocks repeating an
// earlier block hash are dropped. Mixing hash identifiers is EINVAL.
func NewStoreIndex(blocks []BlockIndex) (*StoreIndex, error) {
	store := &StoreIndex{}
	if len(blocks) == 0 {
		return store, nil
	}
	store.HashIdentifier = blocks[0].HashIdentifier

	seen := make(map[uint64]struct{}, len(blocks))
	chunkTotal := 0
	for _, block := range blocks {
		chunkTotal += block.ChunkCount()
	}
	if err := checkCount("chunk", chunkTotal); err != nil {
		return nil, err
	}
	store.BlockHashes = make([]uint64, 0, len(blocks))
	store.BlockTags = make([]uint32, 0, len(blocks))
	store.BlockChunksOffsets = make([]uint32, 0, len(blocks))
	store.BlockChunkCounts = make([]uint32, 0, len(blocks))
	store.ChunkHashes = make([]uint64, 0, chunkTotal)
	store.ChunkSizes = make([]uint32, 0, chunkTotal)

	for _, block := range blocks {
		if block.HashIdentifier != store.HashIdentifier {
			return nil, errno.Wrap(errno.EINVAL, "block 0x%016x uses hash 0x%08x, index uses 0x%08x",
				block.BlockHash, block.HashIdentifier, store.HashIdentifier)
		}
		if len(block.ChunkHashes) != len(block.ChunkSizes) {
			return nil, errno.Wrap(errno.EINVAL, "block 0x%016x has %d chunk hashes but %d sizes",
				block.BlockHash, len(block.ChunkHashes), len(block.ChunkSizes))
		}
		if _, duplicate := seen[block.BlockHash]; duplicate {
			continue
		}
		seen[block.BlockHash] = struct{}{}
		store.BlockHashes = append(store.BlockHashes, block.BlockHash)
		store.BlockTags = append(store.BlockTags, block.Tag)
		store.BlockChunksOffsets = append(store.BlockChunksOffsets, uint32(len(store.ChunkHashes)))
		store.BlockChunkCounts = append(store.BlockChunkCounts, uint32(block.ChunkCount()))
		store.ChunkHashes = append(store.ChunkHashes, block.ChunkHashes...)
		store.ChunkSizes = append(store.ChunkSizes, block.ChunkSizes...)
	}
	return store, nil
}

// BlockCount returns the number of blocks.
func (s *StoreIndex) BlockCount() int { return len(s.BlockHashes) }

// ChunkCount returns the number of chunk entries across all blocks.
func (s *StoreIndex) ChunkCount() int { return len(s.ChunkHashes) }

// Block returns the manifest of block i. Its slices alias the index.
func (s *StoreIndex) Block(i int) BlockIndex {
	start := s.BlockChunksOffsets[i]
	end := start + s.BlockChunkCounts[i]
	return BlockIndex{
		BlockHash:      s.BlockHashes[i],
		HashIdentifier: s.HashIdentifier,
		Tag:            s.BlockTags[i],
		ChunkHashes:    s.ChunkHashes[start:end:end],
		ChunkSizes:     s.ChunkSizes[start:end:end],
	}
}

// Blocks returns every manifest in index order.
func (s *StoreIndex) Blocks() []BlockIndex {
	blocks := make([]BlockIndex, s.BlockCount())
	for i := range blocks {
		blocks[i] = s.Block(i)
	}
	return blocks
}

// BlockLookup maps block hash to block position.
func (s *StoreIndex) BlockLookup() map[uint64]int {
	lookup := make(map[uint64]int, len(s.BlockHashes))
	for i, hash := range s.BlockHashes {
		lookup[hash] = i
	}
	return lookup
}

// ChunkLocations maps each chunk hash to the first block holding it.
func (s *StoreIndex) ChunkLocations() map[uint64]ChunkLocation {
	locations := make(map[uint64]ChunkLocation, len(s.ChunkHashes))
	for block := range s.BlockHashes {
		start := s.BlockChunksOffsets[block]
		var offset uint64
		for i := start; i < start+s.BlockChunkCounts[block]; i++ {
			hash := s.ChunkHashes[i]
			if _, exists := locations[hash]; !exists {
				locations[hash] = ChunkLocation{Block: block, Offset: offset, Size: s.ChunkSizes[i]}
			}
			offset += uint64(s.ChunkSizes[i])
		}
	}
	return locations
}

// Check verifies the structural invariants of the flat arrays.
func (s *StoreIndex) Check() error {
	blockCount := len(s.BlockHashes)
	if len(s.BlockTags) != blockCount || len(s.BlockChunksOffsets) != blockCount || len(s.BlockChunkCounts) != blockCount {
		return errno.Wrap(errno.EBADF, "store index block arrays disagree on length")
	}
	if len(s.ChunkHashes) != len(s.ChunkSizes) {
		return errno.Wrap(errno.EBADF, "store index has %d chunk hashes but %d sizes", len(s.ChunkHashes), len(s.ChunkSizes))
	}
	for i := range s.BlockHashes {
		end := uint64(s.BlockChunksOffsets[i]) + uint64(s.BlockChunkCounts[i])
		if end > uint64(len(s.ChunkHashes)) {
			return errno.Wrap(errno.EBADF, "store index block %d chunk range ends at %d past %d chunks", i, end, len(s.ChunkHashes))
		}
	}
	if blockCount > 0 && s.HashIdentifier == 0 {
		return errno.Wrap(errno.EBADF, "store index has blocks but no hash identifier")
	}
	return nil
}

func compatibleHash(a, b *StoreIndex) (uint32, error) {
	switch {
	case a.BlockCount() == 0 && b.BlockCount() == 0:
		if a.HashIdentifier != 0 {
			return a.HashIdentifier, nil
		}
		return b.HashIdentifier, nil
	case a.BlockCount() == 0:
		return b.HashIdentifier, nil
	case b.BlockCount() == 0:
		return a.HashIdentifier, nil
	case a.HashIdentifier != b.HashIdentifier:
		return 0, errno.Wrap(errno.EINVAL, "cannot combine indexes hashed with 0x%08x and 0x%08x", a.HashIdentifier, b.HashIdentifier)
	}
	return a.HashIdentifier, nil
}

// MergeStoreIndex returns the union of a and b by block hash. When
// both hold the same block hash, a's manifest is kept.
func MergeStoreIndex(a, b *StoreIndex) (*StoreIndex, error) {
	hashIdentifier, err := compatibleHash(a, b)
	if err != nil {
		return nil, err
	}
	blocks := make([]BlockIndex, 0, a.BlockCount()+b.BlockCount())
	blocks = append(blocks, a.Blocks()...)
	blocks = append(blocks, b.Blocks()...)
	merged, err := NewStoreIndex(blocks)
	if err != nil {
		return nil, err
	}
	if merged.BlockCount() == 0 {
		merged.HashIdentifier = hashIdentifier
	}
	return merged, nil
}

// PruneStoreIndex keeps only the blocks whose hash is in keep.
func PruneStoreIndex(store *StoreIndex, keep []uint64) (*StoreIndex, error) {
	wanted := make(map[uint64]struct{}, len(keep))
	for _, hash := range keep {
		wanted[hash] = struct{}{}
	}
	var blocks []BlockIndex
	for i, hash := range store.BlockHashes {
		if _, ok := wanted[hash]; ok {
			blocks = append(blocks, store.Block(i))
		}
	}
	pruned, err := NewStoreIndex(blocks)
	if err != nil {
		return nil, err
	}
	if pruned.BlockCount() == 0 {
		pruned.HashIdentifier = store.HashIdentifier
	}
	return pruned, nil
}

// SubsetByBlocks returns the blocks of store whose hash is listed,
// in the listed order. Unknown hashes report ENOENT.
func SubsetByBlocks(store *StoreIndex, blockHashes []uint64) (*StoreIndex, error) {
	lookup := store.BlockLookup()
	blocks := make([]BlockIndex, 0, len(blockHashes))
	for _, hash := range blockHashes {
		position, ok := lookup[hash]
		if !ok {
			return nil, errno.Wrap(errno.ENOENT, "block 0x%016x", hash)
		}
		blocks = append(blocks, store.Block(position))
	}
	return NewStoreIndex(blocks)
}

// GetExistingStoreIndex selects the blocks of store worth fetching
// for chunkHashes. A block qualifies when the requested chunks make
// up at least minBlockUsagePercent of its bytes. Qualifying blocks
// are taken in order of decreasing usage, skipping any that would
// contribute no chunk not already covered.
func GetExistingStoreIndex(store *StoreIndex, chunkHashes []uint64, minBlockUsagePercent uint32) (*StoreIndex, error) {
	requested := make(map[uint64]struct{}, len(chunkHashes))
	for _, hash := range chunkHashes {
		requested[hash] = struct{}{}
	}

	type candidate struct {
		block int
		usage uint64
	}
	var candidates []candidate
	for block := range store.BlockHashes {
		start := store.BlockChunksOffsets[block]
		var used, total uint64
		for i := start; i < start+store.BlockChunkCounts[block]; i++ {
			total += uint64(store.ChunkSizes[i])
			if _, ok := requested[store.ChunkHashes[i]]; ok {
				used += uint64(store.ChunkSizes[i])
			}
		}
		if used == 0 && total > 0 {
			continue
		}
		usage := uint64(100)
		if total > 0 {
			usage = used * 100 / total
		}
		if usage >= uint64(minBlockUsagePercent) {
			candidates = append(candidates, candidate{block: block, usage: usage})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].usage > candidates[j].usage })

	covered := make(map[uint64]struct{}, len(requested))
	var blocks []BlockIndex
	for _, candidate := range candidates {
		block := store.Block(candidate.block)
		contributes := false
		for _, hash := range block.ChunkHashes {
			if _, ok := requested[hash]; !ok {
				continue
			}
			if _, ok := covered[hash]; !ok {
				covered[hash] = struct{}{}
				contributes = true
			}
		}
		if contributes {
			blocks = append(blocks, block)
		}
	}
	existing, err := NewStoreIndex(blocks)
	if err != nil {
		return nil, err
	}
	if existing.BlockCount() == 0 {
		existing.HashIdentifier = store.HashIdentifier
	}
	return existing, nil
}

// RetargetContent answers which blocks of remote hold the chunks of
// local: every remote block holding at least one of local's chunks,
// in remote order. Chunks remote lacks are simply absent from the
// result.
func RetargetContent(remote, local *StoreIndex) (*StoreIndex, error) {
	if _, err := compatibleHash(remote, local); err != nil {
		return nil, err
	}
	wanted := make(map[uint64]struct{}, len(local.ChunkHashes))
	for _, hash := range local.ChunkHashes {
		wanted[hash] = struct{}{}
	}
	var blocks []BlockIndex
	for i := range remote.BlockHashes {
		block := remote.Block(i)
		for _, hash := range block.ChunkHashes {
			if _, ok := wanted[hash]; ok {
				blocks = append(blocks, block)
				break
			}
		}
	}
	retargeted, err := NewStoreIndex(blocks)
	if err != nil {
		return nil, err
	}
	if retargeted.BlockCount() == 0 {
		retargeted.HashIdentifier = remote.HashIdentifier
	}
	return retargeted, nil
}

// MarshalBinary encodes the index as a .lsi file.
func (s *StoreIndex) MarshalBinary() ([]byte, error) {
	var encode encoder
	encode.magic(storeIndexMagic)
	s.encodeBody(&encode)
	return encode.buffer, nil
}

func (s *StoreIndex) encodeBody(encode *encoder) {
	encode.u32(s.HashIdentifier)
	encode.u32(uint32(len(s.BlockHashes)))
	encode.u32(uint32(len(s.ChunkHashes)))
	encode.u64s(s.BlockHashes)
	encode.u32s(s.BlockTags)
	encode.u32s(s.BlockChunksOffsets)
	encode.u32s(s.BlockChunkCounts)
	encode.u64s(s.ChunkHashes)
	encode.u32s(s.ChunkSizes)
}

// UnmarshalBinary decodes a .lsi file.
func (s *StoreIndex) UnmarshalBinary(data []byte) error {
	decode := decoder{data: data, what: "store index"}
	decode.magic(storeIndexMagic)
	s.decodeBody(&decode)
	if err := decode.finish(); err != nil {
		return err
	}
	return s.Check()
}

func (s *StoreIndex) decodeBody(decode *decoder) {
	s.HashIdentifier = decode.u32()
	blockCount := decode.count(8 + 4 + 4 + 4)
	chunkCount := decode.count(0)
	s.BlockHashes = decode.u64s(blockCount)
	s.BlockTags = decode.u32s(blockCount)
	s.BlockChunksOffsets = decode.u32s(blockCount)
	s.BlockChunkCounts = decode.u32s(blockCount)
	if decode.err == nil && uint64(chunkCount)*12 > uint64(len(decode.data)) {
		decode.fail("chunk count %d exceeds remaining %d bytes", chunkCount, len(decode.data))
	}
	s.ChunkHashes = decode.u64s(chunkCount)
	s.ChunkSizes = decode.u32s(chunkCount)
}
