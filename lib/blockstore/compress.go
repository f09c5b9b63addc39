// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"fmt"

	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/index"
)

// CompressStore compresses block payloads on the way down and
// decompresses them on the way up. The codec is the one named by the
// block's tag; tag zero passes the payload through. A block read back
// carries its tag, so readers need no knowledge of how it was written.
type CompressStore struct {
	backing BlockStore
	options options
	stats   counters
	pending pending
}

// NewCompressStore wraps backing.
func NewCompressStore(backing BlockStore, opts ...Option) *CompressStore {
	return &CompressStore{backing: backing, options: buildOptions(opts)}
}

var _ BlockStore = (*CompressStore)(nil)

func (s *CompressStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	if block.Index.Tag == uint32(compression.None) {
		s.backing.PutStoredBlock(block, trackErr(&s.pending, done))
		return
	}
	if err := block.CheckData(); err != nil {
		s.stats.inc(StatPutStoredBlockFailCount)
		done(err)
		return
	}
	frame, err := compression.Encode(compression.Tag(block.Index.Tag), block.Data)
	if err != nil {
		s.stats.inc(StatPutStoredBlockFailCount)
		done(fmt.Errorf("compressing block 0x%016x: %w", block.Index.BlockHash, err))
		return
	}
	s.stats.add(StatPutStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
	s.stats.add(StatPutStoredBlockByteCount, uint64(len(frame)))
	compressed := index.NewStoredBlock(block.Index, frame, nil)
	s.backing.PutStoredBlock(compressed, trackErr(&s.pending, func(err error) {
		if err != nil {
			s.stats.inc(StatPutStoredBlockFailCount)
		}
		done(err)
	}))
}

func (s *CompressStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	s.backing.PreflightGet(blockHashes, refCounts, track(&s.pending, done))
}

func (s *CompressStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)
	s.backing.GetStoredBlock(blockHash, track(&s.pending, func(stored *index.StoredBlock, err error) {
		if err != nil {
			s.stats.inc(StatGetStoredBlockFailCount)
			done(nil, err)
			return
		}
		block, err := decompress(stored)
		if err != nil {
			s.stats.inc(StatGetStoredBlockFailCount)
			done(nil, err)
			return
		}
		s.stats.add(StatGetStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
		s.stats.add(StatGetStoredBlockByteCount, uint64(len(block.Data)))
		done(block, nil)
	}))
}

// decompress returns the uncompressed form of stored. On failure
// stored is disposed.
func decompress(stored *index.StoredBlock) (*index.StoredBlock, error) {
	if stored.Index.Tag == uint32(compression.None) {
		if err := stored.CheckData(); err != nil {
			stored.Dispose()
			return nil, err
		}
		return stored, nil
	}
	data, err := compression.Decode(compression.Tag(stored.Index.Tag), stored.Data)
	if err != nil {
		stored.Dispose()
		return nil, fmt.Errorf("decompressing block 0x%016x: %w", stored.Index.BlockHash, err)
	}
	// A frame stored verbatim decodes to a slice of stored.Data, so the
	// decoded block keeps stored alive until it is disposed.
	block := index.NewStoredBlock(stored.Index, data, stored.Dispose)
	if err := block.CheckData(); err != nil {
		block.Dispose()
		return nil, err
	}
	return block, nil
}

func (s *CompressStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	s.backing.GetExistingContent(chunkHashes, minBlockUsagePercent, track(&s.pending, done))
}

func (s *CompressStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.backing.PruneBlocks(keepBlockHashes, track(&s.pending, done))
}

func (s *CompressStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *CompressStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	s.backing.Flush(trackErr(&s.pending, done))
}

func (s *CompressStore) Close() error {
	s.pending.wait()
	return s.backing.Close()
}
