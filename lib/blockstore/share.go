// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/longtail/lib/index"
)

// ShareStore collapses concurrent fetches of one block into a single
// backing fetch and hands every caller a reference to the same
// decoded block. The backing block is disposed when the last
// reference is.
type ShareStore struct {
	backing BlockStore
	options options
	stats   counters
	pending pending

	mu      sync.Mutex
	waiters waitList
	shared  map[uint64]*sharedBlock
}

type sharedBlock struct {
	block *index.StoredBlock
	refs  int
}

// NewShareStore wraps backing.
func NewShareStore(backing BlockStore, opts ...Option) *ShareStore {
	return &ShareStore{
		backing: backing,
		options: buildOptions(opts),
		waiters: newWaitList(),
		shared:  map[uint64]*sharedBlock{},
	}
}

var _ BlockStore = (*ShareStore)(nil)

func (s *ShareStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	s.backing.PutStoredBlock(block, trackErr(&s.pending, done))
}

func (s *ShareStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	s.backing.PreflightGet(blockHashes, refCounts, track(&s.pending, done))
}

func (s *ShareStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)

	s.mu.Lock()
	if entry, ok := s.shared[blockHash]; ok {
		entry.refs++
		s.mu.Unlock()
		done(s.reference(blockHash, entry))
		return
	}
	first := s.waiters.join(blockHash, done)
	s.mu.Unlock()
	if !first {
		return
	}

	s.backing.GetStoredBlock(blockHash, track(&s.pending, func(block *index.StoredBlock, err error) {
		s.mu.Lock()
		waiters := s.waiters.take(blockHash)
		if err != nil {
			s.mu.Unlock()
			s.stats.add(StatGetStoredBlockFailCount, uint64(len(waiters)))
			failAll(waiters, err)
			return
		}
		entry := &sharedBlock{block: block, refs: len(waiters)}
		s.shared[blockHash] = entry
		s.mu.Unlock()

		for _, waiter := range waiters {
			waiter(s.reference(blockHash, entry))
		}
	}))
}

// reference returns a handle on entry whose Dispose drops one
// reference. The caller has already counted it.
func (s *ShareStore) reference(blockHash uint64, entry *sharedBlock) (*index.StoredBlock, error) {
	s.stats.add(StatGetStoredBlockChunkCount, uint64(entry.block.Index.ChunkCount()))
	s.stats.add(StatGetStoredBlockByteCount, uint64(len(entry.block.Data)))
	return index.NewStoredBlock(entry.block.Index, entry.block.Data, func() {
		s.release(blockHash, entry)
	}), nil
}

func (s *ShareStore) release(blockHash uint64, entry *sharedBlock) {
	s.mu.Lock()
	entry.refs--
	if entry.refs < 0 {
		s.mu.Unlock()
		panic(fmt.Sprintf("shared block 0x%016x released more often than referenced", blockHash))
	}
	if entry.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.shared, blockHash)
	s.mu.Unlock()
	entry.block.Dispose()
}

func (s *ShareStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	s.backing.GetExistingContent(chunkHashes, minBlockUsagePercent, track(&s.pending, done))
}

func (s *ShareStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.backing.PruneBlocks(keepBlockHashes, track(&s.pending, done))
}

func (s *ShareStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *ShareStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	s.backing.Flush(trackErr(&s.pending, done))
}

// Close waits for in-flight fetches. Blocks still referenced by
// callers are logged; their backing blocks are released when the
// callers dispose them.
func (s *ShareStore) Close() error {
	s.pending.wait()
	s.mu.Lock()
	live := len(s.shared)
	s.mu.Unlock()
	if live > 0 {
		s.options.logger.Warn("closing share store with referenced blocks", "blocks", live)
	}
	return s.backing.Close()
}
