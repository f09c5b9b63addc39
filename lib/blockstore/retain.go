// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/longtail/lib/index"
)

// RetainStore pins blocks a bulk operation will fetch more than once.
// PreflightGet supplies the expected fetch count per block; a block
// announced with a count above one is kept in memory after its first
// fetch and served from there until the count is used up, then
// released once the last handle is disposed. Blocks announced once,
// or not at all, pass straight through.
//
// A pinned block is a private copy: the backing handle is disposed as
// soon as the block is fetched, so pins never hold slots of a bounded
// layer such as LRUStore. Every announced fetch must reach this layer
// for the budget to run out, so RetainStore goes above any layer that
// collapses requests (ShareStore, LRUStore).
type RetainStore struct {
	backing BlockStore
	options options
	stats   counters
	pending pending

	mu       sync.Mutex
	waiters  waitList
	budget   map[uint64]uint32
	retained map[uint64]*retainedBlock
}

type retainedBlock struct {
	hash      uint64
	block     *index.StoredBlock
	remaining uint32
	refs      int
}

// NewRetainStore wraps backing.
func NewRetainStore(backing BlockStore, opts ...Option) *RetainStore {
	return &RetainStore{
		backing:  backing,
		options:  buildOptions(opts),
		waiters:  newWaitList(),
		budget:   map[uint64]uint32{},
		retained: map[uint64]*retainedBlock{},
	}
}

var _ BlockStore = (*RetainStore)(nil)

// Retained returns the number of blocks held in memory.
func (s *RetainStore) Retained() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retained)
}

func (s *RetainStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	s.backing.PutStoredBlock(block, trackErr(&s.pending, done))
}

func (s *RetainStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	if refCounts != nil && len(refCounts) != len(blockHashes) {
		s.stats.inc(StatPreflightGetFailCount)
		done(nil, fmt.Errorf("preflight: %d hashes but %d ref counts", len(blockHashes), len(refCounts)))
		return
	}
	s.mu.Lock()
	for i, hash := range blockHashes {
		if refCounts == nil || refCounts[i] < 2 {
			continue
		}
		if entry, ok := s.retained[hash]; ok {
			entry.remaining += refCounts[i]
			continue
		}
		s.budget[hash] += refCounts[i]
	}
	s.mu.Unlock()
	s.backing.PreflightGet(blockHashes, refCounts, track(&s.pending, done))
}

func (s *RetainStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)

	s.mu.Lock()
	if entry, ok := s.retained[blockHash]; ok {
		handle := s.use(entry)
		s.mu.Unlock()
		done(handle, nil)
		return
	}
	if _, announced := s.budget[blockHash]; !announced {
		s.mu.Unlock()
		s.backing.GetStoredBlock(blockHash, track(&s.pending, func(block *index.StoredBlock, err error) {
			if err != nil {
				s.stats.inc(StatGetStoredBlockFailCount)
			}
			done(block, err)
		}))
		return
	}
	first := s.waiters.join(blockHash, done)
	s.mu.Unlock()
	if !first {
		return
	}

	s.backing.GetStoredBlock(blockHash, track(&s.pending, func(block *index.StoredBlock, err error) {
		if err == nil {
			block = detach(block)
		}
		s.mu.Lock()
		waiters := s.waiters.take(blockHash)
		if err != nil {
			s.mu.Unlock()
			s.stats.add(StatGetStoredBlockFailCount, uint64(len(waiters)))
			failAll(waiters, err)
			return
		}
		entry := &retainedBlock{hash: blockHash, block: block, remaining: s.budget[blockHash]}
		delete(s.budget, blockHash)
		s.retained[blockHash] = entry
		handles := make([]*index.StoredBlock, len(waiters))
		for i := range waiters {
			handles[i] = s.use(entry)
		}
		s.mu.Unlock()

		for i, waiter := range waiters {
			waiter(handles[i], nil)
		}
	}))
}

// detach copies block into memory the retain store owns and releases
// the backing handle.
func detach(block *index.StoredBlock) *index.StoredBlock {
	data := make([]byte, len(block.Data))
	copy(data, block.Data)
	block.Dispose()
	return index.NewStoredBlock(block.Index, data, nil)
}

// use consumes one announced fetch of entry and returns a handle.
// Callers hold mu.
func (s *RetainStore) use(entry *retainedBlock) *index.StoredBlock {
	entry.refs++
	if entry.remaining > 0 {
		entry.remaining--
	}
	if entry.remaining == 0 {
		delete(s.retained, entry.hash)
	}
	s.stats.add(StatGetStoredBlockChunkCount, uint64(entry.block.Index.ChunkCount()))
	s.stats.add(StatGetStoredBlockByteCount, uint64(len(entry.block.Data)))
	return index.NewStoredBlock(entry.block.Index, entry.block.Data, func() {
		s.release(entry)
	})
}

func (s *RetainStore) release(entry *retainedBlock) {
	s.mu.Lock()
	entry.refs--
	if entry.refs < 0 {
		s.mu.Unlock()
		panic(fmt.Sprintf("retained block 0x%016x released more often than referenced", entry.hash))
	}
	_, stillRetained := s.retained[entry.hash]
	free := entry.refs == 0 && !stillRetained
	s.mu.Unlock()
	if free {
		entry.block.Dispose()
	}
}

func (s *RetainStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	s.backing.GetExistingContent(chunkHashes, minBlockUsagePercent, track(&s.pending, done))
}

func (s *RetainStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.backing.PruneBlocks(keepBlockHashes, track(&s.pending, done))
}

func (s *RetainStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *RetainStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	s.backing.Flush(trackErr(&s.pending, done))
}

// Close waits for in-flight fetches and releases blocks whose
// announced fetches never happened.
func (s *RetainStore) Close() error {
	s.pending.wait()
	s.mu.Lock()
	var unused []*retainedBlock
	for hash, entry := range s.retained {
		delete(s.retained, hash)
		if entry.refs == 0 {
			unused = append(unused, entry)
		}
	}
	s.budget = map[uint64]uint32{}
	s.mu.Unlock()
	if len(unused) > 0 {
		s.options.logger.Debug("releasing retained blocks with unused fetches", "blocks", len(unused))
	}
	for _, entry := range unused {
		entry.block.Dispose()
	}
	return s.backing.Close()
}
