// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
)

// DefaultLRUCapacity is the number of decoded blocks an LRUStore
// keeps when no capacity is configured.
const DefaultLRUCapacity = 32

// LRUStore keeps up to capacity fetched blocks in memory. A hit moves
// the block to the front. When full, the least recently used block
// nobody references is evicted; when every cached block is
// referenced, the fetch fails with ENOMEM.
type LRUStore struct {
	backing  BlockStore
	capacity int
	options  options
	stats    counters
	pending  pending

	mu      sync.Mutex
	waiters waitList
	entries map[uint64]*list.Element
	// order holds *lruEntry, most recently used at the front.
	order *list.List
}

type lruEntry struct {
	hash  uint64
	block *index.StoredBlock
	refs  int
}

// NewLRUStore wraps backing. capacity <= 0 selects
// DefaultLRUCapacity.
func NewLRUStore(backing BlockStore, capacity int, opts ...Option) *LRUStore {
	if capacity <= 0 {
		capacity = DefaultLRUCapacity
	}
	return &LRUStore{
		backing:  backing,
		capacity: capacity,
		options:  buildOptions(opts),
		waiters:  newWaitList(),
		entries:  map[uint64]*list.Element{},
		order:    list.New(),
	}
}

var _ BlockStore = (*LRUStore)(nil)

// Cached returns the number of blocks held.
func (s *LRUStore) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *LRUStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	s.backing.PutStoredBlock(block, trackErr(&s.pending, done))
}

func (s *LRUStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	s.backing.PreflightGet(blockHashes, refCounts, track(&s.pending, done))
}

func (s *LRUStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)

	s.mu.Lock()
	if element, ok := s.entries[blockHash]; ok {
		entry := element.Value.(*lruEntry)
		entry.refs++
		s.order.MoveToFront(element)
		s.mu.Unlock()
		done(s.reference(entry), nil)
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
		evicted, ok := s.makeRoom()
		if !ok {
			s.mu.Unlock()
			block.Dispose()
			s.stats.add(StatGetStoredBlockFailCount, uint64(len(waiters)))
			failAll(waiters, errno.Wrap(errno.ENOMEM,
				"caching block 0x%016x: all %d cached blocks are referenced", blockHash, s.capacity))
			return
		}
		entry := &lruEntry{hash: blockHash, block: block, refs: len(waiters)}
		s.entries[blockHash] = s.order.PushFront(entry)
		s.mu.Unlock()

		if evicted != nil {
			evicted.Dispose()
		}
		for _, waiter := range waiters {
			waiter(s.reference(entry), nil)
		}
	}))
}

// makeRoom evicts the least recently used unreferenced entry when the
// cache is full and returns the evicted block for disposal outside
// the lock. Callers hold mu.
func (s *LRUStore) makeRoom() (*index.StoredBlock, bool) {
	if len(s.entries) < s.capacity {
		return nil, true
	}
	for element := s.order.Back(); element != nil; element = element.Prev() {
		entry := element.Value.(*lruEntry)
		if entry.refs > 0 {
			continue
		}
		s.order.Remove(element)
		delete(s.entries, entry.hash)
		return entry.block, true
	}
	return nil, false
}

func (s *LRUStore) reference(entry *lruEntry) *index.StoredBlock {
	s.stats.add(StatGetStoredBlockChunkCount, uint64(entry.block.Index.ChunkCount()))
	s.stats.add(StatGetStoredBlockByteCount, uint64(len(entry.block.Data)))
	return index.NewStoredBlock(entry.block.Index, entry.block.Data, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.refs--
		if entry.refs < 0 {
			panic(fmt.Sprintf("cached block 0x%016x released more often than referenced", entry.hash))
		}
	})
}

func (s *LRUStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	s.backing.GetExistingContent(chunkHashes, minBlockUsagePercent, track(&s.pending, done))
}

func (s *LRUStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.backing.PruneBlocks(keepBlockHashes, track(&s.pending, done))
}

func (s *LRUStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *LRUStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	s.backing.Flush(trackErr(&s.pending, done))
}

// Close waits for in-flight fetches and releases every cached block.
func (s *LRUStore) Close() error {
	s.pending.wait()
	s.mu.Lock()
	var blocks []*index.StoredBlock
	referenced := 0
	for element := s.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*lruEntry)
		if entry.refs > 0 {
			referenced++
		}
		blocks = append(blocks, entry.block)
	}
	s.entries = map[uint64]*list.Element{}
	s.order.Init()
	s.mu.Unlock()

	if referenced > 0 {
		s.options.logger.Warn("closing LRU store with referenced blocks", "blocks", referenced)
	}
	for _, block := range blocks {
		block.Dispose()
	}
	return s.backing.Close()
}
