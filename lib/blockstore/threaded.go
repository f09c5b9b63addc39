// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"runtime"
	"sync"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
)

// DefaultQueueCapacity is the request queue length of a ThreadedStore
// when none is configured.
const DefaultQueueCapacity = 1024

// ThreadedStore runs every call on a fixed pool of worker goroutines
// fed by a bounded FIFO queue. Callers block while the queue is full.
// Calls made after Close fail with ECANCELED.
type ThreadedStore struct {
	backing BlockStore
	options options
	stats   counters
	pending pending

	// closeMu is held shared while enqueueing and exclusively by
	// Close, so no request is queued behind the exit sentinels.
	closeMu  sync.RWMutex
	closed   bool
	requests chan func()
	count    int
	workers  sync.WaitGroup
}

// NewThreadedStore starts workers goroutines (one per CPU when
// workers <= 0) serving a queue of queueCapacity requests
// (DefaultQueueCapacity when <= 0).
func NewThreadedStore(backing BlockStore, workers, queueCapacity int, opts ...Option) *ThreadedStore {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	s := &ThreadedStore{
		backing:  backing,
		options:  buildOptions(opts),
		requests: make(chan func(), queueCapacity),
		count:    workers,
	}
	s.workers.Add(workers)
	for range workers {
		go s.work()
	}
	return s
}

var _ BlockStore = (*ThreadedStore)(nil)

// work runs requests until it receives the nil exit sentinel.
func (s *ThreadedStore) work() {
	defer s.workers.Done()
	for request := range s.requests {
		if request == nil {
			return
		}
		request()
	}
}

// enqueue queues request and reports false once the store is closed.
func (s *ThreadedStore) enqueue(request func()) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	s.requests <- request
	return true
}

func closedError(operation string) error {
	return errno.Wrap(errno.ECANCELED, "%s on closed threaded store", operation)
}

func (s *ThreadedStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	done = trackErr(&s.pending, done)
	if !s.enqueue(func() { s.backing.PutStoredBlock(block, done) }) {
		s.stats.inc(StatPutStoredBlockFailCount)
		done(closedError("put"))
	}
}

func (s *ThreadedStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	done = track(&s.pending, done)
	if !s.enqueue(func() { s.backing.PreflightGet(blockHashes, refCounts, done) }) {
		s.stats.inc(StatPreflightGetFailCount)
		done(nil, closedError("preflight"))
	}
}

func (s *ThreadedStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)
	done = track(&s.pending, done)
	if !s.enqueue(func() { s.backing.GetStoredBlock(blockHash, done) }) {
		s.stats.inc(StatGetStoredBlockFailCount)
		done(nil, closedError("get"))
	}
}

func (s *ThreadedStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	done = track(&s.pending, done)
	if !s.enqueue(func() { s.backing.GetExistingContent(chunkHashes, minBlockUsagePercent, done) }) {
		s.stats.inc(StatGetExistingContentFailCount)
		done(nil, closedError("get existing content"))
	}
}

func (s *ThreadedStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	done = track(&s.pending, done)
	if !s.enqueue(func() { s.backing.PruneBlocks(keepBlockHashes, done) }) {
		s.stats.inc(StatPruneBlocksFailCount)
		done(0, closedError("prune"))
	}
}

func (s *ThreadedStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *ThreadedStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	done = trackErr(&s.pending, done)
	if !s.enqueue(func() { s.backing.Flush(done) }) {
		s.stats.inc(StatFlushFailCount)
		done(closedError("flush"))
	}
}

// Close drains the queue, stops the workers, waits for requests still
// completing in the backing store, and closes it.
func (s *ThreadedStore) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	for range s.count {
		s.requests <- nil
	}
	s.workers.Wait()
	s.pending.wait()
	return s.backing.Close()
}
