// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/jobs"
)

func testHasher(t *testing.T) hashing.Hasher {
	t.Helper()
	hasher, err := hashing.Lookup(hashing.BLAKE3)
	require.NoError(t, err)
	return hasher
}

// makeBlock builds a block of chunkCount chunks of chunkSize bytes
// each. Data is seeded so equal seeds give equal blocks; repetitive
// data compresses well.
func makeBlock(t *testing.T, tag uint32, seed int64, chunkCount int, chunkSize int, repetitive bool) *index.StoredBlock {
	t.Helper()
	hasher := testHasher(t)
	random := rand.New(rand.NewSource(seed))
	data := make([]byte, chunkCount*chunkSize)
	if repetitive {
		pattern := []byte("longtail block payload ")
		for i := range data {
			data[i] = pattern[(i+int(seed))%len(pattern)]
		}
	} else {
		random.Read(data)
	}
	hashes := make([]uint64, chunkCount)
	sizes := make([]uint32, chunkCount)
	for i := range chunkCount {
		chunk := data[i*chunkSize : (i+1)*chunkSize]
		hashes[i] = hasher.Sum64(append(chunk[:len(chunk):len(chunk)], byte(seed), byte(i)))
		sizes[i] = uint32(chunkSize)
	}
	blockIndex, err := index.NewBlockIndex(hasher, tag, hashes, sizes)
	require.NoError(t, err)
	return index.NewStoredBlock(blockIndex, data, nil)
}

func testScheduler() *jobs.Scheduler {
	return jobs.New(4)
}

// fakeStore is an in-memory BlockStore that counts calls. When gate is
// set, fetches complete on another goroutine once gate is closed.
type fakeStore struct {
	gate chan struct{}

	mu       sync.Mutex
	blocks   map[uint64]*index.StoredBlock
	gets     map[uint64]int
	puts     int
	disposed map[uint64]int
	putErr   error
	closed   bool
}

func newFakeStore(blocks ...*index.StoredBlock) *fakeStore {
	store := &fakeStore{
		blocks:   map[uint64]*index.StoredBlock{},
		gets:     map[uint64]int{},
		disposed: map[uint64]int{},
	}
	for _, block := range blocks {
		store.blocks[block.Index.BlockHash] = block
	}
	return store
}

func (f *fakeStore) getCount(hash uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[hash]
}

func (f *fakeStore) disposeCount(hash uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed[hash]
}

func (f *fakeStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	f.mu.Lock()
	if f.putErr != nil {
		f.mu.Unlock()
		done(f.putErr)
		return
	}
	f.puts++
	f.blocks[block.Index.BlockHash] = index.NewStoredBlock(block.Index, append([]byte(nil), block.Data...), nil)
	f.mu.Unlock()
	done(nil)
}

func (f *fakeStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	done(nil, errno.Wrap(errno.ENOTSUP, "fake preflight"))
}

func (f *fakeStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	f.mu.Lock()
	f.gets[blockHash]++
	f.mu.Unlock()
	if f.gate == nil {
		f.serve(blockHash, done)
		return
	}
	go func() {
		<-f.gate
		f.serve(blockHash, done)
	}()
}

func (f *fakeStore) serve(blockHash uint64, done func(*index.StoredBlock, error)) {
	f.mu.Lock()
	block, ok := f.blocks[blockHash]
	f.mu.Unlock()
	if !ok {
		done(nil, errno.Wrap(errno.ENOENT, "fake block 0x%016x", blockHash))
		return
	}
	done(index.NewStoredBlock(block.Index, block.Data, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.disposed[blockHash]++
	}), nil)
}

func (f *fakeStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	f.mu.Lock()
	blocks := make([]index.BlockIndex, 0, len(f.blocks))
	for _, block := range f.blocks {
		blocks = append(blocks, block.Index)
	}
	f.mu.Unlock()
	store, err := index.NewStoreIndex(blocks)
	if err != nil {
		done(nil, err)
		return
	}
	existing, err := index.GetExistingStoreIndex(store, chunkHashes, minBlockUsagePercent)
	done(existing, err)
}

func (f *fakeStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	done(0, nil)
}

func (f *fakeStore) Stats() Stats { return Stats{} }

func (f *fakeStore) Flush(done func(error)) { done(nil) }

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// pendingGets collects the results of concurrent fetches.
type pendingGets struct {
	wait   sync.WaitGroup
	blocks []*index.StoredBlock
	errs   []error
}

// startGets issues count fetches of hash without waiting for them.
func startGets(store BlockStore, hash uint64, count int) *pendingGets {
	gets := &pendingGets{
		blocks: make([]*index.StoredBlock, count),
		errs:   make([]error, count),
	}
	gets.wait.Add(count)
	for i := range count {
		store.GetStoredBlock(hash, func(block *index.StoredBlock, err error) {
			gets.blocks[i] = block
			gets.errs[i] = err
			gets.wait.Done()
		})
	}
	return gets
}

// finish waits for every fetch and requires that all succeeded.
func (g *pendingGets) finish(t *testing.T) []*index.StoredBlock {
	t.Helper()
	g.wait.Wait()
	for _, err := range g.errs {
		require.NoError(t, err)
	}
	return g.blocks
}
