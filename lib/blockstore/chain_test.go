// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// TestDownloadChainReusesBlocksBeyondLRUCapacity composes the download
// chain over a filesystem store and fetches every block twice, with
// more reused blocks than the LRU holds and as many workers as it
// has slots.
func TestDownloadChainReusesBlocksBeyondLRUCapacity(t *testing.T) {
	const (
		blockCount = 12
		workers    = 3
	)

	fs := storage.NewMemory()
	remote := NewFSStore(fs, "store", testScheduler())
	upload := NewCompressStore(remote)
	blocks := make([]*index.StoredBlock, blockCount)
	hashes := make([]uint64, blockCount)
	counts := make([]uint32, blockCount)
	for i := range blocks {
		blocks[i] = makeBlock(t, uint32(compression.ZstdDefault), int64(200+i), 3, 1024, i%2 == 0)
		hashes[i] = blocks[i].Index.BlockHash
		counts[i] = 2
		require.NoError(t, PutStoredBlockSync(upload, blocks[i]))
	}
	require.NoError(t, upload.Close())

	backing := NewFSStore(fs, "store", testScheduler())
	lru := NewLRUStore(NewCompressStore(NewThreadedStore(backing, 2, 8)), workers)
	store := NewRetainStore(NewShareStore(lru))
	_, _ = PreflightGetSync(store, hashes, counts)

	// First pass pins every block; second pass is served from the pins.
	order := append(append([]int(nil), indexes(blockCount)...), indexes(blockCount)...)
	var group errgroup.Group
	group.SetLimit(workers)
	for _, i := range order {
		group.Go(func() error {
			got, err := GetStoredBlockSync(store, hashes[i])
			if err != nil {
				return err
			}
			defer got.Dispose()
			assert.Equal(t, blocks[i].Data, got.Data)
			return nil
		})
	}
	require.NoError(t, group.Wait())

	assert.Zero(t, store.Retained())
	assert.LessOrEqual(t, lru.Cached(), workers)
	assert.EqualValues(t, blockCount, backing.Stats()[StatGetStoredBlockCount])
	require.NoError(t, store.Close())
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
