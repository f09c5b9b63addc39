// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

func TestShareStoreCollapsesConcurrentGets(t *testing.T) {
	block := makeBlock(t, 0, 30, 2, 128, false)
	backing := newFakeStore(block)
	backing.gate = make(chan struct{})
	store := NewShareStore(backing)

	const callers = 8
	gets := startGets(store, block.Index.BlockHash, callers)
	close(backing.gate)
	blocks := gets.finish(t)

	assert.Equal(t, 1, backing.getCount(block.Index.BlockHash))
	for i, got := range blocks {
		assert.Equal(t, block.Data, got.Data)
		got.Dispose()
		got.Dispose()
		if i < callers-1 {
			assert.Zero(t, backing.disposeCount(block.Index.BlockHash), "released while referenced")
		}
	}
	assert.Equal(t, 1, backing.disposeCount(block.Index.BlockHash))
	require.NoError(t, store.Close())
}

func TestShareStoreReferencesLiveBlock(t *testing.T) {
	block := makeBlock(t, 0, 31, 1, 64, false)
	backing := newFakeStore(block)
	store := NewShareStore(backing)

	first, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	second, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.getCount(block.Index.BlockHash))

	first.Dispose()
	assert.Zero(t, backing.disposeCount(block.Index.BlockHash))
	second.Dispose()
	assert.Equal(t, 1, backing.disposeCount(block.Index.BlockHash))

	// Fully released blocks are fetched again.
	third, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	third.Dispose()
	assert.Equal(t, 2, backing.getCount(block.Index.BlockHash))
}

func TestShareStoreFansOutErrors(t *testing.T) {
	backing := newFakeStore()
	backing.gate = make(chan struct{})
	store := NewShareStore(backing)

	gets := startGets(store, 404, 5)
	close(backing.gate)
	gets.wait.Wait()
	for _, err := range gets.errs {
		assert.ErrorIs(t, err, errno.ENOENT)
	}
	assert.Equal(t, 1, backing.getCount(404))
	assert.EqualValues(t, 5, store.Stats()[StatGetStoredBlockFailCount])
}
