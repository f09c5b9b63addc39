// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/storage"
)

func TestCacheStoreMirrorsRemoteHits(t *testing.T) {
	block := makeBlock(t, 0, 20, 3, 256, false)
	remote := newFakeStore(block)
	local := NewFSStore(storage.NewMemory(), "cache", testScheduler())
	store := NewCacheStore(local, remote)

	got, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, block.Data, got.Data)
	got.Dispose()
	assert.Equal(t, 1, remote.getCount(block.Index.BlockHash))

	got, err = GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	got.Dispose()
	assert.Equal(t, 1, remote.getCount(block.Index.BlockHash), "second fetch served locally")

	cached, err := GetStoredBlockSync(local, block.Index.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, block.Data, cached.Data)
	cached.Dispose()
	require.NoError(t, store.Close())
	assert.True(t, remote.closed)
}

func TestCacheStoreMirrorFailureDoesNotFailGet(t *testing.T) {
	block := makeBlock(t, 0, 21, 1, 64, false)
	local := newFakeStore()
	local.putErr = errors.New("local disk full")
	store := NewCacheStore(local, newFakeStore(block))

	got, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, block.Data, got.Data)
	got.Dispose()
}

func TestCacheStoreMissEverywhere(t *testing.T) {
	store := NewCacheStore(newFakeStore(), newFakeStore())
	_, err := GetStoredBlockSync(store, 5)
	assert.ErrorIs(t, err, errno.ENOENT)
	assert.EqualValues(t, 1, store.Stats()[StatGetStoredBlockFailCount])
}

func TestCacheStorePutReachesBothTiers(t *testing.T) {
	local, remote := newFakeStore(), newFakeStore()
	store := NewCacheStore(local, remote)
	block := makeBlock(t, 0, 22, 1, 64, false)
	require.NoError(t, PutStoredBlockSync(store, block))
	assert.Equal(t, 1, local.puts)
	assert.Equal(t, 1, remote.puts)

	remote.putErr = errors.New("remote down")
	assert.Error(t, PutStoredBlockSync(store, makeBlock(t, 0, 23, 1, 64, false)))
	assert.Equal(t, 1, local.puts)
}
