// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
)

func TestCompressStoreRoundTrip(t *testing.T) {
	for _, tag := range []compression.Tag{
		compression.None,
		compression.LZ4,
		compression.ZstdDefault,
		compression.BrotliMin,
		compression.BrotliTextDefault,
	} {
		t.Run(tag.String(), func(t *testing.T) {
			backing := newFakeStore()
			store := NewCompressStore(backing)
			block := makeBlock(t, uint32(tag), 11, 4, 4096, true)
			require.NoError(t, PutStoredBlockSync(store, block))

			raw := backing.blocks[block.Index.BlockHash]
			require.NotNil(t, raw)
			assert.Equal(t, uint32(tag), raw.Index.Tag)
			if tag != compression.None {
				assert.Less(t, len(raw.Data), len(block.Data))
			}

			got, err := GetStoredBlockSync(store, block.Index.BlockHash)
			require.NoError(t, err)
			assert.Equal(t, block.Data, got.Data)
			assert.Equal(t, block.Index, got.Index)
			got.Dispose()
			assert.Equal(t, 1, backing.disposeCount(block.Index.BlockHash))
			require.NoError(t, store.Close())
			assert.True(t, backing.closed)
		})
	}
}

func TestCompressStoreIncompressibleBlock(t *testing.T) {
	backing := newFakeStore()
	store := NewCompressStore(backing)
	block := makeBlock(t, uint32(compression.ZstdMax), 12, 2, 2048, false)
	require.NoError(t, PutStoredBlockSync(store, block))

	got, err := GetStoredBlockSync(store, block.Index.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, block.Data, got.Data)
	got.Dispose()
}

func TestCompressStoreRejectsCorruptPayload(t *testing.T) {
	block := makeBlock(t, uint32(compression.LZ4), 13, 1, 1024, true)
	corrupt := index.NewStoredBlock(block.Index, []byte{1, 2, 3}, nil)
	backing := newFakeStore(corrupt)
	_, err := GetStoredBlockSync(NewCompressStore(backing), block.Index.BlockHash)
	assert.ErrorIs(t, err, errno.EBADF)
	assert.Equal(t, 1, backing.disposeCount(block.Index.BlockHash))
}

func TestCompressStorePropagatesMiss(t *testing.T) {
	_, err := GetStoredBlockSync(NewCompressStore(newFakeStore()), 99)
	assert.ErrorIs(t, err, errno.ENOENT)
}
