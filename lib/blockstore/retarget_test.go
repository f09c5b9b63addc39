// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/index"
)

func TestRetargetContent(t *testing.T) {
	remoteBlock := makeBlock(t, 0, 80, 3, 64, false)
	unrelated := makeBlock(t, 0, 81, 2, 64, false)
	store := newFakeStore(remoteBlock, unrelated)

	// The local plan packs one of the remote chunks with a chunk the
	// remote lacks.
	hasher := testHasher(t)
	localBlock, err := index.NewBlockIndex(hasher, 0,
		[]uint64{remoteBlock.Index.ChunkHashes[1], 0xabcdef},
		[]uint32{64, 64})
	require.NoError(t, err)
	local, err := index.NewStoreIndex([]index.BlockIndex{localBlock})
	require.NoError(t, err)

	retargeted, err := RetargetContent(store, &index.ContentIndex{StoreIndex: *local, MaxBlockSize: 1 << 20, MaxChunksPerBlock: 16})
	require.NoError(t, err)
	assert.Equal(t, []uint64{remoteBlock.Index.BlockHash}, retargeted.BlockHashes)
}
