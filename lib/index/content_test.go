// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

func TestCreateContentIndexHonorsChunkLimit(t *testing.T) {
	version := buildVersion(t, fileAsset("a.bin", 0, chunks(1, 10, 100)))
	content, err := CreateContentIndex(testHasher(t), version, 1<<20, 4)
	require.NoError(t, err)

	assert.Equal(t, []uint32{4, 4, 2}, content.BlockChunkCounts)
	assert.Equal(t, version.ChunkHashes, content.ChunkHashes)
	assert.Equal(t, uint32(4), content.MaxChunksPerBlock)
}

func TestCreateContentIndexHonorsSizeLimit(t *testing.T) {
	list := []Chunk{{Hash: 1, Size: 400}, {Hash: 2, Size: 400}, {Hash: 3, Size: 300}, {Hash: 4, Size: 2000}, {Hash: 5, Size: 10}}
	version := buildVersion(t, fileAsset("a.bin", 0, list))
	content, err := CreateContentIndex(testHasher(t), version, 1000, 100)
	require.NoError(t, err)

	// 400+400 fits; +300 would not. The 2000 byte chunk exceeds the
	// limit on its own and is packed alone.
	assert.Equal(t, []uint32{2, 1, 1, 1}, content.BlockChunkCounts)
	for i := range content.BlockHashes {
		block := content.Block(i)
		if block.ChunkCount() > 1 {
			assert.LessOrEqual(t, block.DataSize(), uint64(1000))
		}
	}
}

func TestCreateContentIndexSeparatesTags(t *testing.T) {
	version := buildVersion(t,
		fileAsset("a.txt", 7, chunks(1, 3, 10)),
		fileAsset("b.png", 0, chunks(10, 2, 10)),
		fileAsset("c.txt", 7, chunks(20, 2, 10)),
	)
	content, err := CreateContentIndex(testHasher(t), version, 1<<20, 100)
	require.NoError(t, err)

	require.Equal(t, 2, content.BlockCount())
	assert.Equal(t, []uint32{7, 0}, content.BlockTags)
	assert.Equal(t, []uint64{1, 2, 3, 20, 21}, content.Block(0).ChunkHashes)
	assert.Equal(t, []uint64{10, 11}, content.Block(1).ChunkHashes)
}

func TestCreateContentIndexDeduplicatesChunks(t *testing.T) {
	shared := chunks(1, 2, 10)
	version := buildVersion(t, fileAsset("a", 0, shared), fileAsset("b", 0, shared))
	assert.Len(t, version.ChunkHashes, 2)

	content, err := CreateContentIndexFromChunks(testHasher(t), []uint64{1, 1, 2}, []uint32{5, 5, 6}, []uint32{0, 0, 0}, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, content.ChunkHashes)
}

func TestCreateContentIndexEmptyVersion(t *testing.T) {
	version := buildVersion(t, Asset{Path: "empty", Permissions: 0o644}, Asset{Path: "dir/", Permissions: 0o755})
	content, err := CreateContentIndex(testHasher(t), version, 1024, 16)
	require.NoError(t, err)
	assert.Zero(t, content.BlockCount())
	assert.Equal(t, version.HashIdentifier, content.HashIdentifier)
}

func TestCreateContentIndexRejectsBadLimits(t *testing.T) {
	version := buildVersion(t, fileAsset("a", 0, chunks(1, 1, 1)))
	_, err := CreateContentIndex(testHasher(t), version, 0, 10)
	assert.ErrorIs(t, err, errno.EINVAL)
	_, err = CreateContentIndex(testHasher(t), version, 10, 0)
	assert.ErrorIs(t, err, errno.EINVAL)
	_, err = CreateContentIndexFromChunks(testHasher(t), []uint64{1}, nil, nil, 10, 10)
	assert.ErrorIs(t, err, errno.EINVAL)
}

func TestCreateMissingContentIsExactDifference(t *testing.T) {
	hasher := testHasher(t)
	old := buildVersion(t, fileAsset("a.bin", 0, chunks(1, 20, 64)))
	existing, err := CreateContentIndex(hasher, old, 512, 8)
	require.NoError(t, err)

	// The new version keeps chunks 1..15, drops 16..20 and adds 100..104.
	list := append(chunks(1, 15, 64), chunks(100, 5, 64)...)
	updated := buildVersion(t, fileAsset("a.bin", 0, list))
	require.ErrorIs(t, ValidateContent(&existing.StoreIndex, updated), errno.EINVAL)

	missing, err := CreateMissingContent(hasher, &existing.StoreIndex, updated, 512, 8)
	require.NoError(t, err)
	got := slices.Clone(missing.ChunkHashes)
	slices.Sort(got)
	assert.Equal(t, []uint64{100, 101, 102, 103, 104}, got)

	merged, err := MergeStoreIndex(&existing.StoreIndex, &missing.StoreIndex)
	require.NoError(t, err)
	assert.NoError(t, ValidateContent(merged, updated))
	assert.NoError(t, ValidateContent(merged, old))
}

func TestCreateMissingContentNothingMissing(t *testing.T) {
	hasher := testHasher(t)
	version := buildVersion(t, fileAsset("a.bin", 0, chunks(1, 5, 64)))
	existing, err := CreateContentIndex(hasher, version, 512, 8)
	require.NoError(t, err)

	missing, err := CreateMissingContent(hasher, &existing.StoreIndex, version, 512, 8)
	require.NoError(t, err)
	assert.Zero(t, missing.BlockCount())
}

func TestMergeContentIndexKeepsFirstLimits(t *testing.T) {
	hasher := testHasher(t)
	a, err := CreateContentIndexFromChunks(hasher, []uint64{1}, []uint32{1}, []uint32{0}, 100, 10)
	require.NoError(t, err)
	b, err := CreateContentIndexFromChunks(hasher, []uint64{2}, []uint32{1}, []uint32{0}, 200, 20)
	require.NoError(t, err)

	merged, err := MergeContentIndex(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.BlockCount())
	assert.Equal(t, uint32(100), merged.MaxBlockSize)
	assert.Equal(t, uint32(10), merged.MaxChunksPerBlock)
}

func TestContentIndexBinary(t *testing.T) {
	version := buildVersion(t, fileAsset("a.bin", 3, chunks(1, 9, 64)))
	content, err := CreateContentIndex(testHasher(t), version, 256, 3)
	require.NoError(t, err)

	files := memoryFiles{}
	require.NoError(t, WriteContentIndex(files, "content.lci", content))
	loaded, err := ReadContentIndex(files, "content.lci")
	require.NoError(t, err)
	assert.Equal(t, content, loaded)

	var wrongKind StoreIndex
	assert.ErrorIs(t, wrongKind.UnmarshalBinary(files["content.lci"]), errno.EBADF)
}
