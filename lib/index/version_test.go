// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

func TestBuildVersionIndex(t *testing.T) {
	version := buildVersion(t,
		Asset{Path: "dir/", Permissions: 0o755},
		fileAsset("dir/a.bin", 0, chunks(1, 3, 100)),
		fileAsset("dir/b.bin", 5, []Chunk{{Hash: 2, Size: 100}, {Hash: 9, Size: 7}}),
		Asset{Path: "empty.txt", Permissions: 0o600},
	)

	assert.Equal(t, 4, version.AssetCount())
	assert.True(t, version.IsDir(0))
	assert.False(t, version.IsDir(1))
	assert.Equal(t, []uint64{1, 2, 3, 9}, version.ChunkHashes)
	// Chunk 2 is first used by a.bin, so it keeps a.bin's tag.
	assert.Equal(t, []uint32{0, 0, 0, 5}, version.ChunkTags)
	assert.Equal(t, []uint64{2, 9}, version.AssetChunkHashes(2))
	assert.Empty(t, version.AssetChunks(3))
	assert.Equal(t, uint64(407), version.TotalSize())
	assert.Equal(t, 2, version.Lookup()["dir/b.bin"])
	assert.NotEqual(t, version.ContentHashes[1], version.ContentHashes[2])
	assert.Equal(t, version.ContentHashes[0], version.ContentHashes[3], "no chunks hash alike")
}

func TestBuildVersionIndexRejectsInconsistentAssets(t *testing.T) {
	hasher := testHasher(t)
	cases := map[string][]Asset{
		"size mismatch":   {{Path: "a", Size: 5, Chunks: chunks(1, 1, 4)}},
		"directory data":  {{Path: "d/", Chunks: chunks(1, 1, 4)}},
		"duplicate path":  {fileAsset("a", 0, nil), fileAsset("a", 0, nil)},
		"absolute path":   {fileAsset("/etc/passwd", 0, nil)},
		"empty path":      {fileAsset("", 0, nil)},
		"chunk size flip": {fileAsset("a", 0, []Chunk{{Hash: 1, Size: 4}}), fileAsset("b", 0, []Chunk{{Hash: 1, Size: 5}})},
	}
	for name, assets := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildVersionIndex(hasher, 1024, assets)
			assert.ErrorIs(t, err, errno.EINVAL)
		})
	}
}

func TestVersionIndexBinary(t *testing.T) {
	version := buildVersion(t,
		Asset{Path: "assets/", Permissions: 0o755},
		fileAsset("assets/level.dat", 0, chunks(1, 4, 1000)),
		fileAsset("readme.md", 9, chunks(50, 1, 12)),
		Asset{Path: "zero", Permissions: 0o644},
	)

	files := memoryFiles{}
	require.NoError(t, WriteVersionIndex(files, "v1.lvi", version))
	loaded, err := ReadVersionIndex(files, "v1.lvi")
	require.NoError(t, err)
	assert.Equal(t, version, loaded)
}

func TestVersionIndexCheckDetectsTampering(t *testing.T) {
	version := buildVersion(t, fileAsset("a", 0, chunks(1, 2, 10)))
	encoded, err := version.MarshalBinary()
	require.NoError(t, err)

	var decoded VersionIndex
	require.NoError(t, decoded.UnmarshalBinary(encoded))
	decoded.AssetSizes[0] = 21
	assert.ErrorIs(t, decoded.Check(), errno.EBADF)

	var truncated VersionIndex
	assert.ErrorIs(t, truncated.UnmarshalBinary(encoded[:len(encoded)-1]), errno.EBADF)
}
