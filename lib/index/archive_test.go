// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

func TestArchiveIndexBinary(t *testing.T) {
	version := buildVersion(t, fileAsset("a.bin", 0, chunks(1, 5, 100)))
	content, err := CreateContentIndex(testHasher(t), version, 250, 10)
	require.NoError(t, err)
	require.Equal(t, 3, content.BlockCount())

	archive := &ArchiveIndex{
		Store:        content.StoreIndex,
		Version:      *version,
		BlockOffsets: []uint64{4096, 4400, 4700},
		BlockSizes:   []uint32{300, 300, 150},
	}
	encoded, err := archive.MarshalBinary()
	require.NoError(t, err)

	var decoded ArchiveIndex
	require.NoError(t, decoded.UnmarshalBinary(encoded))
	assert.Equal(t, archive, &decoded)

	archive.BlockSizes = archive.BlockSizes[:2]
	assert.ErrorIs(t, archive.Check(), errno.EBADF)
}
