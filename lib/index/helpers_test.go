// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
)

func testHasher(t *testing.T) hashing.Hasher {
	t.Helper()
	hasher, err := hashing.Lookup(hashing.BLAKE3)
	require.NoError(t, err)
	return hasher
}

// chunks builds a chunk list whose hashes are base, base+1, ... and
// whose sizes are all size.
func chunks(base uint64, count int, size uint32) []Chunk {
	result := make([]Chunk, count)
	for i := range result {
		result[i] = Chunk{Hash: base + uint64(i), Size: size}
	}
	return result
}

func fileAsset(path string, tag uint32, list []Chunk) Asset {
	var size uint64
	for _, chunk := range list {
		size += uint64(chunk.Size)
	}
	return Asset{Path: path, Size: size, Permissions: 0o644, Tag: tag, Chunks: list}
}

func buildVersion(t *testing.T, assets ...Asset) *VersionIndex {
	t.Helper()
	version, err := BuildVersionIndex(testHasher(t), 24576, assets)
	require.NoError(t, err)
	require.NoError(t, version.Check())
	return version
}

// memoryFiles is a map-backed FileReader and FileWriter.
type memoryFiles map[string][]byte

func (m memoryFiles) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, errno.Wrap(errno.ENOENT, "%s", path)
	}
	return data, nil
}

func (m memoryFiles) WriteFile(path string, data []byte) error {
	m[path] = append([]byte(nil), data...)
	return nil
}
