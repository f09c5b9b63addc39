// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"github.com/bureau-foundation/longtail/lib/errno"
)

// ValidateContent checks that store can reconstruct every asset of
// version: each referenced chunk must be present with the same size.
// The first missing chunk stops the check with EINVAL.
func ValidateContent(store *StoreIndex, version *VersionIndex) error {
	if store.BlockCount() > 0 && version.AssetCount() > 0 && store.HashIdentifier != version.HashIdentifier {
		return errno.Wrap(errno.EINVAL, "store uses hash 0x%08x but version uses 0x%08x", store.HashIdentifier, version.HashIdentifier)
	}
	locations := store.ChunkLocations()
	for asset, path := range version.AssetPaths {
		for _, position := range version.AssetChunks(asset) {
			hash := version.ChunkHashes[position]
			location, ok := locations[hash]
			if !ok {
				return errno.Wrap(errno.EINVAL, "chunk 0x%016x of %q is missing from the store", hash, path)
			}
			if location.Size != version.ChunkSizes[position] {
				return errno.Wrap(errno.EINVAL, "chunk 0x%016x of %q is %d bytes in the store but %d in the version",
					hash, path, location.Size, version.ChunkSizes[position])
			}
		}
	}
	return nil
}

// MissingChunks returns the chunks of version that store lacks, in
// version order.
func MissingChunks(store *StoreIndex, version *VersionIndex) []uint64 {
	locations := store.ChunkLocations()
	var missing []uint64
	for _, hash := range version.ChunkHashes {
		if _, ok := locations[hash]; !ok {
			missing = append(missing, hash)
		}
	}
	return missing
}
