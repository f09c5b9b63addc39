// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"slices"
	"sort"
	"strings"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// VersionDiff lists what changes between a source version (what is on
// disk) and a target version (what should be). Index values refer to
// asset positions in the respective version.
type VersionDiff struct {
	// SourceRemoved are source assets absent from the target, deepest
	// paths first so that files go before their directories.
	SourceRemoved []uint32
	// TargetAdded are target assets absent from the source, parents
	// before children.
	TargetAdded []uint32
	// SourceContentModified[k] and TargetContentModified[k] are the
	// same path with a different chunk list.
	SourceContentModified []uint32
	TargetContentModified []uint32
	// SourcePermissionsModified[k] and TargetPermissionsModified[k]
	// are the same path with different permissions.
	SourcePermissionsModified []uint32
	TargetPermissionsModified []uint32
}

// Empty reports whether the versions are identical.
func (d *VersionDiff) Empty() bool {
	return len(d.SourceRemoved) == 0 && len(d.TargetAdded) == 0 &&
		len(d.SourceContentModified) == 0 && len(d.SourcePermissionsModified) == 0
}

// CreateVersionDiff compares versions by path. An asset present in
// both with a different ordered chunk list is modified. Directory
// paths carry a trailing slash, so an asset that switched between
// file and directory shows up as removed and re-added.
func CreateVersionDiff(target, source *VersionIndex) (*VersionDiff, error) {
	if target.HashIdentifier != source.HashIdentifier && target.AssetCount() > 0 && source.AssetCount() > 0 {
		return nil, errno.Wrap(errno.EINVAL, "cannot diff versions hashed with 0x%08x and 0x%08x", target.HashIdentifier, source.HashIdentifier)
	}
	diff := &VersionDiff{}
	targetLookup := target.Lookup()
	sourceLookup := source.Lookup()

	for sourceAsset, path := range source.AssetPaths {
		targetAsset, ok := targetLookup[path]
		if !ok {
			diff.SourceRemoved = append(diff.SourceRemoved, uint32(sourceAsset))
			continue
		}
		if !sameContent(target, targetAsset, source, sourceAsset) {
			diff.SourceContentModified = append(diff.SourceContentModified, uint32(sourceAsset))
			diff.TargetContentModified = append(diff.TargetContentModified, uint32(targetAsset))
		}
		if target.Permissions[targetAsset] != source.Permissions[sourceAsset] {
			diff.SourcePermissionsModified = append(diff.SourcePermissionsModified, uint32(sourceAsset))
			diff.TargetPermissionsModified = append(diff.TargetPermissionsModified, uint32(targetAsset))
		}
	}
	for targetAsset, path := range target.AssetPaths {
		if _, ok := sourceLookup[path]; !ok {
			diff.TargetAdded = append(diff.TargetAdded, uint32(targetAsset))
		}
	}

	sort.SliceStable(diff.SourceRemoved, func(i, j int) bool {
		return removalBefore(source.AssetPaths[diff.SourceRemoved[i]], source.AssetPaths[diff.SourceRemoved[j]])
	})
	sort.SliceStable(diff.TargetAdded, func(i, j int) bool {
		return target.AssetPaths[diff.TargetAdded[i]] < target.AssetPaths[diff.TargetAdded[j]]
	})
	return diff, nil
}

// removalBefore orders deeper paths first, then reverse
// lexicographic, so a directory is removed after everything inside.
func removalBefore(a, b string) bool {
	depthA := strings.Count(strings.TrimSuffix(a, "/"), "/")
	depthB := strings.Count(strings.TrimSuffix(b, "/"), "/")
	if depthA != depthB {
		return depthA > depthB
	}
	return a > b
}

func sameContent(target *VersionIndex, targetAsset int, source *VersionIndex, sourceAsset int) bool {
	if target.AssetSizes[targetAsset] != source.AssetSizes[sourceAsset] {
		return false
	}
	if target.ContentHashes[targetAsset] != source.ContentHashes[sourceAsset] {
		return false
	}
	return slices.Equal(target.AssetChunkHashes(targetAsset), source.AssetChunkHashes(sourceAsset))
}

// GetRequiredChunkHashes returns the unique chunks of target needed
// to apply diff: those of added and content-modified assets.
func GetRequiredChunkHashes(target *VersionIndex, diff *VersionDiff) []uint64 {
	seen := map[uint64]struct{}{}
	var required []uint64
	collect := func(asset uint32) {
		for _, position := range target.AssetChunks(int(asset)) {
			hash := target.ChunkHashes[position]
			if _, ok := seen[hash]; ok {
				continue
			}
			seen[hash] = struct{}{}
			required = append(required, hash)
		}
	}
	for _, asset := range diff.TargetAdded {
		collect(asset)
	}
	for _, asset := range diff.TargetContentModified {
		collect(asset)
	}
	return required
}
