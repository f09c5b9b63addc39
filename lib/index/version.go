// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"strings"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
)

// VersionIndex describes one snapshot of a directory tree. Asset i
// is reconstructed by concatenating the chunks
// ChunkHashes[AssetChunkIndexes[AssetChunkIndexStarts[i]+k]] for k
// in [0, AssetChunkCounts[i]).
//
// Paths are slash separated and relative to the snapshot root.
// Directories carry a trailing slash and have no chunks.
type VersionIndex struct {
	HashIdentifier  uint32
	TargetChunkSize uint32

	AssetPaths            []string
	PathHashes            []uint64
	ContentHashes         []uint64
	AssetSizes            []uint64
	Permissions           []uint16
	AssetChunkCounts      []uint32
	AssetChunkIndexStarts []uint32
	AssetChunkIndexes     []uint32

	// Unique chunks referenced by the assets, in first-use order.
	ChunkHashes []uint64
	ChunkSizes  []uint32
	ChunkTags   []uint32
}

// Chunk is one chunk of an asset as produced by the chunker.
type Chunk struct {
	Hash uint64
	Size uint32
}

// Asset is the input for one entry of a version index.
type Asset struct {
	// Path is slash separated; directories end with a slash.
	Path        string
	Size        uint64
	Permissions uint16
	Tag         uint32
	Chunks      []Chunk
}

// IsDir reports whether the asset path names a directory.
func (a Asset) IsDir() bool { return strings.HasSuffix(a.Path, "/") }

// BuildVersionIndex assembles a version index from per-asset chunk
// lists. The chunk tag of a chunk shared by several assets is the
// tag of its first asset.
func BuildVersionIndex(hasher hashing.Hasher, targetChunkSize uint32, assets []Asset) (*VersionIndex, error) {
	if err := checkCount("asset", len(assets)); err != nil {
		return nil, err
	}
	version := &VersionIndex{
		HashIdentifier:        hasher.Identifier(),
		TargetChunkSize:       targetChunkSize,
		AssetPaths:            make([]string, len(assets)),
		PathHashes:            make([]uint64, len(assets)),
		ContentHashes:         make([]uint64, len(assets)),
		AssetSizes:            make([]uint64, len(assets)),
		Permissions:           make([]uint16, len(assets)),
		AssetChunkCounts:      make([]uint32, len(assets)),
		AssetChunkIndexStarts: make([]uint32, len(assets)),
	}
	chunkPositions := map[uint64]uint32{}
	paths := make(map[string]struct{}, len(assets))

	for i, asset := range assets {
		if asset.Path == "" || strings.HasPrefix(asset.Path, "/") {
			return nil, errno.Wrap(errno.EINVAL, "asset path %q must be relative and non-empty", asset.Path)
		}
		if _, duplicate := paths[asset.Path]; duplicate {
			return nil, errno.Wrap(errno.EINVAL, "asset path %q listed twice", asset.Path)
		}
		paths[asset.Path] = struct{}{}

		var total uint64
		hashes := make([]uint64, len(asset.Chunks))
		for k, chunk := range asset.Chunks {
			total += uint64(chunk.Size)
			hashes[k] = chunk.Hash
		}
		if asset.IsDir() && len(asset.Chunks) != 0 {
			return nil, errno.Wrap(errno.EINVAL, "directory %q has chunks", asset.Path)
		}
		if !asset.IsDir() && total != asset.Size {
			return nil, errno.Wrap(errno.EINVAL, "asset %q is %d bytes but its chunks sum to %d", asset.Path, asset.Size, total)
		}

		version.AssetPaths[i] = asset.Path
		version.PathHashes[i] = hasher.Sum64([]byte(asset.Path))
		version.ContentHashes[i] = hashing.SumUint64s(hasher, hashes...)
		version.AssetSizes[i] = asset.Size
		version.Permissions[i] = asset.Permissions
		version.AssetChunkCounts[i] = uint32(len(asset.Chunks))
		version.AssetChunkIndexStarts[i] = uint32(len(version.AssetChunkIndexes))

		for _, chunk := range asset.Chunks {
			position, known := chunkPositions[chunk.Hash]
			if !known {
				position = uint32(len(version.ChunkHashes))
				chunkPositions[chunk.Hash] = position
				version.ChunkHashes = append(version.ChunkHashes, chunk.Hash)
				version.ChunkSizes = append(version.ChunkSizes, chunk.Size)
				version.ChunkTags = append(version.ChunkTags, asset.Tag)
			} else if version.ChunkSizes[position] != chunk.Size {
				return nil, errno.Wrap(errno.EINVAL, "chunk 0x%016x appears with sizes %d and %d", chunk.Hash, version.ChunkSizes[position], chunk.Size)
			}
			version.AssetChunkIndexes = append(version.AssetChunkIndexes, position)
		}
		if err := checkCount("asset chunk index", len(version.AssetChunkIndexes)); err != nil {
			return nil, err
		}
	}
	return version, nil
}

// AssetCount returns the number of assets.
func (v *VersionIndex) AssetCount() int { return len(v.AssetPaths) }

// IsDir reports whether asset i is a directory.
func (v *VersionIndex) IsDir(asset int) bool { return strings.HasSuffix(v.AssetPaths[asset], "/") }

// AssetChunks returns the positions in ChunkHashes of asset i's
// chunks, in reconstruction order.
func (v *VersionIndex) AssetChunks(asset int) []uint32 {
	start := v.AssetChunkIndexStarts[asset]
	end := start + v.AssetChunkCounts[asset]
	return v.AssetChunkIndexes[start:end:end]
}

// AssetChunkHashes returns asset i's chunk hashes in order.
func (v *VersionIndex) AssetChunkHashes(asset int) []uint64 {
	positions := v.AssetChunks(asset)
	hashes := make([]uint64, len(positions))
	for k, position := range positions {
		hashes[k] = v.ChunkHashes[position]
	}
	return hashes
}

// Lookup maps asset path to asset position.
func (v *VersionIndex) Lookup() map[string]int {
	lookup := make(map[string]int, len(v.AssetPaths))
	for i, path := range v.AssetPaths {
		lookup[path] = i
	}
	return lookup
}

// TotalSize returns the summed size of every file asset.
func (v *VersionIndex) TotalSize() uint64 {
	var total uint64
	for _, size := range v.AssetSizes {
		total += size
	}
	return total
}

// Check verifies the structural invariants: parallel arrays agree,
// chunk references resolve, and each file's chunk sizes sum to its
// size.
func (v *VersionIndex) Check() error {
	assets := len(v.AssetPaths)
	for _, length := range []int{len(v.PathHashes), len(v.ContentHashes), len(v.AssetSizes), len(v.Permissions), len(v.AssetChunkCounts), len(v.AssetChunkIndexStarts)} {
		if length != assets {
			return errno.Wrap(errno.EBADF, "version index asset arrays disagree on length")
		}
	}
	if len(v.ChunkSizes) != len(v.ChunkHashes) || len(v.ChunkTags) != len(v.ChunkHashes) {
		return errno.Wrap(errno.EBADF, "version index chunk arrays disagree on length")
	}
	for i := range v.AssetPaths {
		end := uint64(v.AssetChunkIndexStarts[i]) + uint64(v.AssetChunkCounts[i])
		if end > uint64(len(v.AssetChunkIndexes)) {
			return errno.Wrap(errno.EBADF, "asset %q chunk range ends past the chunk index table", v.AssetPaths[i])
		}
		var total uint64
		for _, position := range v.AssetChunks(i) {
			if int(position) >= len(v.ChunkHashes) {
				return errno.Wrap(errno.EBADF, "asset %q references chunk %d of %d", v.AssetPaths[i], position, len(v.ChunkHashes))
			}
			total += uint64(v.ChunkSizes[position])
		}
		if v.IsDir(i) {
			if v.AssetChunkCounts[i] != 0 {
				return errno.Wrap(errno.EBADF, "directory %q has chunks", v.AssetPaths[i])
			}
		} else if total != v.AssetSizes[i] {
			return errno.Wrap(errno.EBADF, "asset %q is %d bytes but its chunks sum to %d", v.AssetPaths[i], v.AssetSizes[i], total)
		}
	}
	return nil
}

// MarshalBinary encodes the index as a .lvi file.
func (v *VersionIndex) MarshalBinary() ([]byte, error) {
	var encode encoder
	encode.magic(versionIndexMagic)
	v.encodeBody(&encode)
	return encode.buffer, nil
}

func (v *VersionIndex) encodeBody(encode *encoder) {
	encode.u32(v.HashIdentifier)
	encode.u32(v.TargetChunkSize)
	encode.u32(uint32(len(v.AssetPaths)))
	encode.u32(uint32(len(v.ChunkHashes)))
	encode.u32(uint32(len(v.AssetChunkIndexes)))
	encode.u64s(v.PathHashes)
	encode.u64s(v.ContentHashes)
	encode.u64s(v.AssetSizes)
	encode.u32s(v.AssetChunkCounts)
	encode.u32s(v.AssetChunkIndexStarts)
	encode.u32s(v.AssetChunkIndexes)
	encode.u64s(v.ChunkHashes)
	encode.u32s(v.ChunkSizes)
	encode.u32s(v.ChunkTags)
	encode.u16s(v.Permissions)
	for _, path := range v.AssetPaths {
		encode.str(path)
	}
}

// UnmarshalBinary decodes a .lvi file.
func (v *VersionIndex) UnmarshalBinary(data []byte) error {
	decode := decoder{data: data, what: "version index"}
	decode.magic(versionIndexMagic)
	v.decodeBody(&decode)
	if err := decode.finish(); err != nil {
		return err
	}
	return v.Check()
}

func (v *VersionIndex) decodeBody(decode *decoder) {
	v.HashIdentifier = decode.u32()
	v.TargetChunkSize = decode.u32()
	assetCount := decode.count(8 + 8 + 8 + 4 + 4 + 2 + 4)
	chunkCount := decode.count(0)
	chunkIndexCount := decode.count(4)
	v.PathHashes = decode.u64s(assetCount)
	v.ContentHashes = decode.u64s(assetCount)
	v.AssetSizes = decode.u64s(assetCount)
	v.AssetChunkCounts = decode.u32s(assetCount)
	v.AssetChunkIndexStarts = decode.u32s(assetCount)
	v.AssetChunkIndexes = decode.u32s(chunkIndexCount)
	if decode.err == nil && uint64(chunkCount)*16 > uint64(len(decode.data)) {
		decode.fail("chunk count %d exceeds remaining %d bytes", chunkCount, len(decode.data))
	}
	v.ChunkHashes = decode.u64s(chunkCount)
	v.ChunkSizes = decode.u32s(chunkCount)
	v.ChunkTags = decode.u32s(chunkCount)
	v.Permissions = decode.u16s(assetCount)
	v.AssetPaths = make([]string, assetCount)
	for i := range v.AssetPaths {
		v.AssetPaths[i] = decode.str()
	}
}
