// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// span copies size bytes from blockOffset in a block to fileOffset in
// an asset.
type span struct {
	blockOffset uint64
	fileOffset  uint64
	size        uint32
}

// fetch is one block retrieval while writing an asset. Consecutive
// chunks of an asset held by the same block share a fetch.
type fetch struct {
	block int
	spans []span
}

// planAsset lists the fetches that reconstruct asset of version from
// the blocks located by locations.
func planAsset(version *index.VersionIndex, asset int, locations map[uint64]index.ChunkLocation) ([]fetch, error) {
	var fetches []fetch
	var fileOffset uint64
	for _, position := range version.AssetChunks(asset) {
		hash := version.ChunkHashes[position]
		location, ok := locations[hash]
		if !ok {
			return nil, errno.Wrap(errno.EINVAL, "chunk 0x%016x of %q is missing from the store", hash, version.AssetPaths[asset])
		}
		if location.Size != version.ChunkSizes[position] {
			return nil, errno.Wrap(errno.EINVAL, "chunk 0x%016x of %q is %d bytes in the store but %d in the version",
				hash, version.AssetPaths[asset], location.Size, version.ChunkSizes[position])
		}
		piece := span{blockOffset: location.Offset, fileOffset: fileOffset, size: location.Size}
		if last := len(fetches) - 1; last >= 0 && fetches[last].block == location.Block {
			fetches[last].spans = append(fetches[last].spans, piece)
		} else {
			fetches = append(fetches, fetch{block: location.Block, spans: []span{piece}})
		}
		fileOffset += uint64(location.Size)
	}
	return fetches, nil
}

// WriteVersion writes every asset of version below root, fetching
// chunk data through store. content locates the chunks in blocks.
func WriteVersion(ctx context.Context, store blockstore.BlockStore, content *index.StoreIndex, fs storage.Storage, root string, version *index.VersionIndex, opts ...Option) error {
	empty := &index.VersionIndex{HashIdentifier: version.HashIdentifier, TargetChunkSize: version.TargetChunkSize}
	diff, err := index.CreateVersionDiff(version, empty)
	if err != nil {
		return fmt.Errorf("writing version to %s: %w", root, err)
	}
	return ChangeVersion(ctx, store, content, fs, root, empty, version, diff, opts...)
}

// ChangeVersion turns the directory root, which holds source, into
// target. Removed assets are deleted (files before their
// directories), added and content-modified assets are written, and
// permissions are updated when retained. Assets equal in both
// versions are not touched.
func ChangeVersion(ctx context.Context, store blockstore.BlockStore, content *index.StoreIndex, fs storage.Storage, root string, source, target *index.VersionIndex, diff *index.VersionDiff, opts ...Option) error {
	o := buildOptions(opts)

	var writes []int
	for _, asset := range diff.TargetAdded {
		if !target.IsDir(int(asset)) {
			writes = append(writes, int(asset))
		}
	}
	for _, asset := range diff.TargetContentModified {
		writes = append(writes, int(asset))
	}

	// Plan before touching the directory so a store that cannot
	// reconstruct the target fails without side effects.
	locations := content.ChunkLocations()
	plans := make([][]fetch, len(writes))
	references := map[int]uint32{}
	for k, asset := range writes {
		fetches, err := planAsset(target, asset, locations)
		if err != nil {
			return fmt.Errorf("changing version of %s: %w", root, err)
		}
		plans[k] = fetches
		for _, f := range fetches {
			references[f.block]++
		}
	}
	if err := preflight(store, content, references); err != nil {
		return fmt.Errorf("changing version of %s: %w", root, err)
	}

	if err := removeAssets(ctx, fs, root, source, diff.SourceRemoved, o); err != nil {
		return err
	}

	for _, asset := range diff.TargetAdded {
		if !target.IsDir(int(asset)) {
			continue
		}
		path := joinPath(root, strings.TrimSuffix(target.AssetPaths[asset], "/"))
		if err := fs.MkdirAll(path); err != nil {
			return fmt.Errorf("changing version of %s: %w", root, err)
		}
	}

	err := o.scheduler.Run(ctx, uint32(len(writes)), func(ctx context.Context, k uint32) error {
		return writeAsset(store, content, fs, joinPath(root, target.AssetPaths[writes[k]]), plans[k])
	})
	if err != nil {
		return fmt.Errorf("changing version of %s: %w", root, err)
	}

	if o.retainPermissions {
		if err := applyPermissions(fs, root, target, diff); err != nil {
			return fmt.Errorf("changing version of %s: %w", root, err)
		}
	}

	var written uint64
	for _, asset := range writes {
		written += target.AssetSizes[asset]
	}
	o.logger.Info("changed version",
		"root", root,
		"removed", len(diff.SourceRemoved),
		"added", len(diff.TargetAdded),
		"modified", len(diff.TargetContentModified),
		"written", humanize.IBytes(written))
	return nil
}

// preflight announces how often each block will be fetched. Stores
// that cannot preflight are skipped over.
func preflight(store blockstore.BlockStore, content *index.StoreIndex, references map[int]uint32) error {
	if len(references) == 0 {
		return nil
	}
	blocks := make([]int, 0, len(references))
	for block := range references {
		blocks = append(blocks, block)
	}
	sort.Ints(blocks)
	hashes := make([]uint64, len(blocks))
	counts := make([]uint32, len(blocks))
	for i, block := range blocks {
		hashes[i] = content.BlockHashes[block]
		counts[i] = references[block]
	}
	if _, err := blockstore.PreflightGetSync(store, hashes, counts); err != nil && !errors.Is(err, errno.ENOTSUP) {
		return err
	}
	return nil
}

// removeAssets deletes the listed source assets in order. Missing
// paths are already gone; a directory that still has untracked
// content is left in place.
func removeAssets(ctx context.Context, fs storage.Storage, root string, source *index.VersionIndex, assets []uint32, o options) error {
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("removing assets from %s: %w (%w)", root, errno.ECANCELED, err)
		}
		path := source.AssetPaths[asset]
		var err error
		if source.IsDir(int(asset)) {
			err = fs.RemoveDir(joinPath(root, strings.TrimSuffix(path, "/")))
		} else {
			err = fs.Remove(joinPath(root, path))
		}
		switch {
		case err == nil, errors.Is(err, errno.ENOENT):
		case source.IsDir(int(asset)) && errors.Is(err, errno.EEXIST):
			o.logger.Warn("keeping directory with untracked content", "path", path)
		default:
			return fmt.Errorf("removing %s from %s: %w", path, root, err)
		}
	}
	return nil
}

// writeAsset creates path and fills it from the planned fetches.
func writeAsset(store blockstore.BlockStore, content *index.StoreIndex, fs storage.Storage, path string, fetches []fetch) (err error) {
	writer, err := fs.OpenWrite(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing %s: %w", path, closeErr)
		}
	}()

	for _, f := range fetches {
		blockHash := content.BlockHashes[f.block]
		block, err := blockstore.GetStoredBlockSync(store, blockHash)
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		err = copySpans(writer, block, f.spans)
		block.Dispose()
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func copySpans(writer storage.Writer, block *index.StoredBlock, spans []span) error {
	for _, piece := range spans {
		end := piece.blockOffset + uint64(piece.size)
		if end > uint64(len(block.Data)) {
			return errno.Wrap(errno.EBADF, "block 0x%016x holds %d bytes, chunk ends at %d",
				block.Index.BlockHash, len(block.Data), end)
		}
		if _, err := writer.WriteAt(block.Data[piece.blockOffset:end], int64(piece.fileOffset)); err != nil {
			return err
		}
	}
	return nil
}

// applyPermissions sets the recorded permissions of written and
// permission-modified assets. Directories go last, deepest first, so
// a read-only directory does not block changes inside it.
func applyPermissions(fs storage.Storage, root string, target *index.VersionIndex, diff *index.VersionDiff) error {
	assets := make([]uint32, 0, len(diff.TargetAdded)+len(diff.TargetContentModified)+len(diff.TargetPermissionsModified))
	assets = append(assets, diff.TargetAdded...)
	assets = append(assets, diff.TargetContentModified...)
	assets = append(assets, diff.TargetPermissionsModified...)

	var directories []uint32
	for _, asset := range assets {
		if target.IsDir(int(asset)) {
			directories = append(directories, asset)
			continue
		}
		if err := chmod(fs, root, target, asset); err != nil {
			return err
		}
	}
	sort.SliceStable(directories, func(i, j int) bool {
		return strings.Count(target.AssetPaths[directories[i]], "/") > strings.Count(target.AssetPaths[directories[j]], "/")
	})
	for _, asset := range directories {
		if err := chmod(fs, root, target, asset); err != nil {
			return err
		}
	}
	return nil
}

func chmod(fs storage.Storage, root string, target *index.VersionIndex, asset uint32) error {
	permissions := target.Permissions[asset]
	if permissions == 0 {
		return nil
	}
	return fs.Chmod(joinPath(root, strings.TrimSuffix(target.AssetPaths[asset], "/")), permissions)
}
