// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// Packing bounds the blocks built for upload.
type Packing struct {
	MaxBlockSize      uint32
	MaxChunksPerBlock uint32

	// MinBlockUsagePercent is how much of an existing block must be
	// wanted before it is reused instead of repacking its chunks.
	MinBlockUsagePercent uint32
}

// chunkSource is where the bytes of a chunk can be read.
type chunkSource struct {
	path   string
	offset uint64
	size   uint32
}

// chunkSources maps every chunk of version to its first occurrence.
func chunkSources(version *index.VersionIndex) map[uint64]chunkSource {
	sources := make(map[uint64]chunkSource, len(version.ChunkHashes))
	for asset, path := range version.AssetPaths {
		var offset uint64
		for _, position := range version.AssetChunks(asset) {
			hash := version.ChunkHashes[position]
			size := version.ChunkSizes[position]
			if _, ok := sources[hash]; !ok {
				sources[hash] = chunkSource{path: path, offset: offset, size: size}
			}
			offset += uint64(size)
		}
	}
	return sources
}

// WriteContent builds every block of content from the files of
// version below root and puts it into store. Chunks are re-hashed as
// they are read; a file that changed since it was indexed fails with
// EINVAL.
func WriteContent(ctx context.Context, fs storage.Storage, root string, store blockstore.BlockStore, content *index.ContentIndex, version *index.VersionIndex, opts ...Option) error {
	o := buildOptions(opts)
	if content.BlockCount() == 0 {
		return nil
	}
	hasher, err := hashing.Lookup(version.HashIdentifier)
	if err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	sources := chunkSources(version)

	err = o.scheduler.Run(ctx, uint32(content.BlockCount()), func(ctx context.Context, i uint32) error {
		block := content.Block(int(i))
		data, err := readBlockData(fs, root, block, sources, hasher)
		if err != nil {
			return err
		}
		return blockstore.PutStoredBlockSync(store, index.NewStoredBlock(block, data, nil))
	})
	if err != nil {
		return fmt.Errorf("writing content of %s: %w", root, err)
	}
	var written uint64
	for i := range content.BlockCount() {
		written += content.Block(i).DataSize()
	}
	o.logger.Info("wrote blocks",
		"root", root,
		"blocks", content.BlockCount(),
		"size", humanize.IBytes(written))
	return nil
}

// readBlockData assembles the payload of block from source files.
func readBlockData(fs storage.Storage, root string, block index.BlockIndex, sources map[uint64]chunkSource, hasher hashing.Hasher) ([]byte, error) {
	data := make([]byte, block.DataSize())
	readers := map[string]storage.Reader{}
	defer func() {
		for _, reader := range readers {
			reader.Close()
		}
	}()

	var offset uint64
	for k, hash := range block.ChunkHashes {
		size := block.ChunkSizes[k]
		source, ok := sources[hash]
		if !ok {
			return nil, errno.Wrap(errno.EINVAL, "block 0x%016x: chunk 0x%016x is not part of the version", block.BlockHash, hash)
		}
		if source.size != size {
			return nil, errno.Wrap(errno.EINVAL, "block 0x%016x: chunk 0x%016x is %d bytes in the block but %d in the version",
				block.BlockHash, hash, size, source.size)
		}
		reader, ok := readers[source.path]
		if !ok {
			var err error
			reader, err = fs.OpenRead(joinPath(root, source.path))
			if err != nil {
				return nil, err
			}
			readers[source.path] = reader
		}
		chunk := data[offset : offset+uint64(size)]
		count, err := reader.ReadAt(chunk, int64(source.offset))
		if count < len(chunk) {
			if err == nil || err == io.EOF {
				err = errno.Wrap(errno.EINVAL, "%s shrank since it was indexed", source.path)
			}
			return nil, fmt.Errorf("reading chunk 0x%016x from %s: %w", hash, source.path, err)
		}
		if hasher.Sum64(chunk) != hash {
			return nil, errno.Wrap(errno.EINVAL, "chunk 0x%016x of %s changed since it was indexed", hash, source.path)
		}
		offset += uint64(size)
	}
	return data, nil
}

// UploadMissing writes the blocks store needs to hold version and
// flushes store. It returns the content that was written, which is
// empty when store already had everything.
func UploadMissing(ctx context.Context, fs storage.Storage, root string, store blockstore.BlockStore, version *index.VersionIndex, packing Packing, opts ...Option) (*index.ContentIndex, error) {
	o := buildOptions(opts)
	hasher, err := hashing.Lookup(version.HashIdentifier)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", root, err)
	}
	existing, err := blockstore.GetExistingContentSync(store, version.ChunkHashes, packing.MinBlockUsagePercent)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", root, err)
	}
	missing, err := index.CreateMissingContent(hasher, existing, version, packing.MaxBlockSize, packing.MaxChunksPerBlock)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", root, err)
	}
	o.logger.Debug("planned upload",
		"root", root,
		"existing_blocks", existing.BlockCount(),
		"missing_blocks", missing.BlockCount(),
		"missing_chunks", missing.ChunkCount())

	if err := WriteContent(ctx, fs, root, store, missing, version, opts...); err != nil {
		return nil, err
	}
	if err := blockstore.FlushSync(store); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", root, err)
	}
	return missing, nil
}
