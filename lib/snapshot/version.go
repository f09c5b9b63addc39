// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/bureau-foundation/longtail/lib/chunker"
	"github.com/bureau-foundation/longtail/lib/compression"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// Chunking selects how files are split and tagged.
type Chunking struct {
	Hasher          hashing.Hasher
	TargetChunkSize uint32

	// Compression is the codec for assets with no more specific
	// choice; see [compression.SelectForPath].
	Compression compression.Tag
}

// CreateVersionIndex chunks and hashes every file of files, read from
// below root, and returns the version index describing them. Files
// are processed in parallel on the configured scheduler.
func CreateVersionIndex(ctx context.Context, fs storage.Storage, root string, files []File, chunking Chunking, opts ...Option) (*index.VersionIndex, error) {
	o := buildOptions(opts)
	if chunking.Hasher == nil {
		return nil, errno.Wrap(errno.EINVAL, "creating version index: no hasher")
	}
	params := chunker.ParamsForTarget(chunking.TargetChunkSize)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("creating version index: %w", err)
	}

	assets := make([]index.Asset, len(files))
	var chunkCount atomic.Uint64
	err := o.scheduler.Run(ctx, uint32(len(files)), func(ctx context.Context, i uint32) error {
		file := files[i]
		assets[i] = index.Asset{
			Path:        file.Path,
			Size:        file.Size,
			Permissions: file.Permissions,
			Tag:         uint32(compression.SelectForPath(file.Path, chunking.Compression)),
		}
		if file.IsDir() || file.Size == 0 {
			return nil
		}
		chunks, err := chunkFile(ctx, fs, joinPath(root, file.Path), params, chunking.Hasher, o)
		if err != nil {
			return err
		}
		assets[i].Chunks = chunks
		chunkCount.Add(uint64(len(chunks)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating version index of %s: %w", root, err)
	}

	version, err := index.BuildVersionIndex(chunking.Hasher, chunking.TargetChunkSize, assets)
	if err != nil {
		return nil, fmt.Errorf("creating version index of %s: %w", root, err)
	}
	o.logger.Debug("indexed version",
		"root", root,
		"assets", version.AssetCount(),
		"chunks", chunkCount.Load(),
		"unique_chunks", len(version.ChunkHashes))
	return version, nil
}

// chunkFile splits one file into hashed chunks.
func chunkFile(ctx context.Context, fs storage.Storage, path string, params chunker.Params, hasher hashing.Hasher, o options) ([]index.Chunk, error) {
	reader, err := fs.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	splitter, err := o.pool.Get(params)
	if err != nil {
		return nil, err
	}
	defer o.pool.Put(splitter)

	feed := chunker.ReaderFeeder(io.NewSectionReader(reader, 0, reader.Size()))
	var chunks []index.Chunk
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chunking %s: %w (%w)", path, errno.ECANCELED, err)
		}
		chunk, err := splitter.Next(feed)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", path, err)
		}
		chunks = append(chunks, index.Chunk{
			Hash: hasher.Sum64(chunk.Data),
			Size: uint32(len(chunk.Data)),
		})
	}
	return chunks, nil
}
