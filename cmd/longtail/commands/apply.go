// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"

	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/hashing"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/snapshot"
)

// indexDirectory describes what is currently below root, chunked the
// way version was so that unchanged files compare equal. A missing
// directory is an empty version.
func (e *environment) indexDirectory(ctx context.Context, root string, version *index.VersionIndex) (*index.VersionIndex, error) {
	empty := &index.VersionIndex{HashIdentifier: version.HashIdentifier, TargetChunkSize: version.TargetChunkSize}
	files, err := snapshot.GetFilesRecursively(ctx, e.fs, root)
	if errors.Is(err, errno.ENOENT) {
		return empty, nil
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return empty, nil
	}
	hasher, err := hashing.Lookup(version.HashIdentifier)
	if err != nil {
		return nil, err
	}
	chunking, err := e.chunking()
	if err != nil {
		return nil, err
	}
	chunking.Hasher = hasher
	chunking.TargetChunkSize = version.TargetChunkSize
	return snapshot.CreateVersionIndex(ctx, e.fs, root, files, chunking, e.snapshotOptions()...)
}

// applyVersion turns root into version using the blocks of store,
// touching only what differs.
func (e *environment) applyVersion(ctx context.Context, store blockstore.BlockStore, content *index.StoreIndex, root string, version *index.VersionIndex, retainPermissions bool) error {
	current, err := e.indexDirectory(ctx, root, version)
	if err != nil {
		return err
	}
	diff, err := index.CreateVersionDiff(version, current)
	if err != nil {
		return err
	}
	if diff.Empty() {
		e.logger.Info("already up to date", "target", root)
		return nil
	}
	return snapshot.ChangeVersion(ctx, store, content, e.fs, root, current, version, diff,
		e.snapshotOptions(snapshot.WithRetainPermissions(retainPermissions))...)
}
