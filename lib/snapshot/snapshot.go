// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot moves directory trees in and out of block stores.
//
// The upload direction scans a directory ([GetFilesRecursively]),
// chunks and hashes every file into a version index
// ([CreateVersionIndex]), and writes the blocks a store is missing
// ([UploadMissing], built on [WriteContent]). The download direction
// reassembles files from blocks: [WriteVersion] materializes a whole
// version into an empty directory and [ChangeVersion] updates a
// directory holding one version into another, touching only the
// assets that differ.
//
// All file access goes through [storage.Storage] and all block access
// through [blockstore.BlockStore], so the same code runs against the
// local filesystem, in-memory test storage, and archive files.
package snapshot

import (
	"log/slog"

	"github.com/bureau-foundation/longtail/lib/chunker"
	"github.com/bureau-foundation/longtail/lib/jobs"
)

// Option configures the operations of this package.
type Option func(*options)

type options struct {
	logger            *slog.Logger
	scheduler         *jobs.Scheduler
	pool              *chunker.Pool
	retainPermissions bool
}

// WithLogger sets the logger for progress and warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithScheduler runs the per-file and per-block work on scheduler.
// Without it a scheduler with one worker per CPU is used.
func WithScheduler(scheduler *jobs.Scheduler) Option {
	return func(o *options) {
		o.scheduler = scheduler
	}
}

// WithChunkerPool shares pooled chunkers across calls.
func WithChunkerPool(pool *chunker.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithRetainPermissions controls whether written assets get the
// permission bits recorded in the version index. It defaults to true.
func WithRetainPermissions(retain bool) Option {
	return func(o *options) {
		o.retainPermissions = retain
	}
}

func buildOptions(opts []Option) options {
	o := options{retainPermissions: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.scheduler == nil {
		o.scheduler = jobs.New(0, jobs.WithLogger(o.logger))
	}
	if o.pool == nil {
		o.pool = chunker.NewPool(0)
	}
	return o
}

// joinPath joins a slash separated relative path onto root.
func joinPath(root, relative string) string {
	if root == "" {
		return relative
	}
	return root + "/" + relative
}
