// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockstore defines the block store contract and the layers
// that compose into a store chain.
//
// Every operation is asynchronous: it returns immediately and calls
// its completion function exactly once, either inline on the calling
// goroutine or later from another goroutine. Callers that want to
// block use the Sync helpers in this package.
//
// A typical download chain, outermost first:
//
//	Retain → Share → LRU → Compress → Cache(local FS, remote FS)
//
// Retain sits above the layers that collapse requests so it sees every
// announced fetch.
//
// Layers own their backing stores: closing the outermost layer drains
// and closes the whole chain.
package blockstore

import (
	"log/slog"
	"sync"

	"github.com/bureau-foundation/longtail/lib/index"
)

// BlockStore stores content-addressed blocks.
type BlockStore interface {
	// PutStoredBlock persists block. Putting a block whose hash is
	// already stored or being stored succeeds without a second write.
	// done is not called before the block is durable for this layer.
	PutStoredBlock(block *index.StoredBlock, done func(error))

	// PreflightGet announces upcoming fetches. refCounts, parallel to
	// blockHashes, says how often each block will be fetched; it may
	// be nil. done receives the subset of blockHashes the store holds.
	// ENOTSUP means the store cannot answer and the caller should
	// proceed without the hint.
	PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error))

	// GetStoredBlock fetches a block. A block the store does not hold
	// reports ENOENT. The caller must Dispose the returned block.
	GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error))

	// GetExistingContent returns the part of the store index worth
	// fetching for chunkHashes: blocks where the requested chunks
	// make up at least minBlockUsagePercent of the block's bytes.
	GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error))

	// PruneBlocks deletes every block not in keepBlockHashes and
	// reports how many were removed.
	PruneBlocks(keepBlockHashes []uint64, done func(uint32, error))

	// Stats returns this layer's operation counters.
	Stats() Stats

	// Flush persists buffered index state. It is safe to call on a
	// clean store and more than once.
	Flush(done func(error))

	// Close waits for outstanding requests, flushes, and closes the
	// backing stores.
	Close() error
}

// Option configures a store layer.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	noMapping bool
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// waitList collects completion functions of concurrent requests for
// the same block. The owner guards it with its own mutex.
type waitList struct {
	waiting map[uint64][]func(*index.StoredBlock, error)
}

func newWaitList() waitList {
	return waitList{waiting: map[uint64][]func(*index.StoredBlock, error){}}
}

// join adds done to the list for hash and reports whether it is the
// first request, which must issue the fetch.
func (w *waitList) join(hash uint64, done func(*index.StoredBlock, error)) bool {
	waiters, inFlight := w.waiting[hash]
	w.waiting[hash] = append(waiters, done)
	return !inFlight
}

// take removes and returns the list for hash. Removal happens under
// the same lock acquisition as any join, so no late arrival is lost.
func (w *waitList) take(hash uint64) []func(*index.StoredBlock, error) {
	waiters := w.waiting[hash]
	delete(w.waiting, hash)
	return waiters
}

func failAll(waiters []func(*index.StoredBlock, error), err error) {
	for _, done := range waiters {
		done(nil, err)
	}
}

// pending counts requests a layer has issued to its backing store.
type pending struct {
	group sync.WaitGroup
}

// track wraps a completion function so the request counts as pending
// until it fires.
func track[T any](p *pending, done func(T, error)) func(T, error) {
	p.group.Add(1)
	return func(value T, err error) {
		defer p.group.Done()
		done(value, err)
	}
}

func trackErr(p *pending, done func(error)) func(error) {
	p.group.Add(1)
	return func(err error) {
		defer p.group.Done()
		done(err)
	}
}

func (p *pending) wait() {
	p.group.Wait()
}
