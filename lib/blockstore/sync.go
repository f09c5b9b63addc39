// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"github.com/bureau-foundation/longtail/lib/index"
)

type result[T any] struct {
	value T
	err   error
}

// await runs call and blocks until its completion function fires.
func await[T any](call func(done func(T, error))) (T, error) {
	ch := make(chan result[T], 1)
	call(func(value T, err error) {
		ch <- result[T]{value: value, err: err}
	})
	r := <-ch
	return r.value, r.err
}

func awaitErr(call func(done func(error))) error {
	ch := make(chan error, 1)
	call(func(err error) { ch <- err })
	return <-ch
}

// PutStoredBlockSync puts block and waits for the result.
func PutStoredBlockSync(store BlockStore, block *index.StoredBlock) error {
	return awaitErr(func(done func(error)) { store.PutStoredBlock(block, done) })
}

// GetStoredBlockSync fetches a block and waits for it.
func GetStoredBlockSync(store BlockStore, blockHash uint64) (*index.StoredBlock, error) {
	return await(func(done func(*index.StoredBlock, error)) { store.GetStoredBlock(blockHash, done) })
}

// PreflightGetSync announces fetches and waits for the present subset.
func PreflightGetSync(store BlockStore, blockHashes []uint64, refCounts []uint32) ([]uint64, error) {
	return await(func(done func([]uint64, error)) { store.PreflightGet(blockHashes, refCounts, done) })
}

// GetExistingContentSync queries the store index and waits.
func GetExistingContentSync(store BlockStore, chunkHashes []uint64, minBlockUsagePercent uint32) (*index.StoreIndex, error) {
	return await(func(done func(*index.StoreIndex, error)) {
		store.GetExistingContent(chunkHashes, minBlockUsagePercent, done)
	})
}

// PruneBlocksSync prunes and waits for the removed count.
func PruneBlocksSync(store BlockStore, keepBlockHashes []uint64) (uint32, error) {
	return await(func(done func(uint32, error)) { store.PruneBlocks(keepBlockHashes, done) })
}

// FlushSync flushes and waits.
func FlushSync(store BlockStore) error {
	return awaitErr(store.Flush)
}
