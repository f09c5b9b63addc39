// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
)

// CacheStore reads through a local store to a remote one. A block
// missing locally is fetched from remote and written to local before
// the caller sees it; a failed local write is logged and does not
// fail the fetch. Puts go to remote and, best effort, to local.
// Index queries and pruning are answered by remote.
type CacheStore struct {
	local   BlockStore
	remote  BlockStore
	options options
	stats   counters
	pending pending
}

// NewCacheStore layers local in front of remote.
func NewCacheStore(local, remote BlockStore, opts ...Option) *CacheStore {
	return &CacheStore{local: local, remote: remote, options: buildOptions(opts)}
}

var _ BlockStore = (*CacheStore)(nil)

func (s *CacheStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	s.remote.PutStoredBlock(block, trackErr(&s.pending, func(err error) {
		if err != nil {
			s.stats.inc(StatPutStoredBlockFailCount)
			done(err)
			return
		}
		s.local.PutStoredBlock(block, trackErr(&s.pending, func(err error) {
			if err != nil {
				s.options.logger.Warn("caching put block locally",
					"block", fmt.Sprintf("0x%016x", block.Index.BlockHash), "error", err)
			}
			done(nil)
		}))
	}))
}

func (s *CacheStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	s.remote.PreflightGet(blockHashes, refCounts, track(&s.pending, done))
}

func (s *CacheStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)
	s.local.GetStoredBlock(blockHash, track(&s.pending, func(block *index.StoredBlock, err error) {
		if err == nil {
			s.delivered(block)
			done(block, nil)
			return
		}
		if !errors.Is(err, errno.ENOENT) {
			s.options.logger.Warn("reading cached block",
				"block", fmt.Sprintf("0x%016x", blockHash), "error", err)
		}
		s.stats.inc(StatGetStoredBlockRetryCount)
		s.remote.GetStoredBlock(blockHash, track(&s.pending, func(block *index.StoredBlock, err error) {
			if err != nil {
				s.stats.inc(StatGetStoredBlockFailCount)
				done(nil, err)
				return
			}
			s.local.PutStoredBlock(block, trackErr(&s.pending, func(err error) {
				if err != nil {
					s.options.logger.Warn("caching fetched block",
						"block", fmt.Sprintf("0x%016x", blockHash), "error", err)
				}
				s.delivered(block)
				done(block, nil)
			}))
		}))
	}))
}

func (s *CacheStore) delivered(block *index.StoredBlock) {
	s.stats.add(StatGetStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
	s.stats.add(StatGetStoredBlockByteCount, uint64(len(block.Data)))
}

func (s *CacheStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	s.remote.GetExistingContent(chunkHashes, minBlockUsagePercent, track(&s.pending, done))
}

// PruneBlocks prunes both tiers and reports the remote count.
func (s *CacheStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.remote.PruneBlocks(keepBlockHashes, track(&s.pending, func(removed uint32, err error) {
		if err != nil {
			s.stats.inc(StatPruneBlocksFailCount)
			done(removed, err)
			return
		}
		s.local.PruneBlocks(keepBlockHashes, track(&s.pending, func(_ uint32, err error) {
			if err != nil {
				s.options.logger.Warn("pruning cache", "error", err)
			}
			done(removed, nil)
		}))
	}))
}

func (s *CacheStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *CacheStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	s.local.Flush(trackErr(&s.pending, func(localErr error) {
		s.remote.Flush(trackErr(&s.pending, func(remoteErr error) {
			err := errors.Join(localErr, remoteErr)
			if err != nil {
				s.stats.inc(StatFlushFailCount)
			}
			done(err)
		}))
	}))
}

func (s *CacheStore) Close() error {
	s.pending.wait()
	return errors.Join(s.local.Close(), s.remote.Close())
}
