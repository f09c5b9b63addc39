// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import "sync/atomic"

// Stat names one operation counter.
type Stat int

const (
	StatGetStoredBlockCount Stat = iota
	StatGetStoredBlockRetryCount
	StatGetStoredBlockFailCount
	StatGetStoredBlockChunkCount
	StatGetStoredBlockByteCount

	StatPutStoredBlockCount
	StatPutStoredBlockRetryCount
	StatPutStoredBlockFailCount
	StatPutStoredBlockChunkCount
	StatPutStoredBlockByteCount

	StatGetExistingContentCount
	StatGetExistingContentRetryCount
	StatGetExistingContentFailCount

	StatPreflightGetCount
	StatPreflightGetRetryCount
	StatPreflightGetFailCount

	StatPruneBlocksCount
	StatPruneBlocksRetryCount
	StatPruneBlocksFailCount

	StatFlushCount
	StatFlushFailCount

	StatGetStatsCount

	statCount
)

var statNames = [statCount]string{
	"get_stored_block_count",
	"get_stored_block_retry_count",
	"get_stored_block_fail_count",
	"get_stored_block_chunk_count",
	"get_stored_block_byte_count",
	"put_stored_block_count",
	"put_stored_block_retry_count",
	"put_stored_block_fail_count",
	"put_stored_block_chunk_count",
	"put_stored_block_byte_count",
	"get_existing_content_count",
	"get_existing_content_retry_count",
	"get_existing_content_fail_count",
	"preflight_get_count",
	"preflight_get_retry_count",
	"preflight_get_fail_count",
	"prune_blocks_count",
	"prune_blocks_retry_count",
	"prune_blocks_fail_count",
	"flush_count",
	"flush_fail_count",
	"get_stats_count",
}

func (s Stat) String() string {
	if s < 0 || s >= statCount {
		return "unknown"
	}
	return statNames[s]
}

// Stats is a snapshot of a layer's counters, indexed by Stat.
type Stats [statCount]uint64

// Map returns the non-zero counters keyed by name.
func (s Stats) Map() map[string]uint64 {
	result := make(map[string]uint64)
	for i, value := range s {
		if value != 0 {
			result[Stat(i).String()] = value
		}
	}
	return result
}

// Add returns the element-wise sum of s and other.
func (s Stats) Add(other Stats) Stats {
	for i := range s {
		s[i] += other[i]
	}
	return s
}

type counters struct {
	values [statCount]atomic.Uint64
}

func (c *counters) add(stat Stat, delta uint64) {
	c.values[stat].Add(delta)
}

func (c *counters) inc(stat Stat) {
	c.values[stat].Add(1)
}

// snapshot counts itself as a GetStats call.
func (c *counters) snapshot() Stats {
	c.inc(StatGetStatsCount)
	var stats Stats
	for i := range stats {
		stats[i] = c.values[i].Load()
	}
	return stats
}
