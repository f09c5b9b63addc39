// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/bureau-foundation/longtail/lib/blockstore"
	"github.com/bureau-foundation/longtail/lib/codec"
)

// layer is one named element of a store chain.
type layer struct {
	name  string
	store blockstore.BlockStore
}

// chain is a composed block store. top is the most recently added
// layer and owns every other one: closing it closes the chain.
type chain struct {
	top    blockstore.BlockStore
	layers []layer
}

func (c *chain) add(name string, store blockstore.BlockStore) blockstore.BlockStore {
	c.layers = append(c.layers, layer{name: name, store: store})
	c.top = store
	return store
}

func (c *chain) Close() error {
	return c.top.Close()
}

// stats returns the non-zero counters of every layer keyed by layer
// name.
func (c *chain) stats() map[string]map[string]uint64 {
	report := make(map[string]map[string]uint64, len(c.layers))
	for _, l := range c.layers {
		report[l.name] = l.store.Stats().Map()
	}
	return report
}

// backing returns FS(store), or Cache(FS(cache), FS(store)) when a
// cache path is configured. threaded puts the remote store behind a
// worker pool.
func (e *environment) backing(c *chain, storageURI string, threaded bool) error {
	root, err := storePath(storageURI)
	if err != nil {
		return err
	}
	options := blockstore.WithLogger(e.logger)
	remote := c.add("remote", blockstore.NewFSStore(e.fs, root, e.scheduler, options))
	if threaded {
		remote = c.add("threaded", blockstore.NewThreadedStore(remote,
			e.config.Workers.StoreThreads, e.config.Workers.StoreQueueCapacity, options))
	}
	if e.config.Cache.Path == "" {
		return nil
	}
	local := c.add("local", blockstore.NewFSStore(e.fs, e.config.Cache.Path, e.scheduler, options))
	c.add("cache", blockstore.NewCacheStore(local, remote, options))
	return nil
}

// uploadChain is Compress → [Cache(local FS) →] FS. A cached upload
// also seeds the local cache.
func (e *environment) uploadChain(storageURI string) (*chain, error) {
	c := &chain{}
	if err := e.backing(c, storageURI, false); err != nil {
		return nil, err
	}
	c.add("compress", blockstore.NewCompressStore(c.top, blockstore.WithLogger(e.logger)))
	return c, nil
}

// downloadChain is Retain → Share → LRU → Compress → [Cache(local
// FS) →] Threaded → FS. Blocks with preflighted repeat fetches are
// pinned outside the LRU; concurrent writers share decoded blocks.
func (e *environment) downloadChain(storageURI string) (*chain, error) {
	c := &chain{}
	if err := e.backing(c, storageURI, true); err != nil {
		return nil, err
	}
	options := blockstore.WithLogger(e.logger)
	c.add("compress", blockstore.NewCompressStore(c.top, options))
	c.add("lru", blockstore.NewLRUStore(c.top, e.lruCapacity(), options))
	c.add("share", blockstore.NewShareStore(c.top, options))
	c.add("retain", blockstore.NewRetainStore(c.top, options))
	return c, nil
}

// lruCapacity is the configured capacity, raised to the job count.
// Each writing job holds at most one block at a time.
func (e *environment) lruCapacity() int {
	capacity := e.config.Cache.LRUCapacity
	if workers := e.scheduler.Workers(); workers > capacity {
		e.logger.Debug("raising LRU capacity to job count", "configured", capacity, "jobs", workers)
		capacity = workers
	}
	return capacity
}

// writeStats stores the chain's counters as CBOR at path. An empty
// path does nothing.
func (e *environment) writeStats(path string, c *chain) error {
	report := c.stats()
	e.logger.Debug("store statistics", "layers", report)
	if path == "" {
		return nil
	}
	target, err := localPath("stats-output", path)
	if err != nil {
		return err
	}
	return codec.WriteFile(e.fs, target, report)
}
