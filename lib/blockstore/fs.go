// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/jobs"
	"github.com/bureau-foundation/longtail/lib/storage"
)

const (
	// BlockExtension is the file extension of stored blocks.
	BlockExtension = ".lrb"

	// StoreIndexName is the store index file at the store root.
	StoreIndexName = "store.lsi"

	storeLockName = "store.lsi.lock"
	chunksDir     = "chunks"
)

// BlockPath returns the path of a block relative to the store root:
// chunks/<first four hex digits>/0x<sixteen hex digits>.lrb.
func BlockPath(blockHash uint64) string {
	name := fmt.Sprintf("0x%016x%s", blockHash, BlockExtension)
	return path.Join(chunksDir, name[2:6], name)
}

type blockState uint8

const (
	blockWriting blockState = iota + 1
	blockComplete
)

// FSStore keeps blocks as files under a root directory and maintains
// a store index file beside them.
//
// The index is loaded on first use: read from store.lsi when present,
// otherwise rebuilt by parsing every block header in parallel. Blocks
// put since the last flush are kept in memory and merged into
// store.lsi by Flush under a cross-process lock.
type FSStore struct {
	storage storage.Storage
	root    string
	jobs    *jobs.Scheduler
	options options
	suffix  string
	stats   counters

	loads singleflight.Group

	mu     sync.Mutex
	states map[uint64]blockState
	loaded *index.StoreIndex
	added  []index.BlockIndex
}

// NewFSStore opens the store rooted at root. scheduler runs the
// header scan when no store index exists.
func NewFSStore(fs storage.Storage, root string, scheduler *jobs.Scheduler, opts ...Option) *FSStore {
	return &FSStore{
		storage: fs,
		root:    strings.TrimSuffix(root, "/"),
		jobs:    scheduler,
		options: buildOptions(opts),
		suffix:  uuid.NewString(),
		states:  map[uint64]blockState{},
	}
}

var _ BlockStore = (*FSStore)(nil)

func (s *FSStore) path(relative string) string {
	if s.root == "" {
		return relative
	}
	return s.root + "/" + relative
}

func (s *FSStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	blockHash := block.Index.BlockHash

	s.mu.Lock()
	if _, busy := s.states[blockHash]; busy {
		s.mu.Unlock()
		done(nil)
		return
	}
	if s.loaded != nil {
		if _, ok := s.loaded.BlockLookup()[blockHash]; ok {
			s.states[blockHash] = blockComplete
			s.mu.Unlock()
			done(nil)
			return
		}
	}
	s.states[blockHash] = blockWriting
	s.mu.Unlock()

	data := block.Marshal()
	err := s.writeBlock(blockHash, data)
	if err != nil {
		s.stats.inc(StatPutStoredBlockRetryCount)
		s.options.logger.Warn("retrying block write", "block", fmt.Sprintf("0x%016x", blockHash), "error", err)
		err = s.writeBlock(blockHash, data)
	}

	s.mu.Lock()
	if err != nil {
		delete(s.states, blockHash)
	} else {
		s.states[blockHash] = blockComplete
		s.added = append(s.added, block.Index)
	}
	s.mu.Unlock()

	if err != nil {
		s.stats.inc(StatPutStoredBlockFailCount)
		done(fmt.Errorf("putting block 0x%016x: %w", blockHash, err))
		return
	}
	s.stats.add(StatPutStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
	s.stats.add(StatPutStoredBlockByteCount, uint64(len(data)))
	done(nil)
}

// writeBlock writes data to a temporary sibling and renames it into
// place. Losing a rename race to another writer is success: the
// content is identified by its hash.
func (s *FSStore) writeBlock(blockHash uint64, data []byte) error {
	target := s.path(BlockPath(blockHash))
	temporary := target + "." + s.suffix
	if err := s.storage.WriteFile(temporary, data); err != nil {
		return err
	}
	err := s.storage.Rename(temporary, target)
	if errors.Is(err, errno.EEXIST) {
		if removeErr := s.storage.Remove(temporary); removeErr != nil {
			s.options.logger.Warn("removing temporary block", "path", temporary, "error", removeErr)
		}
		return nil
	}
	return err
}

func (s *FSStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	current, err := s.snapshot()
	if err != nil {
		s.stats.inc(StatPreflightGetFailCount)
		done(nil, err)
		return
	}
	lookup := current.BlockLookup()
	present := make([]uint64, 0, len(blockHashes))
	for _, hash := range blockHashes {
		if _, ok := lookup[hash]; ok {
			present = append(present, hash)
		}
	}
	done(present, nil)
}

func (s *FSStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
	s.stats.inc(StatGetStoredBlockCount)
	block, err := s.readBlock(blockHash)
	if err != nil {
		s.stats.inc(StatGetStoredBlockFailCount)
		done(nil, err)
		return
	}
	s.stats.add(StatGetStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
	s.stats.add(StatGetStoredBlockByteCount, uint64(len(block.Data)))
	done(block, nil)
}

func (s *FSStore) readBlock(blockHash uint64) (*index.StoredBlock, error) {
	data, err := s.storage.ReadFile(s.path(BlockPath(blockHash)))
	if err != nil {
		return nil, fmt.Errorf("getting block 0x%016x: %w", blockHash, err)
	}
	block, err := index.ParseStoredBlock(data, nil)
	if err != nil {
		return nil, fmt.Errorf("getting block 0x%016x: %w", blockHash, err)
	}
	if block.Index.BlockHash != blockHash {
		return nil, errno.Wrap(errno.EBADF, "getting block 0x%016x: file holds block 0x%016x", blockHash, block.Index.BlockHash)
	}
	return block, nil
}

func (s *FSStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	current, err := s.snapshot()
	if err == nil {
		current, err = index.GetExistingStoreIndex(current, chunkHashes, minBlockUsagePercent)
	}
	if err != nil {
		s.stats.inc(StatGetExistingContentFailCount)
		done(nil, fmt.Errorf("getting existing content: %w", err))
		return
	}
	done(current, nil)
}

func (s *FSStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	removed, err := s.prune(keepBlockHashes)
	if err != nil {
		s.stats.inc(StatPruneBlocksFailCount)
		done(removed, fmt.Errorf("pruning blocks: %w", err))
		return
	}
	done(removed, nil)
}

func (s *FSStore) prune(keepBlockHashes []uint64) (uint32, error) {
	lock, err := s.storage.Lock(s.path(storeLockName))
	if err != nil {
		return 0, err
	}
	defer lock.Unlock()

	full, err := s.mergeWithDisk()
	if err != nil {
		return 0, err
	}
	kept, err := index.PruneStoreIndex(full, keepBlockHashes)
	if err != nil {
		return 0, err
	}
	keep := kept.BlockLookup()

	var removed uint32
	for _, hash := range full.BlockHashes {
		if _, ok := keep[hash]; ok {
			continue
		}
		err := s.storage.Remove(s.path(BlockPath(hash)))
		if err != nil && !errors.Is(err, errno.ENOENT) {
			return removed, err
		}
		removed++
		s.mu.Lock()
		delete(s.states, hash)
		s.mu.Unlock()
	}
	if err := index.WriteStoreIndex(s.storage, s.path(StoreIndexName), kept); err != nil {
		return removed, err
	}
	s.mu.Lock()
	s.loaded = kept
	s.mu.Unlock()
	s.options.logger.Debug("pruned block store", "root", s.root, "removed", removed, "kept", kept.BlockCount())
	return removed, nil
}

func (s *FSStore) Stats() Stats {
	return s.stats.snapshot()
}

func (s *FSStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	if err := s.flush(); err != nil {
		s.stats.inc(StatFlushFailCount)
		done(fmt.Errorf("flushing store index: %w", err))
		return
	}
	done(nil)
}

func (s *FSStore) flush() error {
	s.mu.Lock()
	dirty := len(s.added) > 0
	s.mu.Unlock()
	if !dirty {
		return nil
	}

	lock, err := s.storage.Lock(s.path(storeLockName))
	if err != nil {
		return err
	}
	defer lock.Unlock()

	merged, err := s.mergeWithDisk()
	if err != nil {
		return err
	}
	if err := index.WriteStoreIndex(s.storage, s.path(StoreIndexName), merged); err != nil {
		return err
	}
	s.options.logger.Debug("flushed store index", "root", s.root, "blocks", merged.BlockCount())
	return nil
}

// mergeWithDisk reads the on-disk index (scanning when it is absent),
// merges the blocks added since the last flush, and installs the
// result as the loaded index. Callers hold the store lock.
func (s *FSStore) mergeWithDisk() (*index.StoreIndex, error) {
	onDisk, err := s.readOrScan()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	added := s.added
	s.mu.Unlock()

	addedIndex, err := index.NewStoreIndex(added)
	if err != nil {
		return nil, err
	}
	merged, err := index.MergeStoreIndex(onDisk, addedIndex)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loaded = merged
	s.added = s.added[len(added):]
	s.mu.Unlock()
	return merged, nil
}

// snapshot returns the loaded index with the unflushed blocks merged
// in.
func (s *FSStore) snapshot() (*index.StoreIndex, error) {
	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	added := append([]index.BlockIndex(nil), s.added...)
	s.mu.Unlock()
	if len(added) == 0 {
		return loaded, nil
	}
	addedIndex, err := index.NewStoreIndex(added)
	if err != nil {
		return nil, err
	}
	return index.MergeStoreIndex(loaded, addedIndex)
}

// load returns the loaded index, reading or scanning it once.
// Concurrent first calls share one load.
func (s *FSStore) load() (*index.StoreIndex, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded != nil {
		return loaded, nil
	}
	value, err, _ := s.loads.Do("index", func() (any, error) {
		s.mu.Lock()
		loaded := s.loaded
		s.mu.Unlock()
		if loaded != nil {
			return loaded, nil
		}
		current, err := s.readOrScan()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.loaded == nil {
			s.loaded = current
		}
		current = s.loaded
		s.mu.Unlock()
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*index.StoreIndex), nil
}

func (s *FSStore) readOrScan() (*index.StoreIndex, error) {
	current, err := index.ReadStoreIndex(s.storage, s.path(StoreIndexName))
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, errno.ENOENT) {
		return nil, err
	}
	return s.scan()
}

// scan rebuilds the store index from the block headers under chunks/.
// Files that fail to parse are skipped with a warning.
func (s *FSStore) scan() (*index.StoreIndex, error) {
	var files []string
	err := s.storage.Walk(s.path(chunksDir), func(entry storage.Entry) error {
		if !entry.IsDir && strings.HasSuffix(entry.Path, BlockExtension) {
			files = append(files, s.path(chunksDir+"/"+entry.Path))
		}
		return nil
	})
	if errors.Is(err, errno.ENOENT) {
		return index.NewStoreIndex(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning blocks: %w", err)
	}

	blocks := make([]index.BlockIndex, len(files))
	valid := make([]bool, len(files))
	err = s.jobs.Run(context.Background(), uint32(len(files)), func(_ context.Context, i uint32) error {
		block, err := readBlockHeader(s.storage, files[i])
		if err != nil {
			s.options.logger.Warn("skipping unreadable block", "path", files[i], "error", err)
			return nil
		}
		blocks[i] = block
		valid[i] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning blocks: %w", err)
	}

	kept := blocks[:0]
	for i, block := range blocks {
		if valid[i] {
			kept = append(kept, block)
		}
	}
	s.options.logger.Debug("rebuilt store index", "root", s.root, "blocks", len(kept))
	return index.NewStoreIndex(kept)
}

// readBlockHeader reads only the manifest of a block file.
func readBlockHeader(fs storage.Storage, name string) (index.BlockIndex, error) {
	reader, err := fs.OpenRead(name)
	if err != nil {
		return index.BlockIndex{}, err
	}
	defer reader.Close()

	fixed := make([]byte, index.BlockHeaderSize(0))
	if _, err := reader.ReadAt(fixed, 0); err != nil {
		return index.BlockIndex{}, errno.Wrap(errno.EBADF, "reading header of %s: %v", name, err)
	}
	chunkCount := int(binary.LittleEndian.Uint32(fixed[12:16]))
	size := int64(index.BlockHeaderSize(chunkCount))
	if chunkCount == 0 || size > reader.Size() {
		return index.BlockIndex{}, errno.Wrap(errno.EBADF, "reading header of %s: %d chunks do not fit %d bytes", name, chunkCount, reader.Size())
	}
	header := make([]byte, size)
	if _, err := reader.ReadAt(header, 0); err != nil && !errors.Is(err, io.EOF) {
		return index.BlockIndex{}, err
	}
	block, _, err := index.ParseBlockIndex(header)
	return block, err
}

func (s *FSStore) Close() error {
	if err := s.flush(); err != nil {
		return fmt.Errorf("closing block store %s: %w", s.root, err)
	}
	return nil
}
