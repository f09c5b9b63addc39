// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/index"
	"github.com/bureau-foundation/longtail/lib/storage"
)

// Archive file layout:
//
//	[index length u64][archive index][zero padding][blocks]
//
// The block region starts at the first multiple of archiveAlignment
// after the index. Block offsets in the archive index are relative to
// the block region.
const archiveAlignment = 4096

func archiveDataStart(indexLength int) int64 {
	end := int64(8 + indexLength)
	return (end + archiveAlignment - 1) &^ (archiveAlignment - 1)
}

// ArchiveStore keeps a whole version and the blocks it needs in one
// file. An archive is created in write mode by CreateArchive, which
// fixes the set of blocks up front, and read by OpenArchive.
type ArchiveStore struct {
	path    string
	options options
	stats   counters

	archive   *index.ArchiveIndex
	lookup    map[uint64]int
	dataStart int64

	// Write mode.
	writer  storage.Writer
	writeMu sync.Mutex
	next    uint64
	written []bool

	// Read mode.
	reader  storage.Reader
	mapping *storage.Mapping
	access  []atomic.Uint64
}

// WithoutMapping makes OpenArchive read blocks with positional reads
// instead of memory-mapping the block region.
func WithoutMapping() Option {
	return func(o *options) {
		o.noMapping = true
	}
}

// CreateArchive starts an archive at path holding version and the
// blocks of store. Every block of store must be put before Close.
func CreateArchive(fs storage.Storage, path string, store *index.StoreIndex, version *index.VersionIndex, opts ...Option) (*ArchiveStore, error) {
	archive := &index.ArchiveIndex{
		Store:        *store,
		Version:      *version,
		BlockOffsets: make([]uint64, store.BlockCount()),
		BlockSizes:   make([]uint32, store.BlockCount()),
	}
	encoded, err := archive.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("creating archive %s: %w", path, err)
	}
	writer, err := fs.OpenWrite(path)
	if err != nil {
		return nil, fmt.Errorf("creating archive %s: %w", path, err)
	}
	return &ArchiveStore{
		path:      path,
		options:   buildOptions(opts),
		archive:   archive,
		lookup:    store.BlockLookup(),
		dataStart: archiveDataStart(len(encoded)),
		writer:    writer,
		written:   make([]bool, store.BlockCount()),
	}, nil
}

// OpenArchive opens an archive for reading. The block region is
// memory-mapped unless WithoutMapping is given or the storage cannot
// map, in which case blocks are read with positional reads.
func OpenArchive(fs storage.Storage, path string, opts ...Option) (*ArchiveStore, error) {
	reader, err := fs.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	archive, dataStart, err := readArchiveIndex(reader)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	s := &ArchiveStore{
		path:      path,
		options:   buildOptions(opts),
		archive:   archive,
		lookup:    archive.Store.BlockLookup(),
		dataStart: dataStart,
		reader:    reader,
		access:    make([]atomic.Uint64, archive.Store.BlockCount()),
	}
	if !s.options.noMapping && reader.Size() > dataStart {
		mapping, err := fs.Map(path, dataStart, reader.Size()-dataStart)
		switch {
		case err == nil:
			s.mapping = mapping
		case errors.Is(err, errno.ENOTSUP):
			s.options.logger.Debug("archive mapping unsupported, using reads", "path", path)
		default:
			s.options.logger.Warn("mapping archive, using reads", "path", path, "error", err)
		}
	}
	return s, nil
}

func readArchiveIndex(reader storage.Reader) (*index.ArchiveIndex, int64, error) {
	var prefix [8]byte
	if _, err := reader.ReadAt(prefix[:], 0); err != nil {
		return nil, 0, errno.Wrap(errno.EBADF, "reading archive header: %v", err)
	}
	length := binary.LittleEndian.Uint64(prefix[:])
	if length > uint64(reader.Size()-8) {
		return nil, 0, errno.Wrap(errno.EBADF, "archive index of %d bytes exceeds file size %d", length, reader.Size())
	}
	encoded := make([]byte, length)
	if _, err := reader.ReadAt(encoded, 8); err != nil {
		return nil, 0, errno.Wrap(errno.EBADF, "reading archive index: %v", err)
	}
	var archive index.ArchiveIndex
	if err := archive.UnmarshalBinary(encoded); err != nil {
		return nil, 0, err
	}
	if err := archive.Check(); err != nil {
		return nil, 0, err
	}
	dataStart := archiveDataStart(len(encoded))
	for i, offset := range archive.BlockOffsets {
		if dataStart+int64(offset)+int64(archive.BlockSizes[i]) > reader.Size() {
			return nil, 0, errno.Wrap(errno.EBADF, "archive block %d lies beyond the end of the file", i)
		}
	}
	return &archive, dataStart, nil
}

var _ BlockStore = (*ArchiveStore)(nil)

// Index returns the archive index. In write mode block offsets are
// final only after Close.
func (s *ArchiveStore) Index() *index.ArchiveIndex {
	return s.archive
}

func (s *ArchiveStore) PutStoredBlock(block *index.StoredBlock, done func(error)) {
	s.stats.inc(StatPutStoredBlockCount)
	blockHash := block.Index.BlockHash
	slot, ok := s.lookup[blockHash]
	if s.writer == nil {
		if ok {
			done(nil)
			return
		}
		s.stats.inc(StatPutStoredBlockFailCount)
		done(errno.Wrap(errno.ENOTSUP, "putting block 0x%016x into read-only archive", blockHash))
		return
	}
	if !ok {
		s.stats.inc(StatPutStoredBlockFailCount)
		done(errno.Wrap(errno.EINVAL, "putting block 0x%016x: not part of archive %s", blockHash, s.path))
		return
	}

	data := block.Marshal()
	s.writeMu.Lock()
	if s.written[slot] {
		s.writeMu.Unlock()
		done(nil)
		return
	}
	s.written[slot] = true
	offset := s.next
	s.next += uint64(len(data))
	s.writeMu.Unlock()

	if _, err := s.writer.WriteAt(data, s.dataStart+int64(offset)); err != nil {
		s.writeMu.Lock()
		s.written[slot] = false
		s.writeMu.Unlock()
		s.stats.inc(StatPutStoredBlockFailCount)
		done(fmt.Errorf("writing block 0x%016x to archive %s: %w", blockHash, s.path, err))
		return
	}

	s.writeMu.Lock()
	s.archive.BlockOffsets[slot] = offset
	s.archive.BlockSizes[slot] = uint32(len(data))
	s.writeMu.Unlock()
	s.stats.add(StatPutStoredBlockChunkCount, uint64(block.Index.ChunkCount()))
	s.stats.add(StatPutStoredBlockByteCount, uint64(len(data)))
	done(nil)
}

func (s *ArchiveStore) PreflightGet(blockHashes []uint64, refCounts []uint32, done func([]uint64, error)) {
	s.stats.inc(StatPreflightGetCount)
	present := make([]uint64, 0, len(blockHashes))
	for _, hash := range blockHashes {
		if _, ok := s.lookup[hash]; ok {
			present = append(present, hash)
		}
	}
	done(present, nil)
}

func (s *ArchiveStore) GetStoredBlock(blockHash uint64, done func(*index.StoredBlock, error)) {
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

func (s *ArchiveStore) readBlock(blockHash uint64) (*index.StoredBlock, error) {
	if s.reader == nil {
		return nil, errno.Wrap(errno.ENOTSUP, "getting block 0x%016x from archive being written", blockHash)
	}
	slot, ok := s.lookup[blockHash]
	if !ok {
		return nil, errno.Wrap(errno.ENOENT, "getting block 0x%016x from archive %s", blockHash, s.path)
	}
	s.access[slot].Add(1)

	offset := int64(s.archive.BlockOffsets[slot])
	size := int64(s.archive.BlockSizes[slot])
	var raw []byte
	if s.mapping != nil {
		raw = s.mapping.Data[offset : offset+size : offset+size]
	} else {
		raw = make([]byte, size)
		if _, err := s.reader.ReadAt(raw, s.dataStart+offset); err != nil {
			return nil, fmt.Errorf("reading block 0x%016x from archive %s: %w", blockHash, s.path, err)
		}
	}
	block, err := index.ParseStoredBlock(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("reading block 0x%016x from archive %s: %w", blockHash, s.path, err)
	}
	if block.Index.BlockHash != blockHash {
		return nil, errno.Wrap(errno.EBADF, "archive %s holds block 0x%016x where 0x%016x belongs", s.path, block.Index.BlockHash, blockHash)
	}
	return block, nil
}

// BlockAccess is the number of times a block was fetched.
type BlockAccess struct {
	BlockHash uint64
	Count     uint64
}

// WorstOffenders returns up to limit blocks fetched more than once,
// most fetched first. Repeated fetches of one block during a single
// extraction indicate a missing cache layer.
func (s *ArchiveStore) WorstOffenders(limit int) []BlockAccess {
	var offenders []BlockAccess
	for slot := range s.access {
		count := s.access[slot].Load()
		if count > 1 {
			offenders = append(offenders, BlockAccess{BlockHash: s.archive.Store.BlockHashes[slot], Count: count})
		}
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Count != offenders[j].Count {
			return offenders[i].Count > offenders[j].Count
		}
		return offenders[i].BlockHash < offenders[j].BlockHash
	})
	if len(offenders) > limit {
		offenders = offenders[:limit]
	}
	return offenders
}

func (s *ArchiveStore) GetExistingContent(chunkHashes []uint64, minBlockUsagePercent uint32, done func(*index.StoreIndex, error)) {
	s.stats.inc(StatGetExistingContentCount)
	existing, err := index.GetExistingStoreIndex(&s.archive.Store, chunkHashes, minBlockUsagePercent)
	if err != nil {
		s.stats.inc(StatGetExistingContentFailCount)
	}
	done(existing, err)
}

func (s *ArchiveStore) PruneBlocks(keepBlockHashes []uint64, done func(uint32, error)) {
	s.stats.inc(StatPruneBlocksCount)
	s.stats.inc(StatPruneBlocksFailCount)
	done(0, errno.Wrap(errno.ENOTSUP, "pruning archive %s", s.path))
}

func (s *ArchiveStore) Stats() Stats {
	return s.stats.snapshot()
}

// Flush writes the archive index in write mode and does nothing in
// read mode.
func (s *ArchiveStore) Flush(done func(error)) {
	s.stats.inc(StatFlushCount)
	if err := s.writeIndex(); err != nil {
		s.stats.inc(StatFlushFailCount)
		done(err)
		return
	}
	done(nil)
}

func (s *ArchiveStore) writeIndex() error {
	if s.writer == nil {
		return nil
	}
	s.writeMu.Lock()
	encoded, err := s.archive.MarshalBinary()
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding archive index: %w", err)
	}
	header := make([]byte, 8+len(encoded))
	binary.LittleEndian.PutUint64(header, uint64(len(encoded)))
	copy(header[8:], encoded)
	if _, err := s.writer.WriteAt(header, 0); err != nil {
		return fmt.Errorf("writing archive index to %s: %w", s.path, err)
	}
	return nil
}

// Close finishes the archive. In write mode it writes the index and
// reports EINVAL if any block was never put.
func (s *ArchiveStore) Close() error {
	if s.writer != nil {
		err := s.writeIndex()
		missing := 0
		for _, written := range s.written {
			if !written {
				missing++
			}
		}
		if err == nil && missing > 0 {
			err = errno.Wrap(errno.EINVAL, "archive %s is missing %d of %d blocks", s.path, missing, len(s.written))
		}
		return errors.Join(err, s.writer.Close())
	}
	var mapErr error
	if s.mapping != nil {
		mapErr = s.mapping.Close()
	}
	return errors.Join(mapErr, s.reader.Close())
}
