// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage is the file access layer under the block stores
// and the snapshot writer. Paths are slash separated on every
// platform; the filesystem implementation converts them at the
// boundary.
//
// Two implementations exist: [FS] for the local filesystem and
// [Memory] for tests. Memory enforces the conflict rules a real
// filesystem only sometimes reports, so tests exercise the error
// paths deterministically.
package storage

import (
	"io"
	"sync"
)

// Reader is a file opened for positional reads.
type Reader interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Writer is a file opened for positional writes.
type Writer interface {
	io.WriterAt
	io.Closer
}

// Entry describes one file or directory.
type Entry struct {
	// Path is relative to the walk root for Walk results and as
	// given for Stat results.
	Path        string
	Size        int64
	IsDir       bool
	Permissions uint16
}

// Storage is the file API the rest of longtail is written against.
type Storage interface {
	// OpenRead opens an existing file.
	OpenRead(path string) (Reader, error)

	// OpenWrite creates or truncates a file, creating parent
	// directories as needed.
	OpenWrite(path string) (Writer, error)

	// ReadFile returns the whole content of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces a file atomically: readers observe either
	// the old or the new content, never a mix.
	WriteFile(path string, data []byte) error

	// Rename moves source to target. An existing target reports
	// EEXIST.
	Rename(source, target string) error

	// Remove deletes a file.
	Remove(path string) error

	// RemoveDir deletes an empty directory.
	RemoveDir(path string) error

	// MkdirAll creates a directory and its parents.
	MkdirAll(path string) error

	// Stat describes path. A missing path reports ENOENT.
	Stat(path string) (Entry, error)

	// Chmod sets permission bits.
	Chmod(path string, permissions uint16) error

	// Walk visits every file and directory below root in lexical
	// order, parents before children. Entry paths are relative to
	// root. A missing root reports ENOENT.
	Walk(root string, visit func(Entry) error) error

	// Lock takes an exclusive lock named by path, blocking until it
	// is available. On the filesystem the lock is held across
	// processes.
	Lock(path string) (*Lock, error)

	// Map maps length bytes of a file starting at offset into
	// memory. Implementations without mapping report ENOTSUP and
	// callers fall back to OpenRead.
	Map(path string, offset, length int64) (*Mapping, error)
}

// Lock is a held exclusive lock.
type Lock struct {
	once    sync.Once
	release func() error
	err     error
}

// Unlock releases the lock. Later calls return the first result.
func (l *Lock) Unlock() error {
	l.once.Do(func() { l.err = l.release() })
	return l.err
}

// Mapping is a read-only view of part of a file.
type Mapping struct {
	Data []byte

	once    sync.Once
	release func() error
	err     error
}

// Close unmaps the view. Data must not be used afterwards.
func (m *Mapping) Close() error {
	m.once.Do(func() {
		if m.release != nil {
			m.err = m.release()
		}
		m.Data = nil
	})
	return m.err
}
