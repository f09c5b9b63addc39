// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// Memory is Storage held in process memory. It is strict about
// conflicting handles: opening a file for write while any handle is
// open reports EPERM, and opening for read while a writer is open
// reports EACCES.
type Memory struct {
	mu          sync.Mutex
	files       map[string]*memoryFile
	directories map[string]uint16
	locks       map[string]*sync.Mutex
}

type memoryFile struct {
	data        []byte
	permissions uint16
	readers     int
	writing     bool
}

// NewMemory returns empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{
		files:       map[string]*memoryFile{},
		directories: map[string]uint16{},
		locks:       map[string]*sync.Mutex{},
	}
}

var _ Storage = (*Memory)(nil)

func clean(name string) string {
	cleaned := path.Clean("/" + name)
	return strings.TrimPrefix(cleaned, "/")
}

// addParents records every ancestor directory of name. Callers hold mu.
func (m *Memory) addParents(name string) {
	for dir := path.Dir(name); dir != "." && dir != ""; dir = path.Dir(dir) {
		if _, ok := m.directories[dir]; ok {
			return
		}
		m.directories[dir] = 0o755
	}
}

type memoryReader struct {
	storage *Memory
	name    string
	data    []byte
	once    sync.Once
}

func (r *memoryReader) ReadAt(buffer []byte, offset int64) (int, error) {
	return readAt(r.data, buffer, offset)
}

func (r *memoryReader) Size() int64 { return int64(len(r.data)) }

func (r *memoryReader) Close() error {
	r.once.Do(func() {
		r.storage.mu.Lock()
		defer r.storage.mu.Unlock()
		if file, ok := r.storage.files[r.name]; ok && file.readers > 0 {
			file.readers--
		}
	})
	return nil
}

type memoryWriter struct {
	storage *Memory
	name    string
	file    *memoryFile
	closed  bool
}

func (w *memoryWriter) WriteAt(data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errno.Wrap(errno.EINVAL, "writing %s at negative offset %d", w.name, offset)
	}
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	if w.closed {
		return 0, errno.Wrap(errno.EINVAL, "writing %s after close", w.name)
	}
	end := int(offset) + len(data)
	if end > len(w.file.data) {
		grown := make([]byte, end)
		copy(grown, w.file.data)
		w.file.data = grown
	}
	copy(w.file.data[offset:], data)
	return len(data), nil
}

func (w *memoryWriter) Close() error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.file.writing = false
	}
	return nil
}

func (m *Memory) OpenRead(name string) (Reader, error) {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[name]
	if !ok {
		return nil, errno.Wrap(errno.ENOENT, "opening %s", name)
	}
	if file.writing {
		return nil, errno.Wrap(errno.EACCES, "opening %s: open for write", name)
	}
	file.readers++
	// Writers are refused while readers are open and WriteFile swaps
	// in a fresh slice, so the snapshot stays valid.
	return &memoryReader{storage: m, name: name, data: file.data}, nil
}

func (m *Memory) OpenWrite(name string) (Writer, error) {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, isDir := m.directories[name]; isDir {
		return nil, errno.Wrap(errno.EINVAL, "opening %s for write: is a directory", name)
	}
	file, ok := m.files[name]
	if ok && (file.writing || file.readers > 0) {
		return nil, errno.Wrap(errno.EPERM, "opening %s for write: already open", name)
	}
	if !ok {
		file = &memoryFile{permissions: 0o644}
		m.files[name] = file
		m.addParents(name)
	}
	file.data = nil
	file.writing = true
	return &memoryWriter{storage: m, name: name, file: file}, nil
}

func (m *Memory) ReadFile(name string) ([]byte, error) {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[name]
	if !ok {
		return nil, errno.Wrap(errno.ENOENT, "reading %s", name)
	}
	if file.writing {
		return nil, errno.Wrap(errno.EACCES, "reading %s: open for write", name)
	}
	return append([]byte(nil), file.data...), nil
}

func (m *Memory) WriteFile(name string, data []byte) error {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, isDir := m.directories[name]; isDir {
		return errno.Wrap(errno.EINVAL, "writing %s: is a directory", name)
	}
	file, ok := m.files[name]
	if ok && file.writing {
		return errno.Wrap(errno.EPERM, "writing %s: open for write", name)
	}
	if !ok {
		file = &memoryFile{permissions: 0o644}
		m.files[name] = file
		m.addParents(name)
	}
	// A fresh slice keeps open readers on the old content.
	file.data = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Rename(source, target string) error {
	source, target = clean(source), clean(target)
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[source]
	if !ok {
		return errno.Wrap(errno.ENOENT, "renaming %s", source)
	}
	if file.writing || file.readers > 0 {
		return errno.Wrap(errno.EPERM, "renaming %s: open", source)
	}
	if _, exists := m.files[target]; exists {
		return errno.Wrap(errno.EEXIST, "renaming onto %s", target)
	}
	if _, exists := m.directories[target]; exists {
		return errno.Wrap(errno.EEXIST, "renaming onto %s", target)
	}
	delete(m.files, source)
	m.files[target] = file
	m.addParents(target)
	return nil
}

func (m *Memory) Remove(name string) error {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[name]
	if !ok {
		return errno.Wrap(errno.ENOENT, "removing %s", name)
	}
	if file.writing || file.readers > 0 {
		return errno.Wrap(errno.EPERM, "removing %s: open", name)
	}
	delete(m.files, name)
	return nil
}

func (m *Memory) RemoveDir(name string) error {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.directories[name]; !ok {
		return errno.Wrap(errno.ENOENT, "removing directory %s", name)
	}
	prefix := name + "/"
	for other := range m.files {
		if strings.HasPrefix(other, prefix) {
			return errno.Wrap(errno.EEXIST, "removing directory %s: not empty", name)
		}
	}
	for other := range m.directories {
		if strings.HasPrefix(other, prefix) {
			return errno.Wrap(errno.EEXIST, "removing directory %s: not empty", name)
		}
	}
	delete(m.directories, name)
	return nil
}

func (m *Memory) MkdirAll(name string) error {
	name = clean(name)
	if name == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, isFile := m.files[name]; isFile {
		return errno.Wrap(errno.EEXIST, "creating directory %s: file exists", name)
	}
	if _, ok := m.directories[name]; !ok {
		m.directories[name] = 0o755
	}
	m.addParents(name)
	return nil
}

func (m *Memory) Stat(name string) (Entry, error) {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if file, ok := m.files[name]; ok {
		return Entry{Path: name, Size: int64(len(file.data)), Permissions: file.permissions}, nil
	}
	if permissions, ok := m.directories[name]; ok || name == "" {
		if name == "" {
			permissions = 0o755
		}
		return Entry{Path: name, IsDir: true, Permissions: permissions}, nil
	}
	return Entry{}, errno.Wrap(errno.ENOENT, "stating %s", name)
}

func (m *Memory) Chmod(name string, permissions uint16) error {
	name = clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if file, ok := m.files[name]; ok {
		file.permissions = permissions
		return nil
	}
	if _, ok := m.directories[name]; ok {
		m.directories[name] = permissions
		return nil
	}
	return errno.Wrap(errno.ENOENT, "changing mode of %s", name)
}

func (m *Memory) Walk(root string, visit func(Entry) error) error {
	root = clean(root)
	m.mu.Lock()
	if _, ok := m.directories[root]; !ok && root != "" {
		m.mu.Unlock()
		return errno.Wrap(errno.ENOENT, "walking %s", root)
	}
	prefix := ""
	if root != "" {
		prefix = root + "/"
	}
	var entries []Entry
	for name, file := range m.files {
		if strings.HasPrefix(name, prefix) {
			entries = append(entries, Entry{Path: name[len(prefix):], Size: int64(len(file.data)), Permissions: file.permissions})
		}
	}
	for name, permissions := range m.directories {
		if strings.HasPrefix(name, prefix) {
			entries = append(entries, Entry{Path: name[len(prefix):], IsDir: true, Permissions: permissions})
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, entry := range entries {
		if err := visit(entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Lock(name string) (*Lock, error) {
	name = clean(name)
	m.mu.Lock()
	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return &Lock{release: func() error {
		lock.Unlock()
		return nil
	}}, nil
}

// Map is not supported; callers fall back to OpenRead.
func (m *Memory) Map(name string, offset, length int64) (*Mapping, error) {
	return nil, errno.Wrap(errno.ENOTSUP, "mapping %s", clean(name))
}

// readAt implements io.ReaderAt over data.
func readAt(data, buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errno.Wrap(errno.EINVAL, "negative read offset %d", offset)
	}
	if offset >= int64(len(data)) {
		if len(buffer) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	count := copy(buffer, data[offset:])
	if count < len(buffer) {
		return count, io.EOF
	}
	return count, nil
}
