// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// FS is Storage over the local filesystem.
type FS struct{}

// NewFS returns filesystem storage.
func NewFS() *FS {
	return &FS{}
}

var _ Storage = (*FS)(nil)

// wrapError annotates an OS error with its errno classification so
// callers can test with errors.Is(err, errno.ENOENT) and the like.
func wrapError(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	var pathError *fs.PathError
	cause := err
	if errors.As(err, &pathError) {
		cause = pathError.Err
	}
	return fmt.Errorf("%s %s: %w (%w)", operation, path, errno.FromError(err, errno.EIO), cause)
}

func native(path string) string {
	return filepath.FromSlash(path)
}

type fsReader struct {
	*os.File
	size int64
}

func (r *fsReader) Size() int64 { return r.size }

func (*FS) OpenRead(path string) (Reader, error) {
	file, err := os.Open(native(path))
	if err != nil {
		return nil, wrapError("opening", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, wrapError("stating", path, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, errno.Wrap(errno.EINVAL, "opening %s: is a directory", path)
	}
	return &fsReader{File: file, size: info.Size()}, nil
}

func (*FS) OpenWrite(path string) (Writer, error) {
	if err := os.MkdirAll(filepath.Dir(native(path)), 0o755); err != nil {
		return nil, wrapError("creating parent of", path, err)
	}
	file, err := os.OpenFile(native(path), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wrapError("creating", path, err)
	}
	return file, nil
}

func (*FS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(native(path))
	if err != nil {
		return nil, wrapError("reading", path, err)
	}
	return data, nil
}

func (*FS) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(native(path)), 0o755); err != nil {
		return wrapError("creating parent of", path, err)
	}
	if err := atomicWriteFile(native(path), data); err != nil {
		return wrapError("writing", path, err)
	}
	return nil
}

func (*FS) Rename(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(native(target)), 0o755); err != nil {
		return wrapError("creating parent of", target, err)
	}
	// os.Rename replaces silently on POSIX. Link fails if the target
	// exists, which is the contract; it needs a filesystem with hard
	// links, so fall back to a checked rename when it is refused.
	if err := os.Link(native(source), native(target)); err == nil {
		return wrapError("removing", source, os.Remove(native(source)))
	} else if errors.Is(err, fs.ErrExist) {
		return wrapError("renaming onto", target, err)
	}
	if _, err := os.Lstat(native(target)); err == nil {
		return errno.Wrap(errno.EEXIST, "renaming onto %s", target)
	}
	return wrapError("renaming", source, os.Rename(native(source), native(target)))
}

func (*FS) Remove(path string) error {
	info, err := os.Lstat(native(path))
	if err != nil {
		return wrapError("removing", path, err)
	}
	if info.IsDir() {
		return errno.Wrap(errno.EINVAL, "removing %s: is a directory", path)
	}
	return wrapError("removing", path, os.Remove(native(path)))
}

func (*FS) RemoveDir(path string) error {
	info, err := os.Lstat(native(path))
	if err != nil {
		return wrapError("removing directory", path, err)
	}
	if !info.IsDir() {
		return errno.Wrap(errno.EINVAL, "removing directory %s: not a directory", path)
	}
	return wrapError("removing directory", path, os.Remove(native(path)))
}

func (*FS) MkdirAll(path string) error {
	return wrapError("creating directory", path, os.MkdirAll(native(path), 0o755))
}

func entryFromInfo(path string, info fs.FileInfo) Entry {
	entry := Entry{
		Path:        path,
		IsDir:       info.IsDir(),
		Permissions: uint16(info.Mode().Perm()),
	}
	if !entry.IsDir {
		entry.Size = info.Size()
	}
	return entry
}

func (*FS) Stat(path string) (Entry, error) {
	info, err := os.Stat(native(path))
	if err != nil {
		return Entry{}, wrapError("stating", path, err)
	}
	return entryFromInfo(path, info), nil
}

func (*FS) Chmod(path string, permissions uint16) error {
	return wrapError("changing mode of", path, os.Chmod(native(path), fs.FileMode(permissions)&fs.ModePerm))
}

// Walk skips anything that is neither a regular file nor a
// directory; symbolic links are not followed.
func (*FS) Walk(root string, visit func(Entry) error) error {
	base := native(root)
	if _, err := os.Stat(base); err != nil {
		return wrapError("walking", root, err)
	}
	var entries []Entry
	err := filepath.WalkDir(base, func(current string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return wrapError("walking", filepath.ToSlash(current), err)
		}
		if current == base {
			return nil
		}
		if !dirEntry.IsDir() && !dirEntry.Type().IsRegular() {
			return nil
		}
		info, err := dirEntry.Info()
		if err != nil {
			return wrapError("stating", filepath.ToSlash(current), err)
		}
		relative, err := filepath.Rel(base, current)
		if err != nil {
			return err
		}
		entries = append(entries, entryFromInfo(filepath.ToSlash(relative), info))
		return nil
	})
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for _, entry := range entries {
		if err := visit(entry); err != nil {
			return err
		}
	}
	return nil
}

func (*FS) Lock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(native(path)), 0o755); err != nil {
		return nil, wrapError("creating parent of", path, err)
	}
	release, err := lockFile(native(path))
	if err != nil {
		return nil, wrapError("locking", path, err)
	}
	return &Lock{release: release}, nil
}

func (*FS) Map(path string, offset, length int64) (*Mapping, error) {
	if offset < 0 || length < 0 {
		return nil, errno.Wrap(errno.EINVAL, "mapping %s: negative range %d+%d", path, offset, length)
	}
	if length == 0 {
		return &Mapping{Data: []byte{}}, nil
	}
	data, release, err := mapFile(native(path), offset, length)
	if err != nil {
		return nil, wrapError("mapping", path, err)
	}
	return &Mapping{Data: data, release: release}, nil
}
