// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// storageCase builds a Storage and the path prefix its tests work under.
type storageCase struct {
	name  string
	build func(t *testing.T) (Storage, string)
}

func storageCases() []storageCase {
	return []storageCase{
		{name: "fs", build: func(t *testing.T) (Storage, string) {
			return NewFS(), t.TempDir()
		}},
		{name: "memory", build: func(t *testing.T) (Storage, string) {
			return NewMemory(), "root"
		}},
	}
}

func forEachStorage(t *testing.T, run func(t *testing.T, store Storage, root string)) {
	for _, tc := range storageCases() {
		t.Run(tc.name, func(t *testing.T) {
			store, root := tc.build(t)
			run(t, store, root)
		})
	}
}

func TestReadWriteFile(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		name := root + "/nested/dir/file.bin"
		require.NoError(t, store.WriteFile(name, []byte("first")))
		require.NoError(t, store.WriteFile(name, []byte("second")))

		data, err := store.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)

		entry, err := store.Stat(name)
		require.NoError(t, err)
		assert.EqualValues(t, 6, entry.Size)
		assert.False(t, entry.IsDir)

		dir, err := store.Stat(root + "/nested/dir")
		require.NoError(t, err)
		assert.True(t, dir.IsDir)

		_, err = store.ReadFile(root + "/missing")
		assert.ErrorIs(t, err, errno.ENOENT)
		_, err = store.Stat(root + "/missing")
		assert.ErrorIs(t, err, errno.ENOENT)
	})
}

func TestOpenWriteThenRead(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		name := root + "/positional.bin"
		writer, err := store.OpenWrite(name)
		require.NoError(t, err)
		_, err = writer.WriteAt([]byte("world"), 6)
		require.NoError(t, err)
		_, err = writer.WriteAt([]byte("hello "), 0)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		reader, err := store.OpenRead(name)
		require.NoError(t, err)
		defer reader.Close()
		assert.EqualValues(t, 11, reader.Size())

		buffer := make([]byte, 5)
		_, err = reader.ReadAt(buffer, 6)
		require.NoError(t, err)
		assert.Equal(t, "world", string(buffer))

		count, err := reader.ReadAt(make([]byte, 8), 6)
		assert.Equal(t, 5, count)
		assert.True(t, errors.Is(err, io.EOF))
	})
}

func TestRenameRefusesExistingTarget(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		require.NoError(t, store.WriteFile(root+"/a.tmp", []byte("a")))
		require.NoError(t, store.WriteFile(root+"/b", []byte("b")))

		err := store.Rename(root+"/a.tmp", root+"/b")
		assert.ErrorIs(t, err, errno.EEXIST)

		data, err := store.ReadFile(root + "/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), data)

		require.NoError(t, store.Rename(root+"/a.tmp", root+"/sub/a"))
		_, err = store.Stat(root + "/a.tmp")
		assert.ErrorIs(t, err, errno.ENOENT)
		data, err = store.ReadFile(root + "/sub/a")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), data)
	})
}

func TestRemove(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		require.NoError(t, store.WriteFile(root+"/dir/file", []byte("x")))
		assert.Error(t, store.RemoveDir(root+"/dir"))

		require.NoError(t, store.Remove(root+"/dir/file"))
		assert.ErrorIs(t, store.Remove(root+"/dir/file"), errno.ENOENT)
		require.NoError(t, store.RemoveDir(root+"/dir"))
		_, err := store.Stat(root + "/dir")
		assert.ErrorIs(t, err, errno.ENOENT)
	})
}

func TestWalkOrder(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		require.NoError(t, store.WriteFile(root+"/b.txt", []byte("bb")))
		require.NoError(t, store.WriteFile(root+"/a/z.txt", []byte("z")))
		require.NoError(t, store.WriteFile(root+"/a/y.txt", nil))
		require.NoError(t, store.MkdirAll(root+"/empty"))

		var visited []string
		sizes := map[string]int64{}
		require.NoError(t, store.Walk(root, func(entry Entry) error {
			visited = append(visited, entry.Path)
			sizes[entry.Path] = entry.Size
			return nil
		}))
		assert.Equal(t, []string{"a", "a/y.txt", "a/z.txt", "b.txt", "empty"}, visited)
		assert.EqualValues(t, 2, sizes["b.txt"])
		assert.EqualValues(t, 0, sizes["a/y.txt"])

		stop := errors.New("stop")
		count := 0
		err := store.Walk(root, func(Entry) error {
			count++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, count)

		assert.ErrorIs(t, store.Walk(root+"/missing", func(Entry) error { return nil }), errno.ENOENT)
	})
}

func TestChmod(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		name := root + "/script.sh"
		require.NoError(t, store.WriteFile(name, []byte("#!/bin/sh\n")))
		require.NoError(t, store.Chmod(name, 0o700))
		entry, err := store.Stat(name)
		require.NoError(t, err)
		assert.EqualValues(t, 0o700, entry.Permissions)
	})
}

func TestLockExcludes(t *testing.T) {
	forEachStorage(t, func(t *testing.T, store Storage, root string) {
		name := root + "/store.lock"
		first, err := store.Lock(name)
		require.NoError(t, err)

		acquired := make(chan *Lock)
		go func() {
			second, err := store.Lock(name)
			if err != nil {
				close(acquired)
				return
			}
			acquired <- second
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while first held")
		default:
		}
		require.NoError(t, first.Unlock())
		require.NoError(t, first.Unlock())

		second, ok := <-acquired
		require.True(t, ok, "second lock failed")
		require.NoError(t, second.Unlock())
	})
}
