// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"encoding"
	"fmt"
)

// FileReader reads whole files. The storage package satisfies it.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// FileWriter replaces whole files atomically. The storage package
// satisfies it.
type FileWriter interface {
	WriteFile(path string, data []byte) error
}

func readIndex(storage FileReader, path string, target encoding.BinaryUnmarshaler) error {
	data, err := storage.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := target.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeIndex(storage FileWriter, path string, source encoding.BinaryMarshaler) error {
	data, err := source.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := storage.WriteFile(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadVersionIndex loads a .lvi file.
func ReadVersionIndex(storage FileReader, path string) (*VersionIndex, error) {
	version := &VersionIndex{}
	if err := readIndex(storage, path, version); err != nil {
		return nil, err
	}
	return version, nil
}

// WriteVersionIndex stores a .lvi file.
func WriteVersionIndex(storage FileWriter, path string, version *VersionIndex) error {
	return writeIndex(storage, path, version)
}

// ReadContentIndex loads a .lci file.
func ReadContentIndex(storage FileReader, path string) (*ContentIndex, error) {
	content := &ContentIndex{}
	if err := readIndex(storage, path, content); err != nil {
		return nil, err
	}
	return content, nil
}

// WriteContentIndex stores a .lci file.
func WriteContentIndex(storage FileWriter, path string, content *ContentIndex) error {
	return writeIndex(storage, path, content)
}

// ReadStoreIndex loads a .lsi file.
func ReadStoreIndex(storage FileReader, path string) (*StoreIndex, error) {
	store := &StoreIndex{}
	if err := readIndex(storage, path, store); err != nil {
		return nil, err
	}
	return store, nil
}

// WriteStoreIndex stores a .lsi file.
func WriteStoreIndex(storage FileWriter, path string, store *StoreIndex) error {
	return writeIndex(storage, path, store)
}
