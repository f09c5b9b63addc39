// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so a
// report with the same content always has the same bytes.
var encMode cbor.EncMode

// decMode decodes generic maps as map[string]any. Unknown fields are
// ignored.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// FileWriter replaces whole files. lib/storage satisfies it.
type FileWriter interface {
	WriteFile(path string, data []byte) error
}

// FileReader reads whole files. lib/storage satisfies it.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// WriteFile encodes v and stores it at path.
func WriteFile(storage FileWriter, path string, v any) error {
	encoded, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding report %s: %w", path, err)
	}
	if err := storage.WriteFile(path, encoded); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}

// ReadFile loads the report at path into v.
func ReadFile(storage FileReader, path string, v any) error {
	data, err := storage.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading report %s: %w", path, err)
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding report %s: %w", path, err)
	}
	return nil
}
