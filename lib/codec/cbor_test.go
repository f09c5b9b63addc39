// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
	"github.com/bureau-foundation/longtail/lib/storage"
)

type sampleReport struct {
	Source  string            `cbor:"source"`
	Added   []string          `cbor:"added,omitempty"`
	Counts  map[string]uint64 `cbor:"counts"`
	Skipped bool              `cbor:"skipped,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	report := sampleReport{
		Source: "v1.lvi",
		Counts: map[string]uint64{"put_stored_block_count": 3, "get_stored_block_count": 9, "flush_count": 1},
	}

	first, err := Marshal(report)
	require.NoError(t, err)
	for range 10 {
		again, err := Marshal(report)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var decoded sampleReport
	require.NoError(t, Unmarshal(first, &decoded))
	assert.Equal(t, report, decoded)
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(sampleReport{Source: "a", Added: []string{"x"}})
	require.NoError(t, err)

	var decoded any
	require.NoError(t, Unmarshal(data, &decoded))
	fields, ok := decoded.(map[string]any)
	require.True(t, ok, "decoded %T", decoded)
	assert.Equal(t, "a", fields["source"])
	assert.Equal(t, []any{"x"}, fields["added"])
}

func TestWriteReadFile(t *testing.T) {
	fs := storage.NewMemory()
	report := sampleReport{Source: "two", Added: []string{"b/", "b/c"}}
	require.NoError(t, WriteFile(fs, "reports/diff.cbor", report))

	var decoded sampleReport
	require.NoError(t, ReadFile(fs, "reports/diff.cbor", &decoded))
	assert.Equal(t, report, decoded)

	err := ReadFile(fs, "reports/absent.cbor", &decoded)
	assert.ErrorIs(t, err, errno.ENOENT)

	require.NoError(t, fs.WriteFile("reports/garbage.cbor", []byte{0xff, 0x00}))
	assert.Error(t, ReadFile(fs, "reports/garbage.cbor", &decoded))
}
