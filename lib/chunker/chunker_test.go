// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau-foundation/longtail/lib/errno"
)

var testParams = ParamsForTarget(4096)

func randomData(t *testing.T, size int, seed int64) []byte {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

// sliceFeeder hands out data at most step bytes per call.
func sliceFeeder(data []byte, step int) Feeder {
	return func(buffer []byte) (int, error) {
		count := min(step, len(buffer), len(data))
		copy(buffer, data[:count])
		data = data[count:]
		return count, nil
	}
}

func collect(t *testing.T, params Params, feed Feeder) []Range {
	t.Helper()
	chunker, err := New(params)
	require.NoError(t, err)
	var ranges []Range
	for {
		chunk, err := chunker.Next(feed)
		if errors.Is(err, io.EOF) {
			return ranges
		}
		require.NoError(t, err)
		chunk.Data = bytes.Clone(chunk.Data)
		ranges = append(ranges, chunk)
	}
}

func lengths(ranges []Range) []int {
	result := make([]int, len(ranges))
	for i, r := range ranges {
		result[i] = len(r.Data)
	}
	return result
}

func TestDiscriminator(t *testing.T) {
	assert.Equal(t, uint32(18493), Discriminator(24576))
	assert.Equal(t, uint32(49535), Discriminator(65536))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, ParamsForTarget(24576).Validate())
	assert.ErrorIs(t, Params{Min: 32, Avg: 64, Max: 128}.Validate(), errno.EINVAL)
	assert.ErrorIs(t, Params{Min: 256, Avg: 128, Max: 512}.Validate(), errno.EINVAL)

	_, err := New(Params{Min: 8, Avg: 16, Max: 32})
	assert.ErrorIs(t, err, errno.EINVAL)
}

func TestEmptyStream(t *testing.T) {
	chunker, err := New(testParams)
	require.NoError(t, err)
	chunk, err := chunker.Next(sliceFeeder(nil, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, chunk.Data)
	assert.Zero(t, chunk.Offset)
}

func TestReassemblyAndBounds(t *testing.T) {
	data := randomData(t, 1<<20, 1)
	ranges := collect(t, testParams, ReaderFeeder(bytes.NewReader(data)))
	require.NotEmpty(t, ranges)

	var reassembled []byte
	var offset uint64
	for i, chunk := range ranges {
		assert.Equal(t, offset, chunk.Offset, "chunk %d offset", i)
		assert.LessOrEqual(t, len(chunk.Data), int(testParams.Max), "chunk %d exceeds max", i)
		if i < len(ranges)-1 {
			assert.GreaterOrEqual(t, len(chunk.Data), int(testParams.Min), "chunk %d below min", i)
		}
		reassembled = append(reassembled, chunk.Data...)
		offset += uint64(len(chunk.Data))
	}
	assert.Equal(t, data, reassembled)
}

func TestBoundariesIndependentOfFeedSize(t *testing.T) {
	data := randomData(t, 300*1024, 2)

	reference := lengths(collect(t, testParams, ReaderFeeder(bytes.NewReader(data))))
	for _, step := range []int{1, 7, 4096, 65537} {
		got := lengths(collect(t, testParams, sliceFeeder(data, step)))
		assert.Equal(t, reference, got, "feed step %d", step)
	}
}

func TestStreamingMatchesBufferFunction(t *testing.T) {
	data := randomData(t, 200*1024, 3)

	var expected []int
	remaining := data
	for len(remaining) > 0 {
		length, err := NextChunkFromBuffer(testParams, remaining)
		require.NoError(t, err)
		require.Positive(t, length)
		expected = append(expected, length)
		remaining = remaining[length:]
	}

	got := lengths(collect(t, testParams, sliceFeeder(data, 1000)))
	assert.Equal(t, expected, got)
}

func TestShortInputIsOneChunk(t *testing.T) {
	data := randomData(t, int(testParams.Min), 4)
	ranges := collect(t, testParams, sliceFeeder(data, len(data)))
	require.Len(t, ranges, 1)
	assert.Equal(t, data, ranges[0].Data)

	one := collect(t, testParams, sliceFeeder([]byte{42}, 1))
	require.Len(t, one, 1)
	assert.Equal(t, []byte{42}, one[0].Data)
}

func TestUniformInputForcesMaxChunks(t *testing.T) {
	data := make([]byte, int(testParams.Max)*5)
	for _, chunk := range collect(t, testParams, sliceFeeder(data, 512)) {
		assert.LessOrEqual(t, len(chunk.Data), int(testParams.Max))
	}
}

func TestInsertionKeepsLaterChunks(t *testing.T) {
	original := randomData(t, 1<<20, 5)
	edited := append(append(bytes.Clone(original[:1000]), []byte("inserted bytes")...), original[1000:]...)

	seen := map[string]bool{}
	originalRanges := collect(t, testParams, sliceFeeder(original, 8192))
	for _, chunk := range originalRanges {
		seen[string(chunk.Data)] = true
	}

	shared := 0
	for _, chunk := range collect(t, testParams, sliceFeeder(edited, 8192)) {
		if seen[string(chunk.Data)] {
			shared++
		}
	}
	assert.Greater(t, shared, len(originalRanges)/2)
}

func TestFeederErrorPropagates(t *testing.T) {
	chunker, err := New(testParams)
	require.NoError(t, err)
	failure := errors.New("disk went away")
	_, err = chunker.Next(func([]byte) (int, error) { return 0, failure })
	assert.ErrorIs(t, err, failure)
}

func TestFeederOverrunRejected(t *testing.T) {
	chunker, err := New(testParams)
	require.NoError(t, err)
	_, err = chunker.Next(func(buffer []byte) (int, error) { return len(buffer) + 1, nil })
	assert.ErrorIs(t, err, errno.EINVAL)
}

func TestResetRestartsOffsets(t *testing.T) {
	data := randomData(t, 64*1024, 6)
	chunker, err := New(testParams)
	require.NoError(t, err)

	first, err := chunker.Next(sliceFeeder(data, len(data)))
	require.NoError(t, err)
	firstLength := len(first.Data)

	require.NoError(t, chunker.Reset(testParams))
	again, err := chunker.Next(sliceFeeder(data, len(data)))
	require.NoError(t, err)
	assert.Zero(t, again.Offset)
	assert.Len(t, again.Data, firstLength)
}
