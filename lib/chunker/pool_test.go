// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolReusesCompatibleChunker(t *testing.T) {
	pool := NewPool(0)
	first, err := pool.Get(testParams)
	require.NoError(t, err)
	pool.Put(first)
	assert.Equal(t, 1, pool.Idle())

	smaller := ParamsForTarget(1024)
	second, err := pool.Get(smaller)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, smaller, second.Params())
	assert.Zero(t, pool.Idle())
}

func TestPoolAllocatesForLargerParams(t *testing.T) {
	pool := NewPool(4)
	small, err := pool.Get(ParamsForTarget(1024))
	require.NoError(t, err)
	pool.Put(small)

	large, err := pool.Get(ParamsForTarget(65536))
	require.NoError(t, err)
	assert.NotSame(t, small, large)
	assert.Equal(t, 1, pool.Idle())
}

func TestPoolLimit(t *testing.T) {
	pool := NewPool(2)
	for range 5 {
		chunker, err := New(testParams)
		require.NoError(t, err)
		pool.Put(chunker)
	}
	assert.Equal(t, 2, pool.Idle())
}

func TestPoolConcurrentUse(t *testing.T) {
	pool := NewPool(3)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunker, err := pool.Get(testParams)
			if !assert.NoError(t, err) {
				return
			}
			pool.Put(chunker)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, pool.Idle(), 3)
}
