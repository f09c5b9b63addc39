// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import "sync"

// DefaultPoolSize is the number of idle chunkers a Pool retains.
const DefaultPoolSize = 232

// Pool recycles chunkers so that hashing many files in parallel does
// not allocate a fresh multi-megabyte buffer per file.
type Pool struct {
	mu    sync.Mutex
	idle  []*Chunker
	limit int
}

// NewPool returns a pool retaining at most limit idle chunkers. A
// non-positive limit selects DefaultPoolSize.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = DefaultPoolSize
	}
	return &Pool{limit: limit}
}

// Get returns a chunker reset for params. An idle chunker whose
// buffer is large enough is reused; otherwise a new one is built.
func (p *Pool) Get(params Params) (*Chunker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	needed := bufferSize(params)

	p.mu.Lock()
	var reused *Chunker
	for i := len(p.idle) - 1; i >= 0; i-- {
		if cap(p.idle[i].buffer) >= needed {
			reused = p.idle[i]
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if reused == nil {
		return New(params)
	}
	if err := reused.Reset(params); err != nil {
		return nil, err
	}
	return reused, nil
}

// Put hands a chunker back. Chunkers beyond the pool limit are
// dropped for the garbage collector.
func (p *Pool) Put(chunker *Chunker) {
	if chunker == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) < p.limit {
		p.idle = append(p.idle, chunker)
	}
}

// Idle returns the number of chunkers waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
