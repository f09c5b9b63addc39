// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs runs batches of CPU-bound work on a bounded number of
// goroutines. A caller reserves a batch of N jobs, submits up to N
// functions, and waits for all of them. Progress is reported after
// each completed job; cancellation is cooperative through the
// batch's context.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// Progress receives the number of completed jobs out of total.
// Calls are serialized per batch and done is non-decreasing.
type Progress func(total, done uint32)

// Job is one unit of work. The context is canceled when another job
// in the batch fails or the caller's context ends.
type Job func(ctx context.Context) error

// Scheduler hands out batches that share a worker limit.
type Scheduler struct {
	workers  int
	progress Progress
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProgress sets the progress callback used by every batch.
func WithProgress(progress Progress) Option {
	return func(s *Scheduler) {
		s.progress = progress
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New returns a scheduler running at most workers jobs at once.
// Zero or negative means one per CPU.
func New(workers int, opts ...Option) *Scheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	s := &Scheduler{workers: workers}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Workers returns the concurrency limit.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Batch is a reserved set of jobs.
type Batch struct {
	scheduler *Scheduler
	group     *errgroup.Group
	ctx       context.Context
	reserved  uint32
	submitted atomic.Uint32
	done      atomic.Uint32

	progressMu sync.Mutex
}

// Reserve starts a batch with room for count jobs.
func (s *Scheduler) Reserve(ctx context.Context, count uint32) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reserving %d jobs: %w (%w)", count, errno.ECANCELED, err)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	return &Batch{
		scheduler: s,
		group:     group,
		ctx:       groupCtx,
		reserved:  count,
	}, nil
}

// Submit queues job, blocking while every worker is busy. Submitting
// more jobs than reserved reports EINVAL; submitting after the batch
// was canceled reports ECANCELED.
func (b *Batch) Submit(job Job) error {
	if b.submitted.Add(1) > b.reserved {
		b.submitted.Add(^uint32(0))
		return errno.Wrap(errno.EINVAL, "submitting job: batch reserved %d", b.reserved)
	}
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("submitting job: %w (%w)", errno.ECANCELED, err)
	}
	b.group.Go(func() error {
		if err := b.ctx.Err(); err != nil {
			return fmt.Errorf("running job: %w (%w)", errno.ECANCELED, err)
		}
		err := job(b.ctx)
		b.report()
		return err
	})
	return nil
}

func (b *Batch) report() {
	b.progressMu.Lock()
	defer b.progressMu.Unlock()
	done := b.done.Add(1)
	if b.scheduler.progress != nil {
		b.scheduler.progress(b.reserved, done)
	}
}

// Wait blocks until every submitted job has returned and reports the
// first failure. A batch whose context ended reports ECANCELED.
func (b *Batch) Wait() error {
	err := b.group.Wait()
	if err != nil {
		b.scheduler.logger.Debug("job batch failed",
			"submitted", b.submitted.Load(),
			"completed", b.done.Load(),
			"error", err)
		return err
	}
	return nil
}

// Run reserves count jobs, submits run(ctx, i) for every i, and
// waits for them.
func (s *Scheduler) Run(ctx context.Context, count uint32, run func(ctx context.Context, i uint32) error) error {
	batch, err := s.Reserve(ctx, count)
	if err != nil {
		return err
	}
	for i := range count {
		err := batch.Submit(func(ctx context.Context) error {
			return run(ctx, i)
		})
		if err != nil {
			// The batch context is already canceled; Wait returns the
			// job error that caused it, or the cancellation.
			if waitErr := batch.Wait(); waitErr != nil {
				return waitErr
			}
			return err
		}
	}
	return batch.Wait()
}
