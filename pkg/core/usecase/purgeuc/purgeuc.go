// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package purgeuc contains the retention purger UseCase which enforces
// the TTL and size budgets of the audit store. A purge runs either on
// the fixed schedule or right after a reconciliation batch; a
// single-writer flag keeps the two triggers from overlapping.
package purgeuc

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/scramsync/scramsync/pkg/core/log"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

// Defaults for the purge schedule and the size-purge round.
const (
	DefaultInterval   = 300 * time.Second
	DefaultPurgeBatch = 100
)

// Observer receives the purge outcomes, so an adapter layer can count
// them without the use case depending on a metrics framework.
type Observer interface {
	ObservePurged(n int64)
}

type nopObserver struct{}

func (nopObserver) ObservePurged(int64) {}

// Result reports the outcome of one purge invocation. Skipped is set
// when another purge was already in progress and this invocation
// returned immediately without touching the store.
type Result struct {
	TTLDeleted  int64
	SizeDeleted int64
	Vacuumed    bool
	Skipped     bool
}

// UseCase represents the retention purger use case. It holds a
// database connection pool and the audit repository instance (to be
// guided with the DB pool).
type UseCase struct {
	pool    repo.Pool
	auditrp repo.Audit

	interval   time.Duration
	purgeBatch int
	obs        Observer

	running atomic.Bool
}

// Option implements the functional options pattern for the purger
// UseCase instantiation.
type Option func(*UseCase) error

// WithInterval overrides the scheduled purge interval.
func WithInterval(d time.Duration) Option {
	return func(uc *UseCase) error {
		if d <= 0 {
			return fmt.Errorf("interval %v is not positive", d)
		}
		uc.interval = d
		return nil
	}
}

// WithPurgeBatch overrides how many rows one size-purge round removes
// before the database size is probed again.
func WithPurgeBatch(n int) Option {
	return func(uc *UseCase) error {
		if n < 1 {
			return fmt.Errorf("purge batch %d is not positive", n)
		}
		uc.purgeBatch = n
		return nil
	}
}

// WithObserver registers an outcome observer, such as the Prometheus
// collectors adapter.
func WithObserver(o Observer) Option {
	return func(uc *UseCase) error {
		uc.obs = o
		return nil
	}
}

// New instantiates a retention purger use case.
func New(p repo.Pool, a repo.Audit, opts ...Option) (*UseCase, error) {
	uc := &UseCase{pool: p, auditrp: a}
	for _, opt := range opts {
		if err := opt(uc); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	// now, deal with defaults
	if uc.interval == 0 {
		uc.interval = DefaultInterval
	}
	if uc.purgeBatch == 0 {
		uc.purgeBatch = DefaultPurgeBatch
	}
	if uc.obs == nil {
		uc.obs = nopObserver{}
	}
	return uc, nil
}

// Purge runs one full purge pass: the TTL purge, the size-bounded
// purge loop, and a best-effort vacuum. If another purge is already in
// progress, it returns immediately with Skipped set; neither trigger
// waits on the other.
func (purge *UseCase) Purge(ctx context.Context) (Result, error) {
	if !purge.running.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer purge.running.Store(false)

	var res Result
	err := purge.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		q := purge.auditrp.Conn(c)
		var err error
		res.TTLDeleted, err = purge.purgeTTL(ctx, q)
		if err != nil {
			return err
		}
		res.SizeDeleted, err = purge.purgeBySize(ctx, q)
		if err != nil {
			return err
		}
		// Vacuum failures are logged but never fail the purge; the
		// freed pages are reclaimed by a later pass.
		res.Vacuumed, err = q.Vacuum(ctx)
		if err != nil {
			res.Vacuumed = false
			log.Warn(ctx, "vacuum failed", log.Err("error", err))
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("purging audit store: %w", err)
	}
	if n := res.TTLDeleted + res.SizeDeleted; n > 0 {
		purge.obs.ObservePurged(n)
		log.Info(ctx, "audit retention purge completed",
			slog.Int64("ttl_deleted", res.TTLDeleted),
			slog.Int64("size_deleted", res.SizeDeleted),
			slog.Bool("vacuumed", res.Vacuumed),
		)
	}
	return res, nil
}

// purgeTTL deletes the operations which outlived maxAgeDays, plus the
// finished batches whose operations are all gone. A null maxAgeDays
// means the time dimension is unbounded.
func (purge *UseCase) purgeTTL(
	ctx context.Context, q repo.AuditConnQueryer,
) (int64, error) {
	policy, err := q.Retention(ctx)
	if err != nil {
		return 0, err
	}
	if policy.MaxAgeDays == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -*policy.MaxAgeDays)
	return q.PurgeTTL(ctx, cutoff)
}

// purgeBySize removes the oldest operations in bounded rounds until
// the database fits its byte budget or no row remains. A null maxBytes
// means the size dimension is unbounded.
func (purge *UseCase) purgeBySize(
	ctx context.Context, q repo.AuditConnQueryer,
) (int64, error) {
	policy, err := q.Retention(ctx)
	if err != nil {
		return 0, err
	}
	if policy.MaxBytes == nil {
		return 0, nil
	}
	var deleted int64
	for {
		size, err := q.DBSize(ctx)
		if err != nil {
			return deleted, err
		}
		if size <= *policy.MaxBytes {
			return deleted, nil
		}
		n, err := q.PurgeOldest(ctx, purge.purgeBatch)
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			return deleted, nil
		}
		deleted += n
	}
}

// Trigger starts a purge pass without blocking the caller. It backs
// the post-batch hook of the reconciliation orchestrator.
func (purge *UseCase) Trigger() {
	go func() {
		ctx := context.Background()
		if _, err := purge.Purge(ctx); err != nil {
			log.Error(ctx, "post-batch purge failed",
				log.Err("error", err),
			)
		}
	}()
}

// Schedule runs purge passes on the fixed interval until the context
// is canceled. It blocks and is meant to run in its own goroutine.
func (purge *UseCase) Schedule(ctx context.Context) {
	t := time.NewTicker(purge.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := purge.Purge(ctx); err != nil {
				log.Error(ctx, "scheduled purge failed",
					log.Err("error", err),
				)
			}
		}
	}
}
