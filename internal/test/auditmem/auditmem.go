// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package auditmem is an internal helper for the test packages. It
// implements the repo.Pool and repo.Audit interfaces over in-memory
// state with the same semantics as the PostgreSQL adapter, so the use
// case suites can run without a database container.
package auditmem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

// Store holds the in-memory audit state. The exported fields may be
// inspected (under no concurrent use) by assertions.
type Store struct {
	mu      sync.Mutex
	Batches []*model.Batch
	Ops     []model.Operation
	Policy  model.RetentionPolicy

	// BaseBytes and PerOpBytes shape the reported database size as
	// BaseBytes + PerOpBytes*len(Ops), letting size-purge tests watch
	// the size shrink as rows go away.
	BaseBytes  int64
	PerOpBytes int64

	Vacuumed int

	// FailNextAddOperation makes the next AddOperation call fail, for
	// partial-failure tests.
	FailNextAddOperation error
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Pool returns a repo.Pool handing out connections bound to s.
func (s *Store) Pool() repo.Pool {
	return fakePool{s}
}

// Audit returns a repo.Audit guiding queryers bound to s.
func (s *Store) Audit() repo.Audit {
	return fakeAudit{}
}

// Batch returns the batch with the given correlation id, or nil.
func (s *Store) Batch(correlationID string) *model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchLocked(correlationID)
}

func (s *Store) batchLocked(correlationID string) *model.Batch {
	for _, b := range s.Batches {
		if b.CorrelationID == correlationID {
			return b
		}
	}
	return nil
}

// Operations returns a copy of the recorded operation rows.
func (s *Store) Operations() []model.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]model.Operation, len(s.Ops))
	copy(ops, s.Ops)
	return ops
}

type fakeConn struct {
	store *Store
}

func (fakeConn) Exec(context.Context, string, ...any) (int64, error) {
	return 0, nil
}

func (fakeConn) Query(context.Context, string, ...any) (repo.Rows, error) {
	return nil, errors.New("not supported by the in-memory store")
}

func (c fakeConn) Tx(ctx context.Context, f repo.TxHandler) error {
	return f(ctx, fakeTx(c))
}

func (fakeConn) IsConn() {}

type fakeTx struct {
	store *Store
}

func (fakeTx) Exec(context.Context, string, ...any) (int64, error) {
	return 0, nil
}

func (fakeTx) Query(context.Context, string, ...any) (repo.Rows, error) {
	return nil, errors.New("not supported by the in-memory store")
}

func (fakeTx) IsTx() {}

type fakePool struct {
	store *Store
}

func (p fakePool) Conn(ctx context.Context, f repo.ConnHandler) error {
	return f(ctx, fakeConn{p.store})
}

type fakeAudit struct{}

func (fakeAudit) Conn(c repo.Conn) repo.AuditConnQueryer {
	return queryer{c.(fakeConn).store}
}

func (fakeAudit) Tx(tx repo.Tx) repo.AuditTxQueryer {
	return queryer{tx.(fakeTx).store}
}

type queryer struct {
	s *Store
}

func (q queryer) CreateBatch(_ context.Context, b *model.Batch) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	if q.s.batchLocked(b.CorrelationID) != nil {
		return cerr.Conflict(fmt.Errorf(
			"duplicate correlation id %q", b.CorrelationID,
		))
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	b.ID = int64(len(q.s.Batches) + 1)
	clone := *b
	q.s.Batches = append(q.s.Batches, &clone)
	return nil
}

func (q queryer) AddOperation(_ context.Context, op *model.Operation) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	if err := q.s.FailNextAddOperation; err != nil {
		q.s.FailNextAddOperation = nil
		return err
	}
	b := q.s.batchLocked(op.CorrelationID)
	if b == nil {
		return cerr.NotFound(fmt.Errorf(
			"no batch with correlation id %q", op.CorrelationID,
		))
	}
	if op.OccurredAt.IsZero() {
		op.OccurredAt = time.Now().UTC()
	}
	op.ID = int64(len(q.s.Ops) + 1)
	op.ErrorMessage = model.TruncateErrorMessage(op.ErrorMessage)
	q.s.Ops = append(q.s.Ops, *op)
	switch op.Result {
	case model.ResultSuccess:
		b.ItemsSuccess++
	case model.ResultError:
		b.ItemsError++
	}
	return nil
}

func (q queryer) FinishBatch(
	_ context.Context, correlationID string,
) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	b := q.s.batchLocked(correlationID)
	if b == nil || b.FinishedAt != nil {
		return cerr.NotFound(fmt.Errorf(
			"no unfinished batch with correlation id %q", correlationID,
		))
	}
	now := time.Now().UTC()
	b.FinishedAt = &now
	return nil
}

func (q queryer) SetBatchTotal(
	_ context.Context, correlationID string, total int,
) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	b := q.s.batchLocked(correlationID)
	if b == nil || b.FinishedAt != nil {
		return cerr.NotFound(fmt.Errorf(
			"no unfinished batch with correlation id %q", correlationID,
		))
	}
	b.ItemsTotal = total
	return nil
}

func (q queryer) ListOperations(
	_ context.Context, f model.OperationFilter, page, pageSize int,
) ([]model.Operation, int64, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	var matched []model.Operation
	for _, op := range q.s.Ops {
		if f.StartTime != nil && op.OccurredAt.Before(*f.StartTime) {
			continue
		}
		if f.EndTime != nil && !op.OccurredAt.Before(*f.EndTime) {
			continue
		}
		if f.Principal != "" && op.Principal != f.Principal {
			continue
		}
		if f.OpType != "" && op.OpType != f.OpType {
			continue
		}
		if f.Result != "" && op.Result != f.Result {
			continue
		}
		matched = append(matched, op)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end], total, nil
}

func (q queryer) ListBatches(
	_ context.Context, page, pageSize int,
) ([]model.Batch, int64, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	batches := make([]model.Batch, len(q.s.Batches))
	for i, b := range q.s.Batches {
		batches[i] = *b
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].StartedAt.After(batches[j].StartedAt)
	})
	total := int64(len(batches))
	start := (page - 1) * pageSize
	if start > len(batches) {
		start = len(batches)
	}
	end := min(start+pageSize, len(batches))
	return batches[start:end], total, nil
}

func (q queryer) Summary(context.Context) (*model.Summary, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	start := time.Now().UTC().Add(-time.Hour)
	s := &model.Summary{WindowStart: start}
	var errs int64
	for _, op := range q.s.Ops {
		if op.OccurredAt.Before(start) {
			continue
		}
		s.OpsPerHour++
		if op.Result == model.ResultError {
			errs++
		}
	}
	if s.OpsPerHour > 0 {
		s.ErrorRate = float64(errs) / float64(s.OpsPerHour)
	}
	return s, nil
}

func (q queryer) Retention(context.Context) (*model.RetentionPolicy, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	p := q.s.Policy
	return &p, nil
}

func (q queryer) UpdateRetention(
	_ context.Context, maxBytes *int64, maxAgeDays *int,
) (*model.RetentionPolicy, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	q.s.Policy.MaxBytes = maxBytes
	q.s.Policy.MaxAgeDays = maxAgeDays
	q.s.Policy.UpdatedAt = time.Now().UTC()
	p := q.s.Policy
	return &p, nil
}

func (q queryer) PurgeTTL(
	_ context.Context, cutoff time.Time,
) (int64, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	var kept []model.Operation
	var deleted int64
	remaining := map[string]int{}
	for _, op := range q.s.Ops {
		if op.OccurredAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, op)
		remaining[op.CorrelationID]++
	}
	q.s.Ops = kept
	var batches []*model.Batch
	for _, b := range q.s.Batches {
		emptied := remaining[b.CorrelationID] == 0
		if b.FinishedAt != nil && b.FinishedAt.Before(cutoff) && emptied {
			continue
		}
		batches = append(batches, b)
	}
	q.s.Batches = batches
	return deleted, nil
}

func (q queryer) PurgeOldest(
	_ context.Context, limit int,
) (int64, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	ops := make([]model.Operation, len(q.s.Ops))
	copy(ops, q.s.Ops)
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].OccurredAt.Before(ops[j].OccurredAt)
	})
	n := min(limit, len(ops))
	doomed := map[int64]struct{}{}
	for _, op := range ops[:n] {
		doomed[op.ID] = struct{}{}
	}
	var kept []model.Operation
	for _, op := range q.s.Ops {
		if _, ok := doomed[op.ID]; ok {
			continue
		}
		kept = append(kept, op)
	}
	q.s.Ops = kept
	return int64(n), nil
}

func (q queryer) DBSize(context.Context) (int64, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	size := q.s.BaseBytes + q.s.PerOpBytes*int64(len(q.s.Ops))
	q.s.Policy.ApproxDBBytes = size
	q.s.Policy.UpdatedAt = time.Now().UTC()
	return size, nil
}

func (q queryer) Vacuum(context.Context) (bool, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	q.s.Vacuumed++
	return true, nil
}
