// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import (
	"context"
	"time"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// AuditConnQueryer lists the audit store operations which may run on
// a single connection, outside an explicit transaction. Operations
// which must be transactional (see AddOperation) open their own
// transaction internally.
type AuditConnQueryer interface {
	AuditQueryer

	// Vacuum asks the storage engine to reclaim the pages which were
	// freed by previous purges. It must not run inside a transaction.
	// The boolean result reports whether a vacuum actually ran.
	Vacuum(ctx context.Context) (bool, error)
}

// AuditTxQueryer lists the audit store operations which may run
// within an enclosing transaction.
type AuditTxQueryer interface {
	AuditQueryer
}

// AuditQueryer is the audit store query surface shared by connection
// and transaction scopes.
type AuditQueryer interface {
	// CreateBatch persists a fresh batch row. The batch identity is
	// filled into b. The row must be committed before any external
	// I/O of the owning reconciliation run starts.
	CreateBatch(ctx context.Context, b *model.Batch) error

	// AddOperation appends an operation row and updates the counters
	// of its owning batch in the same transaction, so readers never
	// observe an operation row without its counter increment.
	AddOperation(ctx context.Context, op *model.Operation) error

	// FinishBatch sets finishedAt on the batch identified by its
	// correlation id, along with its final itemsTotal value.
	FinishBatch(ctx context.Context, correlationID string) error

	// SetBatchTotal updates itemsTotal of an in-progress batch after
	// the sync plan size becomes known.
	SetBatchTotal(
		ctx context.Context, correlationID string, total int,
	) error

	// ListOperations returns one page of operation rows matching the
	// filter, sorted by occurredAt descending, along with the total
	// match count.
	ListOperations(
		ctx context.Context,
		f model.OperationFilter,
		page, pageSize int,
	) ([]model.Operation, int64, error)

	// ListBatches returns one page of batch rows sorted by startedAt
	// descending, along with the total count.
	ListBatches(
		ctx context.Context, page, pageSize int,
	) ([]model.Batch, int64, error)

	// Summary aggregates the operations of the trailing hour.
	Summary(ctx context.Context) (*model.Summary, error)

	// Retention reads the singleton retention policy row.
	Retention(ctx context.Context) (*model.RetentionPolicy, error)

	// UpdateRetention atomically replaces the retention limits and
	// returns the updated row. The approxDbBytes cache and updatedAt
	// are refreshed as part of the same statement.
	UpdateRetention(
		ctx context.Context, maxBytes *int64, maxAgeDays *int,
	) (*model.RetentionPolicy, error)

	// PurgeTTL deletes operations older than the cutoff and the
	// completed batches whose operations are all gone, in a single
	// transaction, returning the deleted operations count.
	PurgeTTL(ctx context.Context, cutoff time.Time) (int64, error)

	// PurgeOldest deletes the oldest limit operations by occurredAt,
	// returning the deleted count. The size-bounded purge loops over
	// this primitive until the database fits its budget.
	PurgeOldest(ctx context.Context, limit int) (int64, error)

	// DBSize reads the current database size in bytes and caches it
	// into the approxDbBytes column of the retention row.
	DBSize(ctx context.Context) (int64, error)
}

// Audit is the audit store repository, guiding its queryer instances
// with connection or transaction scopes in the same manner as the
// other repositories of this project.
type Audit interface {
	Conn(Conn) AuditConnQueryer
	Tx(Tx) AuditTxQueryer
}
