// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package auditrp is the adapter for the audit store repository. It
// persists batches and operations, answers the Control API queries,
// and carries the retention bookkeeping primitives which the purger
// loops over.
package auditrp

import (
	"context"
	"time"

	"github.com/scramsync/scramsync/pkg/adapter/db/postgres"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

// Repo represents the audit repository instance.
type Repo struct {
}

// New instantiates an audit Repo struct.
func New() *Repo {
	return &Repo{}
}

type connQueryer struct {
	*postgres.Conn
}

// Conn takes a Conn interface instance, unwraps it as required, and
// returns an AuditConnQueryer interface which (with access to the
// implementation-dependent connection object) can run the permitted
// audit operations. Operations which must be transactional open their
// own transaction on the wrapped connection.
func (audit *Repo) Conn(c repo.Conn) repo.AuditConnQueryer {
	cc := c.(*postgres.Conn)
	return connQueryer{Conn: cc}
}

func (cq connQueryer) CreateBatch(
	ctx context.Context, b *model.Batch,
) error {
	return CreateBatch(ctx, cq.Conn, b)
}

func (cq connQueryer) AddOperation(
	ctx context.Context, op *model.Operation,
) error {
	// The operation insert and its batch counter update must be one
	// transaction, so readers never observe them apart.
	return cq.Conn.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return AddOperation(ctx, tx.(*postgres.Tx), op)
	})
}

func (cq connQueryer) FinishBatch(
	ctx context.Context, correlationID string,
) error {
	return FinishBatch(ctx, cq.Conn, correlationID)
}

func (cq connQueryer) SetBatchTotal(
	ctx context.Context, correlationID string, total int,
) error {
	return SetBatchTotal(ctx, cq.Conn, correlationID, total)
}

func (cq connQueryer) ListOperations(
	ctx context.Context, f model.OperationFilter, page, pageSize int,
) ([]model.Operation, int64, error) {
	return ListOperations(ctx, cq.Conn, f, page, pageSize)
}

func (cq connQueryer) ListBatches(
	ctx context.Context, page, pageSize int,
) ([]model.Batch, int64, error) {
	return ListBatches(ctx, cq.Conn, page, pageSize)
}

func (cq connQueryer) Summary(
	ctx context.Context,
) (*model.Summary, error) {
	return Summary(ctx, cq.Conn)
}

func (cq connQueryer) Retention(
	ctx context.Context,
) (*model.RetentionPolicy, error) {
	return Retention(ctx, cq.Conn)
}

func (cq connQueryer) UpdateRetention(
	ctx context.Context, maxBytes *int64, maxAgeDays *int,
) (*model.RetentionPolicy, error) {
	return UpdateRetention(ctx, cq.Conn, maxBytes, maxAgeDays)
}

func (cq connQueryer) PurgeTTL(
	ctx context.Context, cutoff time.Time,
) (int64, error) {
	var deleted int64
	err := cq.Conn.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		deleted, err = PurgeTTL(ctx, tx.(*postgres.Tx), cutoff)
		return err
	})
	return deleted, err
}

func (cq connQueryer) PurgeOldest(
	ctx context.Context, limit int,
) (int64, error) {
	return PurgeOldest(ctx, cq.Conn, limit)
}

func (cq connQueryer) DBSize(ctx context.Context) (int64, error) {
	return DBSize(ctx, cq.Conn)
}

func (cq connQueryer) Vacuum(ctx context.Context) (bool, error) {
	return Vacuum(ctx, cq.Conn)
}

type txQueryer struct {
	*postgres.Tx
}

// Tx takes a Tx interface instance, unwraps it as required, and
// returns an AuditTxQueryer interface running all audit operations in
// that enclosing transaction.
func (audit *Repo) Tx(tx repo.Tx) repo.AuditTxQueryer {
	tt := tx.(*postgres.Tx)
	return txQueryer{Tx: tt}
}

func (tq txQueryer) CreateBatch(
	ctx context.Context, b *model.Batch,
) error {
	return CreateBatch(ctx, tq.Tx, b)
}

func (tq txQueryer) AddOperation(
	ctx context.Context, op *model.Operation,
) error {
	return AddOperation(ctx, tq.Tx, op)
}

func (tq txQueryer) FinishBatch(
	ctx context.Context, correlationID string,
) error {
	return FinishBatch(ctx, tq.Tx, correlationID)
}

func (tq txQueryer) SetBatchTotal(
	ctx context.Context, correlationID string, total int,
) error {
	return SetBatchTotal(ctx, tq.Tx, correlationID, total)
}

func (tq txQueryer) ListOperations(
	ctx context.Context, f model.OperationFilter, page, pageSize int,
) ([]model.Operation, int64, error) {
	return ListOperations(ctx, tq.Tx, f, page, pageSize)
}

func (tq txQueryer) ListBatches(
	ctx context.Context, page, pageSize int,
) ([]model.Batch, int64, error) {
	return ListBatches(ctx, tq.Tx, page, pageSize)
}

func (tq txQueryer) Summary(
	ctx context.Context,
) (*model.Summary, error) {
	return Summary(ctx, tq.Tx)
}

func (tq txQueryer) Retention(
	ctx context.Context,
) (*model.RetentionPolicy, error) {
	return Retention(ctx, tq.Tx)
}

func (tq txQueryer) UpdateRetention(
	ctx context.Context, maxBytes *int64, maxAgeDays *int,
) (*model.RetentionPolicy, error) {
	return UpdateRetention(ctx, tq.Tx, maxBytes, maxAgeDays)
}

func (tq txQueryer) PurgeTTL(
	ctx context.Context, cutoff time.Time,
) (int64, error) {
	return PurgeTTL(ctx, tq.Tx, cutoff)
}

func (tq txQueryer) PurgeOldest(
	ctx context.Context, limit int,
) (int64, error) {
	return PurgeOldest(ctx, tq.Tx, limit)
}

func (tq txQueryer) DBSize(ctx context.Context) (int64, error) {
	return DBSize(ctx, tq.Tx)
}
