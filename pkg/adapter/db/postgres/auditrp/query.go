// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package auditrp

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scramsync/scramsync/pkg/adapter/db/postgres"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
)

type gBatch struct {
	ID            int64 `gorm:"primaryKey"`
	CorrelationID string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Source        string
	ItemsTotal    int
	ItemsSuccess  int
	ItemsError    int
}

func (gb *gBatch) TableName() string {
	return "sync_batch"
}

func (gb *gBatch) Model() model.Batch {
	return model.Batch{
		ID:            gb.ID,
		CorrelationID: gb.CorrelationID,
		StartedAt:     gb.StartedAt,
		FinishedAt:    gb.FinishedAt,
		Source:        model.BatchSource(gb.Source),
		ItemsTotal:    gb.ItemsTotal,
		ItemsSuccess:  gb.ItemsSuccess,
		ItemsError:    gb.ItemsError,
	}
}

type gOperation struct {
	ID            int64 `gorm:"primaryKey"`
	CorrelationID string
	OccurredAt    time.Time
	Realm         string
	ClusterID     string
	Principal     string
	OpType        string
	Mechanism     string
	Result        string
	ErrorCode     string
	ErrorMessage  string
	DurationMs    int64
}

func (gop *gOperation) TableName() string {
	return "sync_operation"
}

func (gop *gOperation) Model() model.Operation {
	return model.Operation{
		ID:            gop.ID,
		CorrelationID: gop.CorrelationID,
		OccurredAt:    gop.OccurredAt,
		Realm:         gop.Realm,
		ClusterID:     gop.ClusterID,
		Principal:     gop.Principal,
		OpType:        model.OpType(gop.OpType),
		Mechanism:     model.Mechanism(gop.Mechanism),
		Result:        model.OpResult(gop.Result),
		ErrorCode:     gop.ErrorCode,
		ErrorMessage:  gop.ErrorMessage,
		DurationMs:    gop.DurationMs,
	}
}

type gRetention struct {
	ID            int16 `gorm:"primaryKey"`
	MaxBytes      *int64
	MaxAgeDays    *int
	ApproxDBBytes int64 `gorm:"column:approx_db_bytes"`
	UpdatedAt     time.Time
}

func (gr *gRetention) TableName() string {
	return "retention_state"
}

func (gr *gRetention) Model() *model.RetentionPolicy {
	return &model.RetentionPolicy{
		MaxBytes:      gr.MaxBytes,
		MaxAgeDays:    gr.MaxAgeDays,
		ApproxDBBytes: gr.ApproxDBBytes,
		UpdatedAt:     gr.UpdatedAt,
	}
}

// CreateBatch inserts a batch row and fills the generated identity
// back into b.
func CreateBatch[Q postgres.Queryer](
	ctx context.Context, q Q, b *model.Batch,
) error {
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	gb := gBatch{
		CorrelationID: b.CorrelationID,
		StartedAt:     b.StartedAt,
		FinishedAt:    b.FinishedAt,
		Source:        string(b.Source),
		ItemsTotal:    b.ItemsTotal,
		ItemsSuccess:  b.ItemsSuccess,
		ItemsError:    b.ItemsError,
	}
	gdb := q.GORM(ctx)
	if err := gdb.Create(&gb).Error; err != nil {
		return fmt.Errorf("query: %w", err)
	}
	b.ID = gb.ID
	return nil
}

// AddOperation inserts one operation row and bumps the success/error
// counter of its owning batch. Callers must run it in a transaction
// scope so the two writes commit atomically.
func AddOperation(
	ctx context.Context, tx *postgres.Tx, op *model.Operation,
) error {
	if op.OccurredAt.IsZero() {
		op.OccurredAt = time.Now().UTC()
	}
	gop := gOperation{
		CorrelationID: op.CorrelationID,
		OccurredAt:    op.OccurredAt,
		Realm:         op.Realm,
		ClusterID:     op.ClusterID,
		Principal:     op.Principal,
		OpType:        string(op.OpType),
		Mechanism:     string(op.Mechanism),
		Result:        string(op.Result),
		ErrorCode:     op.ErrorCode,
		ErrorMessage:  model.TruncateErrorMessage(op.ErrorMessage),
		DurationMs:    op.DurationMs,
	}
	gdb := tx.GORM(ctx)
	if err := gdb.Create(&gop).Error; err != nil {
		return fmt.Errorf("query: %w", err)
	}
	op.ID = gop.ID
	var counter string
	switch op.Result {
	case model.ResultSuccess:
		counter = "items_success"
	case model.ResultError:
		counter = "items_error"
	default:
		// Skipped items keep the batch counters untouched, but the
		// owning batch must still exist.
		var n int64
		err := gdb.Model(&gBatch{}).Where(
			"correlation_id=?", op.CorrelationID,
		).Count(&n).Error
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		if n != 1 {
			return cerr.NotFound(fmt.Errorf(
				"no batch with correlation id %q", op.CorrelationID,
			))
		}
		return nil
	}
	res := gdb.Model(&gBatch{}).Where(
		"correlation_id=?", op.CorrelationID,
	).Update(counter, gorm.Expr(counter+" + 1"))
	if err := res.Error; err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if res.RowsAffected != 1 {
		return cerr.NotFound(fmt.Errorf(
			"no batch with correlation id %q", op.CorrelationID,
		))
	}
	return nil
}

// FinishBatch stamps finishedAt on an in-progress batch. Finishing an
// already finished (or unknown) batch is reported as a not-found
// condition, so a bug retrying the completion cannot move the
// timestamp of an immutable batch.
func FinishBatch[Q postgres.Queryer](
	ctx context.Context, q Q, correlationID string,
) error {
	gdb := q.GORM(ctx)
	res := gdb.Model(&gBatch{}).Where(
		"correlation_id=? AND finished_at IS NULL", correlationID,
	).Update("finished_at", time.Now().UTC())
	if err := res.Error; err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if res.RowsAffected != 1 {
		return cerr.NotFound(fmt.Errorf(
			"no unfinished batch with correlation id %q", correlationID,
		))
	}
	return nil
}

// SetBatchTotal updates itemsTotal of an in-progress batch.
func SetBatchTotal[Q postgres.Queryer](
	ctx context.Context, q Q, correlationID string, total int,
) error {
	gdb := q.GORM(ctx)
	res := gdb.Model(&gBatch{}).Where(
		"correlation_id=? AND finished_at IS NULL", correlationID,
	).Update("items_total", total)
	if err := res.Error; err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if res.RowsAffected != 1 {
		return cerr.NotFound(fmt.Errorf(
			"no unfinished batch with correlation id %q", correlationID,
		))
	}
	return nil
}

func operationsQuery(
	gdb *gorm.DB, f model.OperationFilter,
) *gorm.DB {
	q := gdb.Model(&gOperation{})
	if f.StartTime != nil {
		q = q.Where("occurred_at >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		q = q.Where("occurred_at < ?", *f.EndTime)
	}
	if f.Principal != "" {
		q = q.Where("principal=?", f.Principal)
	}
	if f.OpType != "" {
		q = q.Where("op_type=?", string(f.OpType))
	}
	if f.Result != "" {
		q = q.Where("result=?", string(f.Result))
	}
	return q
}

// ListOperations returns one page of matching operations, newest
// first, plus the total match count. Pages are numbered from one.
func ListOperations[Q postgres.Queryer](
	ctx context.Context, q Q,
	f model.OperationFilter, page, pageSize int,
) ([]model.Operation, int64, error) {
	gdb := q.GORM(ctx)
	var total int64
	if err := operationsQuery(gdb, f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	var gops []gOperation
	err := operationsQuery(gdb, f).
		Order("occurred_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&gops).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	ops := make([]model.Operation, len(gops))
	for i := range gops {
		ops[i] = gops[i].Model()
	}
	return ops, total, nil
}

// ListBatches returns one page of batches, newest first, plus the
// total count. Pages are numbered from one.
func ListBatches[Q postgres.Queryer](
	ctx context.Context, q Q, page, pageSize int,
) ([]model.Batch, int64, error) {
	gdb := q.GORM(ctx)
	var total int64
	err := gdb.Model(&gBatch{}).Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	var gbs []gBatch
	err = gdb.Model(&gBatch{}).
		Order("started_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&gbs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	batches := make([]model.Batch, len(gbs))
	for i := range gbs {
		batches[i] = gbs[i].Model()
	}
	return batches, total, nil
}

// Summary aggregates the operations of the trailing hour. An empty
// window yields all-zero aggregates rather than SQL NULLs.
func Summary[Q postgres.Queryer](
	ctx context.Context, q Q,
) (*model.Summary, error) {
	start := time.Now().UTC().Add(-time.Hour)
	var row struct {
		Ops       int64
		ErrorRate float64
		P95       float64
		P99       float64
	}
	gdb := q.GORM(ctx)
	err := gdb.Raw(`SELECT
			COUNT(*) AS ops,
			COALESCE(
				AVG(CASE WHEN result='ERROR' THEN 1.0 ELSE 0.0 END), 0
			) AS error_rate,
			COALESCE(
				PERCENTILE_CONT(0.95)
					WITHIN GROUP (ORDER BY duration_ms), 0
			) AS p95,
			COALESCE(
				PERCENTILE_CONT(0.99)
					WITHIN GROUP (ORDER BY duration_ms), 0
			) AS p99
		FROM sync_operation WHERE occurred_at >= ?`, start,
	).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &model.Summary{
		WindowStart:  start,
		OpsPerHour:   row.Ops,
		ErrorRate:    row.ErrorRate,
		LatencyP95Ms: row.P95,
		LatencyP99Ms: row.P99,
	}, nil
}

// Retention reads the singleton retention row.
func Retention[Q postgres.Queryer](
	ctx context.Context, q Q,
) (*model.RetentionPolicy, error) {
	var gr gRetention
	gdb := q.GORM(ctx)
	err := gdb.Where("id=?", 1).Take(&gr).Error
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return gr.Model(), nil
}

// UpdateRetention replaces both limits of the singleton retention row
// in one statement and returns the updated row.
func UpdateRetention[Q postgres.Queryer](
	ctx context.Context, q Q, maxBytes *int64, maxAgeDays *int,
) (*model.RetentionPolicy, error) {
	gdb := q.GORM(ctx)
	var grs []gRetention
	res := gdb.Model(&grs).Clauses(clause.Returning{}).Where(
		"id=?", 1,
	).Updates(map[string]any{
		"max_bytes":    maxBytes,
		"max_age_days": maxAgeDays,
		"updated_at":   time.Now().UTC(),
	})
	if err := res.Error; err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if n := res.RowsAffected; n != 1 {
		return nil, cerr.NotFound(
			fmt.Errorf("expected one retention row, but got %d", n),
		)
	}
	return grs[0].Model(), nil
}

// PurgeTTL deletes operations which occurred before the cutoff, then
// the finished batches which no longer own any operation. Callers must
// run it in a transaction scope.
func PurgeTTL(
	ctx context.Context, tx *postgres.Tx, cutoff time.Time,
) (int64, error) {
	gdb := tx.GORM(ctx)
	res := gdb.Where("occurred_at < ?", cutoff).Delete(&gOperation{})
	if err := res.Error; err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	deleted := res.RowsAffected
	err := gdb.Where(
		`finished_at IS NOT NULL AND finished_at < ? AND NOT EXISTS (
			SELECT 1 FROM sync_operation o
			WHERE o.correlation_id = sync_batch.correlation_id
		)`, cutoff,
	).Delete(&gBatch{}).Error
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	return deleted, nil
}

// PurgeOldest deletes the oldest limit operations by occurredAt.
func PurgeOldest[Q postgres.Queryer](
	ctx context.Context, q Q, limit int,
) (int64, error) {
	res := q.GORM(ctx).Exec(`DELETE FROM sync_operation WHERE id IN (
		SELECT id FROM sync_operation
		ORDER BY occurred_at ASC, id ASC LIMIT ?
	)`, limit)
	if err := res.Error; err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	return res.RowsAffected, nil
}

// DBSize probes the current database size and caches it into the
// retention row, so readers of the retention policy see a recent
// approximation without their own probe.
func DBSize[Q postgres.Queryer](
	ctx context.Context, q Q,
) (int64, error) {
	gdb := q.GORM(ctx)
	var size int64
	err := gdb.Raw(
		"SELECT pg_database_size(current_database())",
	).Scan(&size).Error
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	err = gdb.Model(&gRetention{}).Where("id=?", 1).
		Update("approx_db_bytes", size).Error
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	return size, nil
}

// Vacuum reclaims the storage freed by previous purges. VACUUM cannot
// run inside a transaction block, hence the connection-only scope.
func Vacuum(ctx context.Context, c *postgres.Conn) (bool, error) {
	if err := c.GORM(ctx).Exec("VACUUM sync_operation, sync_batch").Error; err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return true, nil
}
