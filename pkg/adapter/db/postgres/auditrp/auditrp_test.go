// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package auditrp_test

import (
	"context"
	"testing"
	"time"

	"github.com/bitcomplete/sqltestutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/scramsync/scramsync/internal/test/dbcontainer"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres/auditrp"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres/schema"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

type IntegrationAuditTestSuite struct {
	suite.Suite

	Ctx   context.Context
	Pg    *sqltestutil.PostgresContainer
	Pool  *postgres.Pool
	Audit repo.Audit
}

func TestIntegrationAuditTestSuite(t *testing.T) {
	ctx := context.Background()
	pg, pool, dfrs, ok := dbcontainer.New(ctx, 60*time.Second, t)
	for _, f := range dfrs {
		defer f()
	}
	if !ok {
		return // errors are already logged
	}
	suite.Run(t, &IntegrationAuditTestSuite{
		Ctx:   ctx,
		Pg:    pg,
		Pool:  pool,
		Audit: auditrp.New(),
	})
}

func (iats *IntegrationAuditTestSuite) SetupSuite() {
	err := iats.Pool.Conn(
		iats.Ctx, func(ctx context.Context, c repo.Conn) error {
			return c.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
				return schema.Init(ctx, tx)
			})
		},
	)
	iats.Require().NoError(err, "failed to initialize audit schema")
}

// conn runs f with a connection-scoped audit queryer.
func (iats *IntegrationAuditTestSuite) conn(
	f func(ctx context.Context, aq repo.AuditConnQueryer) error,
) error {
	return iats.Pool.Conn(
		iats.Ctx, func(ctx context.Context, c repo.Conn) error {
			return f(ctx, iats.Audit.Conn(c))
		},
	)
}

// newBatch commits a fresh batch and returns its correlation id.
func (iats *IntegrationAuditTestSuite) newBatch(
	source model.BatchSource,
) *model.Batch {
	b := &model.Batch{
		CorrelationID: uuid.NewString(),
		Source:        source,
	}
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			return aq.CreateBatch(ctx, b)
		},
	)
	iats.Require().NoError(err, "failed to create batch")
	iats.Require().NotZero(b.ID, "batch identity must be filled")
	return b
}

func (iats *IntegrationAuditTestSuite) addOp(
	corrID string, principal string, result model.OpResult,
) {
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			return aq.AddOperation(ctx, &model.Operation{
				CorrelationID: corrID,
				Realm:         "master",
				ClusterID:     "test-cluster",
				Principal:     principal,
				OpType:        model.OpScramUpsert,
				Mechanism:     model.SCRAMSHA256,
				Result:        result,
				DurationMs:    12,
			})
		},
	)
	iats.Require().NoError(err, "failed to add operation")
}

func (iats *IntegrationAuditTestSuite) TestBatchLifecycle() {
	b := iats.newBatch(model.SourceManual)
	iats.addOp(b.CorrelationID, "alice", model.ResultSuccess)
	iats.addOp(b.CorrelationID, "bob", model.ResultError)
	iats.addOp(b.CorrelationID, "carol", model.ResultSkipped)

	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			if err := aq.SetBatchTotal(ctx, b.CorrelationID, 3); err != nil {
				return err
			}
			return aq.FinishBatch(ctx, b.CorrelationID)
		},
	)
	iats.Require().NoError(err)

	var got *model.Batch
	err = iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			batches, _, err := aq.ListBatches(ctx, 1, 100)
			for i := range batches {
				if batches[i].CorrelationID == b.CorrelationID {
					got = &batches[i]
				}
			}
			return err
		},
	)
	iats.Require().NoError(err)
	iats.Require().NotNil(got, "created batch must be listed")
	iats.True(got.Complete(), "finished batch must be complete")
	iats.Equal(3, got.ItemsTotal)
	iats.Equal(1, got.ItemsSuccess, "skipped must not count as success")
	iats.Equal(1, got.ItemsError)

	// A finished batch is immutable; re-finishing must be rejected.
	err = iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			return aq.FinishBatch(ctx, b.CorrelationID)
		},
	)
	iats.Equal(cerr.CodeNotFound, cerr.Classify(err))
}

func (iats *IntegrationAuditTestSuite) TestAddOperationUnknownBatch() {
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			return aq.AddOperation(ctx, &model.Operation{
				CorrelationID: uuid.NewString(),
				Realm:         "master",
				ClusterID:     "test-cluster",
				Principal:     "nobody",
				OpType:        model.OpScramUpsert,
				Result:        model.ResultSuccess,
			})
		},
	)
	iats.Equal(cerr.CodeNotFound, cerr.Classify(err))
}

func (iats *IntegrationAuditTestSuite) TestListOperationsFilters() {
	b := iats.newBatch(model.SourceScheduled)
	iats.addOp(b.CorrelationID, "dave", model.ResultSuccess)
	iats.addOp(b.CorrelationID, "dave", model.ResultError)
	iats.addOp(b.CorrelationID, "erin", model.ResultSuccess)

	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			ops, total, err := aq.ListOperations(
				ctx, model.OperationFilter{Principal: "dave"}, 1, 10,
			)
			if err != nil {
				return err
			}
			iats.Equal(int64(2), total)
			iats.Len(ops, 2)

			ops, total, err = aq.ListOperations(
				ctx, model.OperationFilter{
					Principal: "dave",
					Result:    model.ResultError,
				}, 1, 10,
			)
			if err != nil {
				return err
			}
			iats.Equal(int64(1), total)
			iats.Require().Len(ops, 1)
			iats.Equal(model.OpScramUpsert, ops[0].OpType)
			iats.Equal("master", ops[0].Realm)
			return nil
		},
	)
	iats.Require().NoError(err)
}

func (iats *IntegrationAuditTestSuite) TestSummaryTrailingHour() {
	b := iats.newBatch(model.SourceScheduled)
	iats.addOp(b.CorrelationID, "frank", model.ResultSuccess)

	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			s, err := aq.Summary(ctx)
			if err != nil {
				return err
			}
			iats.Positive(s.OpsPerHour)
			iats.GreaterOrEqual(s.ErrorRate, 0.0)
			iats.LessOrEqual(s.ErrorRate, 1.0)
			iats.GreaterOrEqual(s.LatencyP99Ms, s.LatencyP95Ms)
			return nil
		},
	)
	iats.Require().NoError(err)
}

func (iats *IntegrationAuditTestSuite) TestRetentionRoundTrip() {
	maxBytes := int64(1) << 30
	maxAgeDays := 30
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			p, err := aq.UpdateRetention(ctx, &maxBytes, &maxAgeDays)
			if err != nil {
				return err
			}
			iats.Require().NotNil(p.MaxBytes)
			iats.Equal(maxBytes, *p.MaxBytes)
			iats.Require().NotNil(p.MaxAgeDays)
			iats.Equal(maxAgeDays, *p.MaxAgeDays)

			p, err = aq.Retention(ctx)
			if err != nil {
				return err
			}
			iats.Require().NotNil(p.MaxBytes)
			iats.Equal(maxBytes, *p.MaxBytes)

			// Clearing both limits makes retention unbounded again.
			p, err = aq.UpdateRetention(ctx, nil, nil)
			if err != nil {
				return err
			}
			iats.Nil(p.MaxBytes)
			iats.Nil(p.MaxAgeDays)
			return nil
		},
	)
	iats.Require().NoError(err)
}

func (iats *IntegrationAuditTestSuite) TestUpdateRetentionMissingRow() {
	maxBytes := int64(1) << 20
	err := iats.Pool.Conn(
		iats.Ctx, func(ctx context.Context, c repo.Conn) error {
			_, derr := c.Exec(
				ctx, "DELETE FROM retention_state WHERE id=1",
			)
			iats.Require().NoError(derr)
			_, uerr := iats.Audit.Conn(c).UpdateRetention(
				ctx, &maxBytes, nil,
			)
			iats.Equal(cerr.CodeNotFound, cerr.Classify(uerr))
			return nil
		},
	)
	iats.Require().NoError(err)
	// restore the singleton seed for the other tests
	err = iats.Pool.Conn(
		iats.Ctx, func(ctx context.Context, c repo.Conn) error {
			return c.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
				return schema.Init(ctx, tx)
			})
		},
	)
	iats.Require().NoError(err)
}

func (iats *IntegrationAuditTestSuite) TestPurge() {
	b := iats.newBatch(model.SourceScheduled)
	iats.addOp(b.CorrelationID, "grace", model.ResultSuccess)
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			return aq.FinishBatch(ctx, b.CorrelationID)
		},
	)
	iats.Require().NoError(err)

	err = iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			// A cutoff in the past purges nothing.
			n, err := aq.PurgeTTL(
				ctx, time.Now().Add(-24*time.Hour),
			)
			if err != nil {
				return err
			}
			iats.Zero(n)

			// A cutoff in the future purges this (and any previous)
			// operation and drops the emptied finished batch.
			n, err = aq.PurgeTTL(ctx, time.Now().Add(time.Hour))
			if err != nil {
				return err
			}
			iats.Positive(n)

			batches, _, err := aq.ListBatches(ctx, 1, 1000)
			if err != nil {
				return err
			}
			for _, gb := range batches {
				iats.NotEqual(b.CorrelationID, gb.CorrelationID,
					"emptied finished batch must be dropped")
			}
			return nil
		},
	)
	iats.Require().NoError(err)
}

func (iats *IntegrationAuditTestSuite) TestPurgeOldestAndDBSize() {
	b := iats.newBatch(model.SourceScheduled)
	for i := 0; i < 5; i++ {
		iats.addOp(b.CorrelationID, "heidi", model.ResultSuccess)
	}
	err := iats.conn(
		func(ctx context.Context, aq repo.AuditConnQueryer) error {
			n, err := aq.PurgeOldest(ctx, 2)
			if err != nil {
				return err
			}
			iats.Equal(int64(2), n)

			size, err := aq.DBSize(ctx)
			if err != nil {
				return err
			}
			iats.Positive(size)
			p, err := aq.Retention(ctx)
			if err != nil {
				return err
			}
			iats.Equal(size, p.ApproxDBBytes,
				"size probe must be cached in the retention row")

			ran, err := aq.Vacuum(ctx)
			if err != nil {
				return err
			}
			iats.True(ran)
			return nil
		},
	)
	iats.Require().NoError(err)
}
