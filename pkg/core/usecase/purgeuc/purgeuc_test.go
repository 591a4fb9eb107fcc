// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package purgeuc_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/scramsync/internal/test/auditmem"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
	"github.com/scramsync/scramsync/pkg/core/usecase/purgeuc"
)

// addAgedOp seeds one finished batch owning one operation row whose
// occurredAt lies age in the past.
func addAgedOp(
	t *testing.T, store *auditmem.Store, principal string,
	age time.Duration,
) {
	t.Helper()
	ctx := context.Background()
	audit := store.Audit()
	corrID := principal + "-" +
		strconv.FormatInt(time.Now().UnixNano(), 36)
	occurred := time.Now().UTC().Add(-age)
	err := store.Pool().Conn(ctx, func(
		ctx context.Context, c repo.Conn,
	) error {
		q := audit.Conn(c)
		err := q.CreateBatch(ctx, &model.Batch{
			CorrelationID: corrID,
			StartedAt:     occurred,
			Source:        model.SourceScheduled,
			ItemsTotal:    1,
		})
		if err != nil {
			return err
		}
		err = q.AddOperation(ctx, &model.Operation{
			CorrelationID: corrID,
			OccurredAt:    occurred,
			Realm:         "master",
			ClusterID:     "test-cluster",
			Principal:     principal,
			OpType:        model.OpScramUpsert,
			Result:        model.ResultSuccess,
		})
		if err != nil {
			return err
		}
		return q.FinishBatch(ctx, corrID)
	})
	require.NoError(t, err)
}

func newPurger(
	t *testing.T, store *auditmem.Store, opts ...purgeuc.Option,
) *purgeuc.UseCase {
	t.Helper()
	uc, err := purgeuc.New(store.Pool(), store.Audit(), opts...)
	require.NoError(t, err)
	return uc
}

func TestPurgeNoLimitsIsNoOp(t *testing.T) {
	store := auditmem.New()
	addAgedOp(t, store, "p", 100*24*time.Hour)
	uc := newPurger(t, store)

	res, err := uc.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TTLDeleted)
	assert.Zero(t, res.SizeDeleted)
	assert.False(t, res.Skipped)
	assert.Len(t, store.Operations(), 1,
		"unbounded retention must not delete anything")
}

func TestPurgeTTLHonorsCutoff(t *testing.T) {
	store := auditmem.New()
	addAgedOp(t, store, "old", 40*24*time.Hour)
	addAgedOp(t, store, "young", 10*24*time.Hour)
	maxAge := 30
	store.Policy.MaxAgeDays = &maxAge

	uc := newPurger(t, store)
	res, err := uc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TTLDeleted)

	ops := store.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "young", ops[0].Principal)
}

func TestPurgeBySizeLoopsUntilUnderBudget(t *testing.T) {
	store := auditmem.New()
	for i := 0; i < 10; i++ {
		// p0 is the oldest row, p9 the youngest.
		addAgedOp(t, store, "p"+strconv.Itoa(i),
			time.Duration(10-i)*time.Minute)
	}
	store.BaseBytes = 100
	store.PerOpBytes = 10 // 200 bytes with all 10 rows present
	maxBytes := int64(140)
	store.Policy.MaxBytes = &maxBytes

	uc := newPurger(t, store, purgeuc.WithPurgeBatch(3))
	res, err := uc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.SizeDeleted,
		"two 3-row rounds reach 140 bytes; no third round")
	assert.True(t, res.Vacuumed)
	assert.Equal(t, 1, store.Vacuumed)

	// The oldest rows go first.
	survivors := map[string]bool{}
	for _, op := range store.Operations() {
		survivors[op.Principal] = true
	}
	assert.Equal(t, map[string]bool{
		"p6": true, "p7": true, "p8": true, "p9": true,
	}, survivors)
}

func TestPurgeCachesDBSize(t *testing.T) {
	store := auditmem.New()
	addAgedOp(t, store, "p", time.Minute)
	store.BaseBytes = 50
	store.PerOpBytes = 10
	maxBytes := int64(1000)
	store.Policy.MaxBytes = &maxBytes

	uc := newPurger(t, store)
	_, err := uc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(60), store.Policy.ApproxDBBytes)
	assert.False(t, store.Policy.UpdatedAt.IsZero())
}

func TestPurgeOverlapSkips(t *testing.T) {
	store := auditmem.New()
	uc := newPurger(t, store)

	// Sequential purges never skip.
	res, err := uc.Purge(context.Background())
	require.NoError(t, err)
	require.False(t, res.Skipped)

	// Race a batch of concurrent purges: each either runs or skips
	// cleanly, and at least one must have run.
	const n = 8
	results := make(chan purgeuc.Result, n)
	for i := 0; i < n; i++ {
		go func() {
			r, err := uc.Purge(context.Background())
			assert.NoError(t, err)
			results <- r
		}()
	}
	ran := 0
	for i := 0; i < n; i++ {
		if r := <-results; !r.Skipped {
			ran++
		}
	}
	assert.GreaterOrEqual(t, ran, 1)
}

func TestTriggerRunsAsynchronously(t *testing.T) {
	store := auditmem.New()
	addAgedOp(t, store, "old", 40*24*time.Hour)
	maxAge := 30
	store.Policy.MaxAgeDays = &maxAge

	uc := newPurger(t, store)
	uc.Trigger()
	assert.Eventually(t, func() bool {
		return len(store.Operations()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
