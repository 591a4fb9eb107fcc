// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package reconuc contains the reconciliation UseCase which drives one
// full reconciliation run: enumerate the IdP users and the broker
// SCRAM principals, compute the sync plan, execute it in bounded alter
// batches, and record a durable batch row with one operation row per
// executed item.
package reconuc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/broker"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/idp"
	"github.com/scramsync/scramsync/pkg/core/log"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
	"github.com/scramsync/scramsync/pkg/core/scram"
)

// DefaultAlterBatchSize bounds how many principals one broker alter
// round trip may carry.
const DefaultAlterBatchSize = 100

// passwordLen is the random password length in bytes for reconciled
// principals. The password is never persisted; only its verifier
// leaves the process.
const passwordLen = 24

// Observer receives the per-item and per-run outcomes, so an adapter
// layer (such as Prometheus collectors) can count them without the use
// case depending on a metrics framework.
type Observer interface {
	ObserveOperation(op *model.Operation)
	ObserveReconciliation(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(*model.Operation) {}
func (nopObserver) ObserveReconciliation(string)      {}

// UseCase represents the reconciliation use case. It holds a database
// connection pool, the audit repository instance (to be guided with
// the DB pool), the broker SCRAM client, the IdP user enumerator, the
// SCRAM verifier generator, and the reconciliation settings.
type UseCase struct {
	pool    repo.Pool
	auditrp repo.Audit
	brk     broker.Client
	enum    idp.Enumerator
	gen     scram.Generator

	breakers       *breaker.Set
	obs            Observer
	postBatch      func()
	realm          string
	clusterID      string
	mechanism      model.Mechanism
	iterations     int
	alwaysUpsert   bool
	excluded       []string
	alterBatchSize int

	running atomic.Bool
}

// New instantiates a reconciliation use case.
// Required collaborators are passed individually, so the caller has to
// provision them and whenever they change, the caller will notice and
// fix them due to a compilation error. Optional parameters are passed
// as a series of functional options in order to facilitate their
// validation and flexibility.
func New(
	p repo.Pool, a repo.Audit, b broker.Client,
	e idp.Enumerator, g scram.Generator, opts ...Option,
) (*UseCase, error) {
	uc := &UseCase{
		pool:    p,
		auditrp: a,
		brk:     b,
		enum:    e,
		gen:     g,
	}
	for _, opt := range opts {
		if err := opt(uc); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	// now, deal with defaults
	if uc.obs == nil {
		uc.obs = nopObserver{}
	}
	if uc.mechanism == "" {
		uc.mechanism = model.SCRAMSHA256
	}
	if uc.iterations == 0 {
		uc.iterations = model.MinIterations
	}
	if uc.alterBatchSize == 0 {
		uc.alterBatchSize = DefaultAlterBatchSize
	}
	if uc.clusterID == "" {
		uc.clusterID = "default"
	}
	return uc, nil
}

// Running reports whether a reconciliation run is currently in
// progress, for the status endpoint.
func (recon *UseCase) Running() bool {
	return recon.running.Load()
}

// Run drives one reconciliation run from the given source. At most one
// run may be in progress per agent instance; a second request while
// one is running fails with an ALREADY_RUNNING conflict, neither
// waiting nor queueing.
//
// Individual item errors are recorded as ERROR operation rows and do
// not abort the run. An outer failure (enumeration or describe)
// completes the batch immediately and surfaces through both the error
// and the FatalError field of the result.
func (recon *UseCase) Run(
	ctx context.Context, source model.BatchSource,
) (*model.ReconciliationResult, error) {
	if !recon.running.CompareAndSwap(false, true) {
		return nil, cerr.AlreadyRunning(
			errors.New("a reconciliation run is already in progress"),
		)
	}
	defer recon.running.Store(false)

	started := time.Now()
	res := &model.ReconciliationResult{
		CorrelationID: uuid.NewString(),
	}
	batch := &model.Batch{
		CorrelationID: res.CorrelationID,
		StartedAt:     started.UTC(),
		Source:        source,
	}
	// The batch row must be committed before any external I/O, so an
	// aborted run still leaves a durable trace.
	err := recon.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		return recon.auditrp.Conn(c).CreateBatch(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("creating batch row: %w", err)
	}
	log.Info(ctx, "reconciliation run started",
		log.CorrelationID(res.CorrelationID),
		slog.String("source", string(source)),
	)

	plan, err := recon.snapshotAndDiff(ctx)
	if err != nil {
		recon.abort(ctx, res, err)
		res.DurationMs = time.Since(started).Milliseconds()
		return res, err
	}
	err = recon.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		return recon.auditrp.Conn(c).SetBatchTotal(
			ctx, res.CorrelationID, plan.Size(),
		)
	})
	if err != nil {
		recon.abort(ctx, res, err)
		res.DurationMs = time.Since(started).Milliseconds()
		return res, err
	}

	recon.executePlan(ctx, res, plan)

	err = recon.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		return recon.auditrp.Conn(c).FinishBatch(ctx, res.CorrelationID)
	})
	if err != nil {
		return res, fmt.Errorf("finishing batch: %w", err)
	}
	res.DurationMs = time.Since(started).Milliseconds()
	recon.obs.ObserveReconciliation("success")
	log.Info(ctx, "reconciliation run finished",
		log.CorrelationID(res.CorrelationID),
		slog.Int("success", res.Success),
		slog.Int("error", res.Error),
		slog.Int64("duration_ms", res.DurationMs),
	)
	if recon.postBatch != nil {
		recon.postBatch()
	}
	return res, nil
}

// snapshotAndDiff takes the IdP and broker snapshots through their
// dependency breakers and computes the sync plan.
func (recon *UseCase) snapshotAndDiff(
	ctx context.Context,
) (model.SyncPlan, error) {
	var users []model.User
	err := recon.throughBreaker(breakerIdP, func() error {
		users = users[:0] // a retried enumeration starts over
		return recon.enum.FetchAll(
			ctx, func(_ context.Context, u model.User) error {
				users = append(users, u)
				return nil
			},
		)
	})
	if err != nil {
		return model.SyncPlan{}, fmt.Errorf("enumerating IdP users: %w", err)
	}
	var principals map[string][]model.Mechanism
	err = recon.throughBreaker(breakerBroker, func() error {
		var err error
		principals, err = recon.brk.DescribeAll(ctx)
		return err
	})
	if err != nil {
		return model.SyncPlan{}, fmt.Errorf(
			"describing broker principals: %w", err,
		)
	}
	return Diff(users, principals, model.DiffOptions{
		AlwaysUpsert: recon.alwaysUpsert,
		Excluded:     recon.excluded,
	}), nil
}

// executePlan issues the planned alterations in bounded batches and
// records one operation row per item.
func (recon *UseCase) executePlan(
	ctx context.Context, res *model.ReconciliationResult,
	plan model.SyncPlan,
) {
	for start := 0; start < len(plan.Upserts); start += recon.alterBatchSize {
		end := min(start+recon.alterBatchSize, len(plan.Upserts))
		recon.alterChunk(ctx, res, plan.Upserts[start:end], nil)
	}
	for start := 0; start < len(plan.Deletes); start += recon.alterBatchSize {
		end := min(start+recon.alterBatchSize, len(plan.Deletes))
		recon.alterChunk(ctx, res, nil, plan.Deletes[start:end])
	}
}

// alterChunk builds one bounded alter request from upserts or deletes,
// submits it, and resolves every future into an operation row.
func (recon *UseCase) alterChunk(
	ctx context.Context, res *model.ReconciliationResult,
	upserts []model.User, deletes []model.Principal,
) {
	alterations := make([]broker.Alteration, 0, len(upserts)+len(deletes))
	opTypes := make(map[string]model.OpType, len(upserts)+len(deletes))
	// Items which fail before submission (verifier derivation) are
	// recorded directly and never reach the broker.
	failed := make(map[string]error)
	for _, u := range upserts {
		opTypes[u.Username] = model.OpScramUpsert
		v, err := recon.freshVerifier()
		if err != nil {
			failed[u.Username] = err
			continue
		}
		alterations = append(alterations, broker.Alteration{
			Principal: model.Principal{
				Realm: recon.realm, Name: u.Username,
			},
			Verifier: v,
		})
	}
	for _, d := range deletes {
		opTypes[d.Name] = model.OpScramDelete
		alterations = append(alterations, broker.Alteration{
			Principal: model.Principal{Realm: recon.realm, Name: d.Name},
			Delete:    true,
			Mechanism: recon.mechanism,
		})
	}

	submitted := time.Now()
	var futures map[string]broker.Future
	var submitErr error
	if len(alterations) > 0 {
		submitErr = recon.throughBreaker(breakerBroker, func() error {
			var err error
			futures, err = recon.brk.Alter(ctx, alterations)
			return err
		})
	}

	err := recon.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		q := recon.auditrp.Conn(c)
		for name, genErr := range failed {
			recon.record(ctx, q, res, name, opTypes[name], 0, genErr)
		}
		for _, a := range alterations {
			name := a.Principal.Name
			itemErr := submitErr
			if itemErr == nil {
				itemErr = futures[name].Wait(ctx)
			}
			recon.record(
				ctx, q, res, name, opTypes[name],
				time.Since(submitted).Milliseconds(), itemErr,
			)
		}
		return nil
	})
	if err != nil {
		log.Error(ctx, "recording operation rows",
			log.CorrelationID(res.CorrelationID), log.Err("error", err),
		)
	}
}

// record appends one operation row and updates the in-memory totals.
// A failure to persist the row is logged and counted as an internal
// error, but does not abort the run.
func (recon *UseCase) record(
	ctx context.Context, q repo.AuditConnQueryer,
	res *model.ReconciliationResult,
	principal string, opType model.OpType,
	durationMs int64, itemErr error,
) {
	op := &model.Operation{
		CorrelationID: res.CorrelationID,
		OccurredAt:    time.Now().UTC(),
		Realm:         recon.realm,
		ClusterID:     recon.clusterID,
		Principal:     principal,
		OpType:        opType,
		Mechanism:     recon.mechanism,
		Result:        model.ResultSuccess,
		DurationMs:    durationMs,
	}
	if opType == model.OpScramDelete {
		op.Mechanism = ""
	}
	if itemErr != nil {
		op.Result = model.ResultError
		op.ErrorCode = string(cerr.Classify(itemErr))
		op.ErrorMessage = model.TruncateErrorMessage(itemErr.Error())
	}
	if err := q.AddOperation(ctx, op); err != nil {
		log.Error(ctx, "appending operation row",
			log.CorrelationID(res.CorrelationID),
			slog.String("principal", principal),
			log.Err("error", err),
		)
		res.Error++
		return
	}
	recon.obs.ObserveOperation(op)
	switch op.Result {
	case model.ResultSuccess:
		res.Success++
	case model.ResultError:
		res.Error++
	default:
		res.Skipped++
	}
}

// freshVerifier derives a verifier from a random 24-byte password.
func (recon *UseCase) freshVerifier() (*model.Verifier, error) {
	buf := make([]byte, passwordLen)
	if _, err := rand.Read(buf); err != nil {
		return nil, cerr.Internal(fmt.Errorf("reading random: %w", err))
	}
	password := base64.RawStdEncoding.EncodeToString(buf)
	for i := range buf {
		buf[i] = 0
	}
	return recon.gen.Generate(password, recon.mechanism, recon.iterations)
}

// abort completes the batch after an outer failure, keeping whatever
// operations were already recorded, and stamps the result with the
// aborting error code.
func (recon *UseCase) abort(
	ctx context.Context, res *model.ReconciliationResult, cause error,
) {
	res.FatalError = string(cerr.Classify(cause))
	recon.obs.ObserveReconciliation("aborted")
	log.Error(ctx, "reconciliation run aborted",
		log.CorrelationID(res.CorrelationID), log.Err("error", cause),
	)
	err := recon.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		return recon.auditrp.Conn(c).FinishBatch(ctx, res.CorrelationID)
	})
	if err != nil {
		log.Error(ctx, "finishing aborted batch",
			log.CorrelationID(res.CorrelationID), log.Err("error", err),
		)
	}
}

type breakerRole int

const (
	breakerIdP breakerRole = iota
	breakerBroker
)

// throughBreaker runs fn through the selected dependency breaker, or
// directly when no breaker set is configured.
func (recon *UseCase) throughBreaker(
	role breakerRole, fn func() error,
) error {
	if recon.breakers == nil {
		return fn()
	}
	b := recon.breakers.IdP
	if role == breakerBroker {
		b = recon.breakers.Broker
	}
	return b.Do(fn)
}
