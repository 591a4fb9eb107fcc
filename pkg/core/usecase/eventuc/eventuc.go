// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package eventuc contains the admin event UseCase: a bounded
// in-process queue decoupling event ingestion (the webhook resource)
// from processing, a small worker pool applying the mapped sync
// actions through the broker client, and an exponential-backoff retry
// policy with a terminal audit row once the budget runs out.
package eventuc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
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

// OverflowPolicy selects what a full queue does with a new event.
type OverflowPolicy string

// Supported overflow policies.
const (
	// OverflowReject refuses the new event; Enqueue returns false.
	OverflowReject OverflowPolicy = "REJECT"
	// OverflowDropOldest evicts the queue head and admits the new
	// event; the eviction is counted.
	OverflowDropOldest OverflowPolicy = "DROP_OLDEST"
)

// Validate returns an error if p is not a known overflow policy.
func (p OverflowPolicy) Validate() error {
	switch p {
	case OverflowReject, OverflowDropOldest:
		return nil
	}
	return errors.New("unknown overflow policy: " + string(p))
}

// Defaults per the event processing contract.
const (
	DefaultCapacity    = 1000
	DefaultWorkers     = 2
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Observer receives the queue and retry outcomes, so an adapter layer
// can expose them as gauges and counters.
type Observer interface {
	SetQueueDepth(n int)
	EventDropped()
	RetryScheduled()
	TerminalFailure()
}

type nopObserver struct{}

func (nopObserver) SetQueueDepth(int) {}
func (nopObserver) EventDropped()     {}
func (nopObserver) RetryScheduled()   {}
func (nopObserver) TerminalFailure()  {}

// MapEvent applies the resource-type policy, turning an admin event
// into an optional sync action:
//   - USER DELETE maps to a credential deletion;
//   - CLIENT CREATE and UPDATE map to an upsert, CLIENT DELETE to a
//     deletion;
//   - everything else (notably USER CREATE/UPDATE, which the in-IdP
//     immediate path already covers with the real password) yields no
//     action.
//
// Events whose resource path does not match the users/{id} or
// clients/{id} shapes are ignored as well.
func MapEvent(e model.AdminEvent) (model.OpType, bool) {
	if _, ok := e.ResourceID(); !ok {
		return "", false
	}
	switch e.ResourceType {
	case model.ResourceUser:
		if e.OperationType == model.OperationDelete {
			return model.OpScramDelete, true
		}
	case model.ResourceClient:
		switch e.OperationType {
		case model.OperationCreate, model.OperationUpdate:
			return model.OpScramUpsert, true
		case model.OperationDelete:
			return model.OpScramDelete, true
		}
	}
	return "", false
}

// UseCase represents the admin event processing use case.
type UseCase struct {
	pool    repo.Pool
	auditrp repo.Audit
	brk     broker.Client
	enum    idp.Enumerator
	gen     scram.Generator

	breakers    *breaker.Set
	obs         Observer
	capacity    int
	workers     int
	policy      OverflowPolicy
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	mechanism   model.Mechanism
	iterations  int
	realm       []string // allow-list; empty admits all realms
	clusterID   string

	queue   chan model.Envelope
	mu      sync.Mutex // serializes DROP_OLDEST evictions
	wg      sync.WaitGroup
	timers  sync.WaitGroup
	stopped atomic.Bool
}

// New instantiates the event use case. Workers do not run until Start
// is called.
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
	if uc.capacity == 0 {
		uc.capacity = DefaultCapacity
	}
	if uc.workers == 0 {
		uc.workers = DefaultWorkers
	}
	if uc.policy == "" {
		uc.policy = OverflowReject
	}
	if uc.maxAttempts == 0 {
		uc.maxAttempts = DefaultMaxAttempts
	}
	if uc.baseDelay == 0 {
		uc.baseDelay = DefaultBaseDelay
	}
	if uc.maxDelay == 0 {
		uc.maxDelay = DefaultMaxDelay
	}
	if uc.mechanism == "" {
		uc.mechanism = model.SCRAMSHA256
	}
	if uc.iterations == 0 {
		uc.iterations = model.MinIterations
	}
	if uc.clusterID == "" {
		uc.clusterID = "default"
	}
	uc.queue = make(chan model.Envelope, uc.capacity)
	return uc, nil
}

// Depth returns the current queue occupancy.
func (events *UseCase) Depth() int {
	return len(events.queue)
}

// Enqueue admits one admin event into the queue, assigning it a fresh
// correlation id. It returns false when the event was refused: after
// shutdown started, or on overflow under the REJECT policy. Under the
// DROP_OLDEST policy the queue head is evicted (and counted) to make
// room, so Enqueue succeeds.
func (events *UseCase) Enqueue(e model.AdminEvent) bool {
	if events.stopped.Load() {
		return false
	}
	env := model.Envelope{
		CorrelationID: uuid.NewString(),
		Event:         e,
		EnqueuedAt:    time.Now().UTC(),
	}
	return events.enqueue(env)
}

func (events *UseCase) enqueue(env model.Envelope) bool {
	select {
	case events.queue <- env:
		events.obs.SetQueueDepth(len(events.queue))
		return true
	default:
	}
	if events.policy == OverflowReject {
		events.obs.EventDropped()
		return false
	}
	// DROP_OLDEST: evict the head, then retry once. The mutex keeps
	// two concurrent producers from evicting twice for one slot.
	events.mu.Lock()
	defer events.mu.Unlock()
	select {
	case <-events.queue:
		events.obs.EventDropped()
	default:
	}
	select {
	case events.queue <- env:
		events.obs.SetQueueDepth(len(events.queue))
		return true
	default:
		events.obs.EventDropped()
		return false
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled;
// Stop waits for them.
func (events *UseCase) Start(ctx context.Context) {
	for i := 0; i < events.workers; i++ {
		events.wg.Add(1)
		go func() {
			defer events.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env := <-events.queue:
					events.obs.SetQueueDepth(len(events.queue))
					events.process(ctx, env)
				}
			}
		}()
	}
}

// Stop refuses further events and waits until the queue drains or the
// grace period expires, whichever comes first. The caller cancels the
// Start context afterwards to terminate the workers.
func (events *UseCase) Stop(grace time.Duration) {
	events.stopped.Store(true)
	deadline := time.Now().Add(grace)
	for len(events.queue) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	done := make(chan struct{})
	go func() {
		events.timers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
	}
}

// Wait blocks until all workers returned. Call after canceling the
// Start context.
func (events *UseCase) Wait() {
	events.wg.Wait()
}

// process applies one envelope and decides its retry fate on failure.
func (events *UseCase) process(ctx context.Context, env model.Envelope) {
	err := events.apply(ctx, env)
	if err == nil {
		return
	}
	switch cerr.Classify(err) {
	case cerr.CodeCircuitOpen:
		// Fail-fast results do not consume the retry budget; the
		// event waits for the breaker to close again.
		events.schedule(ctx, env, events.delay(env.RetryCount+1))
		return
	case cerr.CodeTransient:
		attempt := env.RetryCount + 1
		if attempt < events.maxAttempts {
			now := time.Now().UTC()
			env.RetryCount = attempt
			env.LastAttemptAt = &now
			events.obs.RetryScheduled()
			events.schedule(ctx, env, events.delay(attempt))
			return
		}
	}
	events.terminal(ctx, env, err)
}

// delay computes min(base * 2^(attempt-1), maxDelay).
func (events *UseCase) delay(attempt int) time.Duration {
	d := events.baseDelay
	for i := 1; i < attempt && d < events.maxDelay; i++ {
		d *= 2
	}
	return min(d, events.maxDelay)
}

// schedule re-enqueues env after the backoff delay. A re-enqueued
// envelope loses its original queue position.
func (events *UseCase) schedule(
	ctx context.Context, env model.Envelope, after time.Duration,
) {
	events.timers.Add(1)
	t := time.AfterFunc(after, func() {
		defer events.timers.Done()
		if !events.enqueue(env) {
			events.terminal(ctx, env, cerr.Transient(
				errors.New("queue refused the retried event"),
			))
		}
	})
	go func() {
		<-ctx.Done()
		if t.Stop() {
			events.timers.Done()
		}
	}()
}

// apply maps the event and executes the resulting sync action.
func (events *UseCase) apply(
	ctx context.Context, env model.Envelope,
) error {
	opType, ok := MapEvent(env.Event)
	if !ok || !events.realmAllowed(env.Event.Realm) {
		return nil
	}
	username := env.Event.Username
	if username == "" {
		id, _ := env.Event.ResourceID()
		var err error
		err = events.throughIdP(func() error {
			var lookErr error
			username, lookErr = events.enum.LookupUsername(ctx, id)
			return lookErr
		})
		if err != nil {
			return fmt.Errorf("resolving username: %w", err)
		}
	}
	principal := model.Principal{Realm: env.Event.Realm, Name: username}
	var err error
	switch opType {
	case model.OpScramUpsert:
		var v *model.Verifier
		v, err = events.freshVerifier()
		if err != nil {
			return err
		}
		err = events.throughBroker(func() error {
			return events.brk.Upsert(ctx, principal, v)
		})
	case model.OpScramDelete:
		err = events.throughBroker(func() error {
			return events.brk.Delete(ctx, principal, events.mechanism)
		})
	}
	if err != nil {
		return fmt.Errorf("applying %s for %s: %w",
			opType, principal.Name, err)
	}
	return nil
}

func (events *UseCase) realmAllowed(realm string) bool {
	if len(events.realm) == 0 {
		return true
	}
	for _, r := range events.realm {
		if r == realm {
			return true
		}
	}
	return false
}

// freshVerifier derives a verifier from a random 24-byte password,
// matching the reconciliation behavior for out-of-band upserts.
func (events *UseCase) freshVerifier() (*model.Verifier, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, cerr.Internal(fmt.Errorf("reading random: %w", err))
	}
	password := base64.RawStdEncoding.EncodeToString(buf)
	for i := range buf {
		buf[i] = 0
	}
	return events.gen.Generate(password, events.mechanism, events.iterations)
}

// terminal records the exhausted event as an ERROR operation row in
// its own completed single-item batch and drops the event.
func (events *UseCase) terminal(
	ctx context.Context, env model.Envelope, cause error,
) {
	events.obs.TerminalFailure()
	log.Warn(ctx, "dropping event after exhausted retries",
		log.CorrelationID(env.CorrelationID),
		slog.String("resource_path", env.Event.ResourcePath),
		log.Err("error", cause),
	)
	opType, ok := MapEvent(env.Event)
	if !ok {
		opType = model.OpScramUpsert
	}
	principal := env.Event.Username
	if principal == "" {
		principal, _ = env.Event.ResourceID()
	}
	err := events.pool.Conn(ctx, func(ctx context.Context, c repo.Conn) error {
		q := events.auditrp.Conn(c)
		err := q.CreateBatch(ctx, &model.Batch{
			CorrelationID: env.CorrelationID,
			Source:        model.SourceImmediate,
			ItemsTotal:    1,
		})
		if err != nil {
			return err
		}
		err = q.AddOperation(ctx, &model.Operation{
			CorrelationID: env.CorrelationID,
			Realm:         env.Event.Realm,
			ClusterID:     events.clusterID,
			Principal:     principal,
			OpType:        opType,
			Result:        model.ResultError,
			ErrorCode:     string(cerr.Classify(cause)),
			ErrorMessage:  model.TruncateErrorMessage(cause.Error()),
			DurationMs:    time.Since(env.EnqueuedAt).Milliseconds(),
		})
		if err != nil {
			return err
		}
		return q.FinishBatch(ctx, env.CorrelationID)
	})
	if err != nil {
		log.Error(ctx, "recording terminal event failure",
			log.CorrelationID(env.CorrelationID),
			log.Err("error", err),
		)
	}
}

func (events *UseCase) throughIdP(fn func() error) error {
	if events.breakers == nil {
		return fn()
	}
	return events.breakers.IdP.Do(fn)
}

func (events *UseCase) throughBroker(fn func() error) error {
	if events.breakers == nil {
		return fn()
	}
	return events.breakers.Broker.Do(fn)
}
