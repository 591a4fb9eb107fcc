// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package breaker provides one circuit breaker per external dependency
// (the IdP and the broker), wrapping the sony/gobreaker state machine
// with the project error taxonomy.
//
// States follow CLOSED -> OPEN -> HALF_OPEN -> CLOSED/OPEN. A breaker
// opens after a run of consecutive transient failures or on the first
// fatal dependency failure, stays open for the configured interval,
// and then admits exactly one half-open probe. Calls through an OPEN
// breaker fail fast with a CIRCUIT_OPEN error without invoking the
// dependency.
package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scramsync/scramsync/pkg/core/cerr"
)

// Default thresholds per the dependency fault isolation policy.
const (
	DefaultFailureThreshold = 5
	DefaultOpenInterval     = 60 * time.Second
)

// Breaker is a concurrency-safe circuit breaker for one dependency.
type Breaker struct {
	name      string
	threshold uint32
	openFor   time.Duration

	mu    sync.Mutex // guards cb replacement by Reset
	cb    atomic.Pointer[gobreaker.CircuitBreaker]
	fatal atomic.Bool
}

// Option tunes a Breaker at construction time.
type Option func(*Breaker)

// WithFailureThreshold overrides the consecutive-failure count which
// opens the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(b *Breaker) { b.threshold = n }
}

// WithOpenInterval overrides how long the breaker stays open before
// admitting a half-open probe.
func WithOpenInterval(d time.Duration) Option {
	return func(b *Breaker) { b.openFor = d }
}

// New creates a named Breaker with the default thresholds unless
// overridden by options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: DefaultFailureThreshold,
		openFor:   DefaultOpenInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cb.Store(b.newInner())
	return b
}

func (b *Breaker) newInner() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1, // one half-open probe
		Timeout:     b.openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			// A fatal dependency failure trips immediately.
			return b.fatal.Swap(false) ||
				c.ConsecutiveFailures >= b.threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Caller bugs and run-conflicts are not dependency
			// failures and must not move the breaker.
			switch cerr.Classify(err) {
			case cerr.CodeInvalidInput, cerr.CodeAlreadyRunning:
				return true
			}
			return false
		},
	})
}

// Name returns the dependency name of b.
func (b *Breaker) Name() string {
	return b.name
}

// Do runs fn through the breaker. When the breaker is OPEN, fn is not
// invoked and a CIRCUIT_OPEN error is returned in well under a
// millisecond. A fatal error returned by fn opens the breaker
// immediately; transient and unknown errors count toward the
// consecutive-failure threshold.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Load().Execute(func() (any, error) {
		err := fn()
		if cerr.Classify(err) == cerr.CodeFatal {
			b.fatal.Store(true)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return cerr.CircuitOpen(err)
	}
	return err
}

// State reports the current breaker state as CLOSED, OPEN, or
// HALF_OPEN, for the readiness endpoint.
func (b *Breaker) State() string {
	switch b.cb.Load().State() {
	case gobreaker.StateOpen:
		return "OPEN"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	}
	return "CLOSED"
}

// Closed reports whether the breaker currently admits calls without
// restriction.
func (b *Breaker) Closed() bool {
	return b.cb.Load().State() == gobreaker.StateClosed
}

// Reset discards the breaker state, returning it to CLOSED. This is an
// internal maintenance operation exposed only for tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fatal.Store(false)
	b.cb.Store(b.newInner())
}

// Set groups the per-dependency breakers of the agent process.
type Set struct {
	IdP    *Breaker
	Broker *Breaker
}

// NewSet creates the default breaker pair.
func NewSet(opts ...Option) *Set {
	return &Set{
		IdP:    New("idp", opts...),
		Broker: New("broker", opts...),
	}
}

// AllClosed reports whether every dependency breaker is CLOSED, as
// required by the readiness endpoint.
func (s *Set) AllClosed() bool {
	return s.IdP.Closed() && s.Broker.Closed()
}
