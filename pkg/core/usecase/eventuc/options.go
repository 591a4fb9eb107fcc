// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package eventuc

import (
	"fmt"
	"time"

	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Option implements the functional options pattern for the event
// UseCase instantiation.
type Option func(*UseCase) error

// WithCapacity bounds the queue occupancy.
func WithCapacity(n int) Option {
	return func(uc *UseCase) error {
		if n < 1 {
			return fmt.Errorf("queue capacity %d is not positive", n)
		}
		uc.capacity = n
		return nil
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(uc *UseCase) error {
		if n < 1 {
			return fmt.Errorf("worker count %d is not positive", n)
		}
		uc.workers = n
		return nil
	}
}

// WithOverflowPolicy selects what a full queue does with a new event.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(uc *UseCase) error {
		if err := p.Validate(); err != nil {
			return err
		}
		uc.policy = p
		return nil
	}
}

// WithRetry tunes the backoff schedule: maxAttempts total deliveries,
// delays of min(base*2^(attempt-1), maxDelay) between them.
func WithRetry(maxAttempts int, base, maxDelay time.Duration) Option {
	return func(uc *UseCase) error {
		if maxAttempts < 1 {
			return fmt.Errorf("max attempts %d is not positive", maxAttempts)
		}
		if base <= 0 || maxDelay < base {
			return fmt.Errorf(
				"invalid backoff delays: base %v, max %v", base, maxDelay,
			)
		}
		uc.maxAttempts = maxAttempts
		uc.baseDelay = base
		uc.maxDelay = maxDelay
		return nil
	}
}

// WithBreakers routes the IdP and broker calls through the given
// dependency breakers.
func WithBreakers(s *breaker.Set) Option {
	return func(uc *UseCase) error {
		uc.breakers = s
		return nil
	}
}

// WithObserver registers a queue and retry outcome observer, such as
// the Prometheus collectors adapter.
func WithObserver(o Observer) Option {
	return func(uc *UseCase) error {
		uc.obs = o
		return nil
	}
}

// WithRealmAllowList restricts processing to the listed realms. An
// empty list admits all realms.
func WithRealmAllowList(realms []string) Option {
	return func(uc *UseCase) error {
		uc.realm = realms
		return nil
	}
}

// WithMechanism selects the SCRAM mechanism for event-driven upserts
// and deletions.
func WithMechanism(m model.Mechanism) Option {
	return func(uc *UseCase) error {
		if err := m.Validate(); err != nil {
			return err
		}
		uc.mechanism = m
		return nil
	}
}

// WithIterations sets the PBKDF2 iterations count for event-driven
// verifiers.
func WithIterations(n int) Option {
	return func(uc *UseCase) error {
		if n < model.MinIterations {
			return fmt.Errorf(
				"iterations %d is below the minimum %d",
				n, model.MinIterations,
			)
		}
		uc.iterations = n
		return nil
	}
}

// WithClusterID sets the broker cluster identifier recorded on
// operation rows.
func WithClusterID(id string) Option {
	return func(uc *UseCase) error {
		uc.clusterID = id
		return nil
	}
}
