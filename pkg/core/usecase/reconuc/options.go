// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package reconuc

import (
	"fmt"

	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Option implements the functional options pattern for the
// reconciliation UseCase instantiation.
type Option func(*UseCase) error

// WithBreakers routes the IdP and broker calls through the given
// dependency breakers. Without this option, calls go out directly.
func WithBreakers(s *breaker.Set) Option {
	return func(uc *UseCase) error {
		uc.breakers = s
		return nil
	}
}

// WithObserver registers an outcome observer, such as the Prometheus
// collectors adapter.
func WithObserver(o Observer) Option {
	return func(uc *UseCase) error {
		uc.obs = o
		return nil
	}
}

// WithPostBatchHook registers a function to invoke after every
// successfully completed batch. The retention purge trigger is hooked
// here; the hook must not block.
func WithPostBatchHook(f func()) Option {
	return func(uc *UseCase) error {
		uc.postBatch = f
		return nil
	}
}

// WithRealm sets the IdP realm name recorded on operation rows.
func WithRealm(realm string) Option {
	return func(uc *UseCase) error {
		uc.realm = realm
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

// WithMechanism selects the SCRAM mechanism for reconciled verifiers.
func WithMechanism(m model.Mechanism) Option {
	return func(uc *UseCase) error {
		if err := m.Validate(); err != nil {
			return err
		}
		uc.mechanism = m
		return nil
	}
}

// WithIterations sets the PBKDF2 iterations count for reconciled
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

// WithAlwaysUpsert re-upserts users which already exist at the broker,
// refreshing their verifiers with fresh random credentials.
func WithAlwaysUpsert(v bool) Option {
	return func(uc *UseCase) error {
		uc.alwaysUpsert = v
		return nil
	}
}

// WithExcludedPrincipals protects the listed principals from deletion.
// Entries are exact names or "admin-*" style prefix patterns.
func WithExcludedPrincipals(names []string) Option {
	return func(uc *UseCase) error {
		uc.excluded = names
		return nil
	}
}

// WithAlterBatchSize bounds how many principals one broker alter round
// trip may carry.
func WithAlterBatchSize(n int) Option {
	return func(uc *UseCase) error {
		if n < 1 {
			return fmt.Errorf("alter batch size %d is not positive", n)
		}
		uc.alterBatchSize = n
		return nil
	}
}
