// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package broker exports the expected interface for the message broker
// SCRAM credential administration, so the use cases layer can describe
// and alter broker credentials without depending on a concrete admin
// protocol implementation. For the Kafka implementation, check the
// adapter layer.
package broker

import (
	"context"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// Alteration is one element of a batched Alter call: either an upsert
// carrying a fresh verifier, or a deletion of one mechanism credential.
type Alteration struct {
	Principal model.Principal
	Delete    bool
	// Verifier must be non-nil for upserts and nil for deletions.
	Verifier *model.Verifier
	// Mechanism selects the credential to remove for deletions. For
	// upserts the mechanism is taken from the Verifier.
	Mechanism model.Mechanism
}

// Future resolves the per-principal outcome of a batched Alter call.
// Wait blocks until the broker has answered for this principal (or the
// overall request failed) and returns the classified error, if any.
type Future interface {
	Wait(ctx context.Context) error
}

// Client wraps the broker SCRAM admin surface. Alter is the only
// mutating path; Upsert and Delete are single-principal conveniences
// built on it. Implementations classify failures into the project
// error taxonomy: request timeouts are transient, unsupported broker
// versions and denied authentication are fatal.
type Client interface {
	// DescribeAll enumerates every SCRAM principal at the broker with
	// its configured mechanisms. It either returns a full snapshot or
	// fails atomically.
	DescribeAll(
		ctx context.Context,
	) (map[string][]model.Mechanism, error)

	// Describe is the scoped variant of DescribeAll, restricted to
	// the given principal names.
	Describe(
		ctx context.Context, principals []string,
	) (map[string][]model.Mechanism, error)

	// Alter submits batched upserts and deletions in one round trip.
	// It returns one future per principal; per-principal failures are
	// surfaced through those futures and are never swallowed, so the
	// call itself succeeds even when some principals fail.
	Alter(
		ctx context.Context, alterations []Alteration,
	) (map[string]Future, error)

	// Upsert stores a fresh verifier for one principal.
	Upsert(ctx context.Context, p model.Principal, v *model.Verifier) error

	// Delete removes the credential of one principal and mechanism.
	Delete(ctx context.Context, p model.Principal, m model.Mechanism) error

	// Close releases the underlying admin connections. It must be
	// called on process (or host plug-in) shutdown.
	Close()
}
