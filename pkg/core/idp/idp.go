// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package idp exports the expected interface for the identity provider
// admin surface, as consumed by the reconciliation use case and the
// event workers. For the Keycloak implementation, check the adapter
// layer.
package idp

import (
	"context"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// UserHandler consumes one enumerated user. Returning an error stops
// the enumeration and propagates that error to the FetchAll caller.
type UserHandler func(ctx context.Context, u model.User) error

// Enumerator walks the IdP user population.
type Enumerator interface {
	// FetchAll streams the complete user population of the configured
	// realm into the handler, page by page. The sequence is finite and
	// is not restartable mid-iteration. Disabled users and service
	// accounts are filtered out before the handler sees them.
	//
	// A transient page fetch failure is retried up to three times with
	// 1s, 2s, and 4s delays; after that the whole enumeration fails
	// and no partial result is emitted to the caller (the handler
	// callbacks which already ran must be discarded by the caller).
	FetchAll(ctx context.Context, h UserHandler) error

	// LookupUsername resolves a user id (as extracted from an admin
	// event resource path) into the login name.
	LookupUsername(ctx context.Context, id string) (string, error)
}
