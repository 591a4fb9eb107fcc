// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package repo exports the repository interfaces as they are needed by
// the use cases layer. These interfaces expose database connections,
// transactions, and the audit store query surface without leaking any
// framework-dependent type out of the adapter layer.
package repo

import "context"

// ConnHandler is a handler function which expects a single taken
// database connection in addition to a context. The connection is
// released back to its pool when the handler returns.
type ConnHandler func(context.Context, Conn) error

// Pool represents a database connection pool.
// It is safe to be used concurrently.
type Pool interface {
	// Conn takes a connection out of the pool and passes it to the
	// handler function, releasing it afterwards.
	Conn(ctx context.Context, handler ConnHandler) error
}
