// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import "context"

// TxHandler is a handler function which expects an ongoing transaction
// in addition to a context. When a TxHandler returns, its transaction
// will be committed (on a nil error) or rolled back (otherwise).
type TxHandler func(context.Context, Tx) error

// Conn represents a single database connection.
// It is unsafe to be used concurrently. A connection may execute a
// series of SQL statements (each with auto-commit semantics) using the
// Queryer methods, or open a transaction with the Tx method.
type Conn interface {
	Queryer

	// Tx opens a transaction on this connection and runs the handler
	// within it, managing the commit or rollback based on the handler
	// outcome.
	Tx(ctx context.Context, handler TxHandler) error

	// IsConn method prevents a non-Conn object (such as a Tx) to
	// mistakenly implement the Conn interface.
	IsConn()
}
