// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package repo

import "context"

// Queryer is the shared query surface of connections and transactions,
// running raw SQL statements one at a time.
type Queryer interface {
	// Exec runs the sql statement with the given args, returning the
	// number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (count int64, err error)

	// Query runs the sql query with the given args, returning the
	// result set as the Rows interface.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows represents a result set, iterated row by row with Next and read
// with Scan or Values. It must be closed after use; a pending Rows
// blocks its connection from running further statements.
type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
	Values() ([]any, error)
}
