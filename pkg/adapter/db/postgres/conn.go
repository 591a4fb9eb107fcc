// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package postgres provides the PostgreSQL adapter types, wrapping
// the GORM framework behind the repo.Pool, repo.Conn, and repo.Tx
// interfaces. Repository packages (such as auditrp) obtain a *gorm.DB
// session through the Queryer constraint and keep the framework
// dependency out of the use case layer.
package postgres

import (
	"context"
	"fmt"

	"github.com/scramsync/scramsync/pkg/core/repo"
	"gorm.io/gorm"
)

// Conn represents a single database connection, obtained from a
// connection pool. It is unsafe to be used concurrently. A connection
// may execute a series of SQL statements (each with auto-commit
// semantics) or open a transaction with the Tx method.
// Conn embeds the *gorm.DB, hence, may be used like GORM from within
// the repository packages (which can depend on frameworks).
type Conn struct {
	*gorm.DB
}

// TxHandler is an alias for the repo.TxHandler function type,
// accepting a context and an ongoing transaction.
type TxHandler = repo.TxHandler

// Tx opens a transaction on this connection and runs the f handler
// within it. If f returns an error or panics, the transaction is
// rolled back, otherwise it is committed. The commit (or rollback)
// error, if any, is wrapped and returned.
func (c *Conn) Tx(ctx context.Context, f TxHandler) (err error) {
	tx := c.DB.WithContext(ctx).Begin()
	if err = tx.Error; err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = tx.Rollback().Error
			if err == nil {
				err = fmt.Errorf("panicked: %v", r)
				return
			}
			err = fmt.Errorf("panicked: %v, rollback: %w", r, err)
			return
		}
		if err != nil {
			if err2 := tx.Rollback().Error; err2 != nil {
				err = fmt.Errorf("handler: %w, rollback: %w", err, err2)
				return
			}
			err = fmt.Errorf("handler: %w", err)
			return
		}
		err = tx.Commit().Error
		if err != nil {
			err = fmt.Errorf("commit: %w", err)
		}
	}()
	tt := &Tx{DB: tx}
	return f(ctx, tt)
}

// Exec runs the sql statement with the given args in the ctx context,
// with auto-commit semantics. The number of affected rows and possible
// errors will be returned. See (*Tx).Exec for the parameter
// placeholder formats.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tt := c.DB.WithContext(ctx).Exec(sql, args...)
	if err := tt.Error; err != nil {
		return 0, err
	}
	return tt.RowsAffected, nil
}

// Query runs the sql query with the given args in the ctx context and
// returns the result set as the repo.Rows interface. See (*Tx).Query
// for the parameter placeholder formats and the single ongoing
// statement restriction.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (repo.Rows, error) {
	rows, err := c.DB.WithContext(ctx).Raw(sql, args...).Rows()
	return rowsAdapter{rows}, err
}

// IsConn method prevents a non-Conn object (such as a Tx) to
// mistakenly implement the Conn interface.
func (c *Conn) IsConn() {
}

// GORM returns the embedded *gorm.DB instance, configuring it
// to operate on the given ctx context (in a gorm.Session).
func (c *Conn) GORM(ctx context.Context) *gorm.DB {
	return c.DB.WithContext(ctx)
}
