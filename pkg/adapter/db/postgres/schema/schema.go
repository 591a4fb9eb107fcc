// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package schema owns the audit store DDL. The schema is fixed (no
// multi-version migration): three tables, their indexes, and the
// singleton retention row which must exist from schema creation on.
// Initialization is idempotent, so the migrate command and the test
// suites may run it against an already initialized database.
package schema

import (
	"context"
	"fmt"

	"github.com/scramsync/scramsync/pkg/core/repo"
)

// ddl statements in dependency order. Statements use IF NOT EXISTS so
// a re-run settles into a no-op.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS sync_batch (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		correlation_id VARCHAR(64) UNIQUE NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		source VARCHAR(16) NOT NULL,
		items_total INTEGER NOT NULL,
		items_success INTEGER NOT NULL DEFAULT 0,
		items_error INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_batch_started_at
		ON sync_batch (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_operation (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		correlation_id VARCHAR(64) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		realm VARCHAR(255) NOT NULL,
		cluster_id VARCHAR(255) NOT NULL,
		principal VARCHAR(255) NOT NULL,
		op_type VARCHAR(16) NOT NULL,
		mechanism VARCHAR(16),
		result VARCHAR(16) NOT NULL,
		error_code VARCHAR(64),
		error_message VARCHAR(1024),
		duration_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_operation_occurred_at
		ON sync_operation (occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_operation_correlation_id
		ON sync_operation (correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_operation_principal
		ON sync_operation (principal)`,
	`CREATE TABLE IF NOT EXISTS retention_state (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		max_bytes BIGINT,
		max_age_days INTEGER,
		approx_db_bytes BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`INSERT INTO retention_state (id, updated_at)
		VALUES (1, NOW())
		ON CONFLICT (id) DO NOTHING`,
}

// Init creates the audit tables, indexes, and the singleton retention
// row within the given transaction, so a failed initialization leaves
// no partial schema behind.
func Init(ctx context.Context, tx repo.Tx) error {
	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing audit schema: %w", err)
		}
	}
	return nil
}
