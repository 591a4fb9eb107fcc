// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scramsync/scramsync/pkg/adapter/config"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres/schema"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Audit database management actions",
	Long: `Audit database management actions can be chosen by
sub-commands. Currently, the migrate sub-command is the only action;
it creates the audit store tables and the retention policy row.`,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or complete the audit store schema",
	Long: `Create or complete the audit store schema in the configured
database. All statements are idempotent and run in one transaction, so
this command may be repeated safely, for a fresh installation and for
an upgraded agent binary alike. The agent also runs the same statements
at startup; this command exists for deployments which withhold the DDL
privileges from the agent role and apply the schema separately.`,
	RunE: migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	c, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config.Load(%q): %w", cfgPath, err)
	}
	pool, err := c.Database.ConnectionPool(ctx)
	if err != nil {
		return fmt.Errorf("creating DB pool: %w", err)
	}
	defer pool.Close()
	err = pool.Conn(ctx, func(ctx context.Context, conn repo.Conn) error {
		return conn.Tx(ctx, func(ctx context.Context, tx repo.Tx) error {
			return schema.Init(ctx, tx)
		})
	})
	if err != nil {
		return fmt.Errorf("initializing audit schema: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(migrateCmd)
}
