// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package command provides the root and sub-commands for the scramsync
// agent. Commands are organized using the cobra library.
// The root command starts the agent itself, that is, the Control API
// server, the admin event queue workers, the retention purger, and
// (when enabled) the scheduled reconciliation, while the "db"
// sub-command can be used for the audit database schema management.
//
//	./scramsyncd [-c /path/of/config.yaml]        # start the agent
//	./scramsyncd db migrate [-c /path/of/config.yaml]
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scramsync/scramsync/pkg/adapter/broker/kafka"
	"github.com/scramsync/scramsync/pkg/adapter/config"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres/auditrp"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres/schema"
	hashscram "github.com/scramsync/scramsync/pkg/adapter/hash/scram"
	"github.com/scramsync/scramsync/pkg/adapter/idp/keycloak"
	"github.com/scramsync/scramsync/pkg/adapter/metrics"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/routes"
	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/log"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
	"github.com/scramsync/scramsync/pkg/core/usecase/eventuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/purgeuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

var cfgPath string

// shutdownGrace bounds both the Control API server shutdown and the
// event queue draining after a termination signal.
const shutdownGrace = 10 * time.Second

// breakerSampleInterval is the period of the circuit breaker state
// gauge refresh.
const breakerSampleInterval = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "scramsyncd",
	Short: "SCRAM credential synchronization agent",
	Long: `SCRAM credential synchronization agent which keeps the Kafka
broker SCRAM credentials converged with the Keycloak IdP user accounts.
It periodically (or on demand, through the Control API) enumerates the
IdP users, describes the broker SCRAM credentials, computes a diff, and
applies the missing upserts and deletions, recording every applied
operation in a PostgreSQL audit store. It also accepts admin events
through a webhook, mapping them to individual sync actions which are
processed asynchronously by a bounded queue with retries, while a pair
of circuit breakers protects the IdP and broker dependencies.
The audit store is bounded by a retention policy (managed through the
Control API) which a background purger enforces.`,
	RunE: startAgent,
}

func startAgent(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()
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
	bcfg, err := c.Broker.ClientConfig()
	if err != nil {
		return fmt.Errorf("broker settings: %w", err)
	}
	brk, err := kafka.New(bcfg)
	if err != nil {
		return fmt.Errorf("creating Kafka admin client: %w", err)
	}
	defer brk.Close()
	enum, err := keycloak.New(c.IdP.ClientConfig())
	if err != nil {
		return fmt.Errorf("creating Keycloak client: %w", err)
	}
	gen := hashscram.New()
	audit := auditrp.New()
	breakers := breaker.NewSet()
	mets := metrics.New()

	// configured retention limits replace the stored row at startup;
	// without them, the Control API remains the only writer
	if p, ok := c.Retention.Policy(); ok {
		err = pool.Conn(ctx, func(ctx context.Context, conn repo.Conn) error {
			_, uerr := audit.Conn(conn).UpdateRetention(
				ctx, p.MaxBytes, p.MaxAgeDays,
			)
			return uerr
		})
		if err != nil {
			return fmt.Errorf("seeding retention limits: %w", err)
		}
	}

	purger, err := purgeuc.New(pool, audit, append(
		c.Retention.UseCaseOptions(), purgeuc.WithObserver(mets),
	)...)
	if err != nil {
		return fmt.Errorf("instantiating purger use case: %w", err)
	}
	recon, err := reconuc.New(pool, audit, brk, enum, gen, append(
		c.Reconcile.UseCaseOptions(c.IdP.Realm),
		reconuc.WithBreakers(breakers),
		reconuc.WithObserver(mets),
		reconuc.WithPostBatchHook(purger.Trigger),
	)...)
	if err != nil {
		return fmt.Errorf("instantiating reconciliation use case: %w", err)
	}
	events, err := eventuc.New(pool, audit, brk, enum, gen, append(
		c.Events.UseCaseOptions(c.Reconcile, c.RealmAllowlist),
		eventuc.WithBreakers(breakers),
		eventuc.WithObserver(mets),
	)...)
	if err != nil {
		return fmt.Errorf("instantiating event use case: %w", err)
	}

	// Workers live on their own context, not the signal context, so a
	// termination signal cannot kill them before the queue drain below
	// gets its grace period.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	events.Start(workerCtx)
	go purger.Schedule(ctx)
	if interval := c.Reconcile.SchedulerInterval(); interval > 0 {
		go scheduleReconciliations(ctx, recon, interval)
	}
	go sampleBreakerStates(ctx, breakers, mets)

	e := newEngine(c.HTTP)
	routes.Register(e, routes.Deps{
		Pool:     pool,
		Audit:    audit,
		Recon:    recon,
		Events:   events,
		Breakers: breakers,
		Metrics:  mets.Handler(),
		Accounts: apiAccounts(c.HTTP),
	})
	srv := &http.Server{Addr: c.HTTP.Listen, Handler: e}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(
			context.Background(), shutdownGrace,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn(sctx, "control API shutdown", log.Err("error", err))
		}
	}()
	log.Info(ctx, "agent started",
		slog.String("listen", c.HTTP.Listen),
		slog.String("realm", c.IdP.Realm),
	)
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return runtimeError{
			fmt.Errorf("running Control API server: %w", err),
		}
	}
	// the in-flight and retry-pending events get a bounded chance to
	// complete before the worker context is canceled
	events.Stop(shutdownGrace)
	stopWorkers()
	events.Wait()
	return nil
}

// newEngine instantiates the gin engine with the configured optional
// middlewares.
func newEngine(h config.HTTP) *gin.Engine {
	var middlewares []gin.HandlerFunc
	if h.Logger != nil && *h.Logger {
		middlewares = append(middlewares, gin.Logger())
	}
	if h.Recovery != nil && *h.Recovery {
		middlewares = append(middlewares, gin.Recovery())
	}
	return gin.New(middlewares...)
}

// apiAccounts converts the basic authentication settings into the gin
// accounts map, or nil when authentication is not configured.
func apiAccounts(h config.HTTP) gin.Accounts {
	ba := h.BasicAuth
	if ba.Username == "" || ba.Password == "" {
		return nil
	}
	return gin.Accounts{ba.Username: ba.Password}
}

// scheduleReconciliations runs one reconciliation per interval until
// the context is canceled. An overlapping manual run makes the
// scheduled one fail with an ALREADY_RUNNING conflict, which is fine;
// the next tick will catch up.
func scheduleReconciliations(
	ctx context.Context, recon *reconuc.UseCase, interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := recon.Run(ctx, model.SourceScheduled)
			if err != nil {
				log.Warn(ctx, "scheduled reconciliation failed",
					log.Err("error", err),
				)
			}
		}
	}
}

// sampleBreakerStates refreshes the circuit breaker state gauges
// periodically, since breaker transitions happen inside the sony
// gobreaker library without a notification hook on this wrapping level.
func sampleBreakerStates(
	ctx context.Context, breakers *breaker.Set, mets *metrics.Metrics,
) {
	ticker := time.NewTicker(breakerSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mets.SetBreakerState("idp", breakers.IdP.State())
			mets.SetBreakerState("broker", breakers.Broker.State())
		}
	}
}

// runtimeError marks a failure which happened after a successful
// startup, so Execute can distinguish it from a startup failure.
type runtimeError struct {
	err error
}

func (e runtimeError) Error() string {
	return e.err.Error()
}

func (e runtimeError) Unwrap() error {
	return e.err
}

// Execute runs the rootCmd which in turn parses CLI arguments and
// flags and runs the most specific cobra command. The exit code is
// chosen based on the error condition: zero for a normal shutdown,
// one for a startup failure (including config validation and schema
// initialization failures), and two for an unrecoverable failure
// after the agent came up.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var rerr runtimeError
		if errors.As(err, &rerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(fixConfigPath)
	rootCmd.PersistentFlags().StringVarP(
		&cfgPath, "config", "c", "", "config file path",
	)
}

// fixConfigPath ensures that cfgPath is set respectively by either the
// CLI args, the CONFIG_FILE environment variable, or its default value.
// By the way, default value is not necessarily a single path and may
// check several paths sequentially and take the highest priority one
// among the existing paths. For example, a user-specific path may take
// precedence over a file in /etc which is selected over a file in /usr.
func fixConfigPath() {
	if cfgPath != "" {
		return
	}
	var found bool
	if cfgPath, found = os.LookupEnv("CONFIG_FILE"); !found {
		// the default path should usually be in the /etc directory
		cfgPath = "configs/sample-config.yaml"
	}
}
