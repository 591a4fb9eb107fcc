// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config is an adapter which accepts yaml formatted config
// files from its users and allows the agent to instantiate different
// components, from the adapter or use cases layers, using those loaded
// configuration settings. Environment variables override the file
// settings, so containerized deployments can configure the agent
// without mounting a file.
// The parsed and validated configurations should be passed to their
// ultimate components as a series of individual params (for the
// mandatory items) and a series of functional options (for the optional
// items), so they may be accumulated and validated in the relevant
// end-component such as a UseCase instance. This design decision causes
// a bit of redundancy in favor of a defensive solution.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/scramsync/scramsync/pkg/adapter/broker/kafka"
	"github.com/scramsync/scramsync/pkg/adapter/config/settings"
	"github.com/scramsync/scramsync/pkg/adapter/db/postgres"
	"github.com/scramsync/scramsync/pkg/adapter/idp/keycloak"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/usecase/eventuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/purgeuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

// Config contains all settings which are required by different parts
// of the project, such as adapters or use cases. It is preferred to
// implement Config with primitive fields or other structs which are
// defined locally, not models or structs which are defined in lower
// layers, so the lower layers can change freely without affecting the
// configuration file format.
type Config struct {
	Database  Database  // PostgreSQL database connection settings
	HTTP      HTTP      `yaml:"http"` // Control API settings
	Broker    Broker    // Kafka admin connection settings
	IdP       IdP       `yaml:"idp"` // Keycloak admin API settings
	Reconcile Reconcile // reconciliation run settings
	Retention Retention // retention purger settings
	Events    Events    // admin event queue settings

	// RealmAllowlist restricts event processing to the listed realms.
	// An empty list admits all realms.
	RealmAllowlist []string `yaml:"realm-allowlist"`
}

// Database contains the database related configuration settings.
type Database struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required,min=1,max=65535"`
	Name     string `validate:"required"`
	User     string `validate:"required"`
	Password string
}

// ConnectionURL returns the database connection URL embedding the
// host, port, role name, database name, and password value. The
// returned URL has the postgresql scheme.
func (d Database) ConnectionURL() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	return u.String()
}

// ConnectionPool creates a database connection pool using the
// connection information which are kept in the `d` settings.
// The concrete pool type is returned (instead of the repo.Pool
// interface), so the caller can also close it during the shutdown.
func (d Database) ConnectionPool(
	ctx context.Context,
) (*postgres.Pool, error) {
	p, err := postgres.NewPool(ctx, d.ConnectionURL())
	if err != nil {
		return nil, fmt.Errorf(
			"connecting to %s:%d/%s: %w", d.Host, d.Port, d.Name, err,
		)
	}
	return p, nil
}

// HTTP contains the Control API configuration settings.
// The Logger and Recovery fields are defined as pointers, so it is
// possible to detect if they are or are not initialized and replace
// them with their default values.
type HTTP struct {
	// Listen is the Control API bind address, like :8080.
	Listen string

	Logger   *bool // Whether to register the gin.Logger() middleware
	Recovery *bool // Whether to register the gin.Recovery() middleware

	// BasicAuth protects the /api group when both fields are set.
	BasicAuth struct {
		Username string
		Password string
	} `yaml:"basic-auth"`
}

// Broker contains the Kafka admin connection settings.
type Broker struct {
	Bootstrap      []string           `validate:"required,min=1"`
	SASLMechanism  string             `yaml:"sasl-mechanism"`
	SASLUsername   string             `yaml:"sasl-username"`
	SASLPassword   string             `yaml:"sasl-password"`
	RequestTimeout *settings.Duration `yaml:"request-timeout"`
	APITimeout     *settings.Duration `yaml:"api-timeout"`
}

// ClientConfig converts the `b` settings into the Kafka adapter
// configuration struct.
func (b Broker) ClientConfig() (kafka.Config, error) {
	cfg := kafka.Config{
		BootstrapServers: b.Bootstrap,
		SASLUsername:     b.SASLUsername,
		SASLPassword:     b.SASLPassword,
	}
	if b.SASLMechanism != "" {
		m, err := model.ParseMechanism(b.SASLMechanism)
		if err != nil {
			return kafka.Config{}, fmt.Errorf(
				"broker sasl-mechanism: %w", err,
			)
		}
		cfg.SASLMechanism = m
	}
	if b.RequestTimeout != nil {
		cfg.RequestTimeout = time.Duration(*b.RequestTimeout)
	}
	if b.APITimeout != nil {
		cfg.APITimeout = time.Duration(*b.APITimeout)
	}
	return cfg, nil
}

// IdP contains the Keycloak admin API settings.
type IdP struct {
	URL          string `yaml:"url" validate:"required,url"`
	Realm        string `validate:"required"`
	ClientID     string `yaml:"client-id" validate:"required"`
	ClientSecret string `yaml:"client-secret"`
	Username     string
	Password     string

	ConnectTimeout *settings.Duration `yaml:"connect-timeout"`
	ReadTimeout    *settings.Duration `yaml:"read-timeout"`

	// PageSize bounds one user enumeration request. The page
	// enumeration stops at the first short page.
	PageSize int `yaml:"page-size" validate:"omitempty,min=1"`

	// ServicePrefixes overrides the username prefixes which exclude
	// service accounts from synchronization.
	ServicePrefixes []string `yaml:"service-prefixes"`
}

// ClientConfig converts the `i` settings into the Keycloak adapter
// configuration struct.
func (i IdP) ClientConfig() keycloak.Config {
	cfg := keycloak.Config{
		BaseURL:         i.URL,
		Realm:           i.Realm,
		ClientID:        i.ClientID,
		ClientSecret:    i.ClientSecret,
		Username:        i.Username,
		Password:        i.Password,
		PageSize:        i.PageSize,
		ServicePrefixes: i.ServicePrefixes,
	}
	if i.ConnectTimeout != nil {
		cfg.ConnectTimeout = time.Duration(*i.ConnectTimeout)
	}
	if i.ReadTimeout != nil {
		cfg.ReadTimeout = time.Duration(*i.ReadTimeout)
	}
	return cfg
}

// Reconcile contains the reconciliation run settings.
// The SchedulerEnabled and AlwaysUpsert fields are defined as pointers,
// so it is possible to detect if they are or are not initialized and
// replace them with their default values (false and true respectively).
type Reconcile struct {
	SchedulerEnabled *bool              `yaml:"scheduler-enabled"`
	Interval         *settings.Duration `yaml:"interval"`
	AlwaysUpsert     *bool              `yaml:"always-upsert"`

	// ExcludedPrincipals lists principal names (or name prefixes,
	// when suffixed with *) which the reconciliation must never
	// delete at the broker.
	ExcludedPrincipals []string `yaml:"excluded-principals"`

	Mechanism  string `validate:"omitempty"`
	Iterations int    `validate:"omitempty,min=4096"`
	ClusterID  string `yaml:"cluster-id"`

	AlterBatchSize int `yaml:"alter-batch-size" validate:"omitempty,min=1"`
}

// DefaultReconcileInterval is the scheduled reconciliation period when
// the scheduler is enabled without an explicit interval.
const DefaultReconcileInterval = 120 * time.Second

// UseCaseOptions converts the `r` settings into reconciliation use
// case functional options.
func (r Reconcile) UseCaseOptions(realm string) []reconuc.Option {
	opts := []reconuc.Option{
		reconuc.WithRealm(realm),
		reconuc.WithAlwaysUpsert(r.alwaysUpsert()),
	}
	if len(r.ExcludedPrincipals) > 0 {
		opts = append(
			opts, reconuc.WithExcludedPrincipals(r.ExcludedPrincipals),
		)
	}
	if r.Mechanism != "" {
		opts = append(
			opts, reconuc.WithMechanism(model.Mechanism(r.Mechanism)),
		)
	}
	if r.Iterations != 0 {
		opts = append(opts, reconuc.WithIterations(r.Iterations))
	}
	if r.ClusterID != "" {
		opts = append(opts, reconuc.WithClusterID(r.ClusterID))
	}
	if r.AlterBatchSize != 0 {
		opts = append(opts, reconuc.WithAlterBatchSize(r.AlterBatchSize))
	}
	return opts
}

// SchedulerInterval returns the scheduled reconciliation period, or
// zero when the scheduler is disabled.
func (r Reconcile) SchedulerInterval() time.Duration {
	if r.SchedulerEnabled == nil || !*r.SchedulerEnabled {
		return 0
	}
	if r.Interval != nil {
		return time.Duration(*r.Interval)
	}
	return DefaultReconcileInterval
}

func (r Reconcile) alwaysUpsert() bool {
	return r.AlwaysUpsert == nil || *r.AlwaysUpsert
}

// Retention contains the retention purger settings. The byte and age
// limits live in the database (managed by the Control API); when they
// are configured here too, the agent replaces the stored limits with
// them at startup.
type Retention struct {
	MaxBytes      *int64             `yaml:"max-bytes"`
	MaxAgeDays    *int               `yaml:"max-age-days"`
	PurgeInterval *settings.Duration `yaml:"purge-interval"`
	PurgeBatch    int                `yaml:"purge-batch" validate:"omitempty,min=1"`
}

// Policy returns the configured retention limits as a policy value,
// along with whether any limit is configured at all. A false result
// means the stored retention row must be left untouched.
func (r Retention) Policy() (model.RetentionPolicy, bool) {
	return model.RetentionPolicy{
		MaxBytes:   r.MaxBytes,
		MaxAgeDays: r.MaxAgeDays,
	}, r.MaxBytes != nil || r.MaxAgeDays != nil
}

// UseCaseOptions converts the `r` settings into purger use case
// functional options.
func (r Retention) UseCaseOptions() []purgeuc.Option {
	var opts []purgeuc.Option
	if r.PurgeInterval != nil {
		opts = append(
			opts, purgeuc.WithInterval(time.Duration(*r.PurgeInterval)),
		)
	}
	if r.PurgeBatch != 0 {
		opts = append(opts, purgeuc.WithPurgeBatch(r.PurgeBatch))
	}
	return opts
}

// Events contains the admin event queue settings.
type Events struct {
	Capacity int    `validate:"omitempty,min=1"`
	Overflow string `validate:"omitempty,oneof=REJECT DROP_OLDEST"`
	Workers  int    `validate:"omitempty,min=1"`

	MaxAttempts int                `yaml:"max-attempts" validate:"omitempty,min=1"`
	BaseDelay   *settings.Duration `yaml:"base-delay"`
	MaxDelay    *settings.Duration `yaml:"max-delay"`
}

// UseCaseOptions converts the `e` settings into event use case
// functional options. The realm allow-list and the SCRAM settings are
// shared with the reconciliation section, so they are passed in.
func (e Events) UseCaseOptions(
	r Reconcile, realmAllowlist []string,
) []eventuc.Option {
	var opts []eventuc.Option
	if e.Capacity != 0 {
		opts = append(opts, eventuc.WithCapacity(e.Capacity))
	}
	if e.Overflow != "" {
		opts = append(opts, eventuc.WithOverflowPolicy(
			eventuc.OverflowPolicy(e.Overflow),
		))
	}
	if e.Workers != 0 {
		opts = append(opts, eventuc.WithWorkers(e.Workers))
	}
	if e.MaxAttempts != 0 || e.BaseDelay != nil || e.MaxDelay != nil {
		// a partially configured schedule keeps the use case defaults
		// for its missing pieces
		attempts := e.MaxAttempts
		if attempts == 0 {
			attempts = eventuc.DefaultMaxAttempts
		}
		base := eventuc.DefaultBaseDelay
		if e.BaseDelay != nil {
			base = time.Duration(*e.BaseDelay)
		}
		maxd := eventuc.DefaultMaxDelay
		if e.MaxDelay != nil {
			maxd = time.Duration(*e.MaxDelay)
		}
		opts = append(opts, eventuc.WithRetry(attempts, base, maxd))
	}
	if len(realmAllowlist) > 0 {
		opts = append(opts, eventuc.WithRealmAllowList(realmAllowlist))
	}
	if r.Mechanism != "" {
		opts = append(
			opts, eventuc.WithMechanism(model.Mechanism(r.Mechanism)),
		)
	}
	if r.Iterations != 0 {
		opts = append(opts, eventuc.WithIterations(r.Iterations))
	}
	if r.ClusterID != "" {
		opts = append(opts, eventuc.WithClusterID(r.ClusterID))
	}
	return opts
}

// Load function loads, validates, and normalizes the configuration
// file and returns its settings as an instance of the Config struct.
// Environment variables (see applyEnv for the recognized names)
// override the file settings before validation, so a setting may come
// from either source.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals the data byte slice and loads a Config instance
// assuming that it contains the Config settings. Extra items in the
// data will be ignored and missing items will take their default
// values. Thereafter, loaded Config will be overridden from the
// environment, validated, and normalized in order to ensure that the
// provided settings are acceptable.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := c.ValidateAndNormalize(); err != nil {
		return nil, fmt.Errorf("validating configs: %w", err)
	}
	return c, nil
}

// ValidateAndNormalize validates the configuration settings and
// returns an error if they were not acceptable. It can also modify
// settings in order to normalize them or replace some zero values with
// their expected default values (if any).
func (c *Config) ValidateAndNormalize() error {
	// now, deal with defaults
	settings.Nil2Zero(&c.HTTP.Logger)
	settings.Nil2Zero(&c.HTTP.Recovery)
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.Reconcile.Mechanism != "" {
		m, err := model.ParseMechanism(c.Reconcile.Mechanism)
		if err != nil {
			return fmt.Errorf("reconcile mechanism: %w", err)
		}
		c.Reconcile.Mechanism = string(m)
	}
	minInterval := settings.Duration(time.Second)
	if err := settings.VerifyRange(
		&c.Reconcile.Interval, &minInterval, nil,
	); err != nil {
		return fmt.Errorf("reconcile interval %v: %w", err.Value, err)
	}
	if err := settings.VerifyRange(
		&c.Retention.PurgeInterval, &minInterval, nil,
	); err != nil {
		return fmt.Errorf(
			"retention purge-interval %v: %w", err.Value, err,
		)
	}
	if p, ok := c.Retention.Policy(); ok {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("retention limits: %w", err)
		}
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// applyEnv overrides the `c` settings from the environment, using the
// given lookup function (os.LookupEnv in production, replaceable by
// tests). Unset variables leave the file settings untouched.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	csv := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitCSV(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = n
	}
	optnum := func(key string, dst **int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = &n
	}
	num64 := func(key string, dst **int64) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = &n
	}
	boolean := func(key string, dst **bool) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		*dst = &b
	}
	millis := func(key string, dst **settings.Duration) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		ms, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		d := settings.Duration(time.Duration(ms) * time.Millisecond)
		*dst = &d
	}
	seconds := func(key string, dst **settings.Duration) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		s, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", key, perr)
			return
		}
		d := settings.Duration(time.Duration(s) * time.Second)
		*dst = &d
	}

	str("DATABASE_HOST", &c.Database.Host)
	num("DATABASE_PORT", &c.Database.Port)
	str("DATABASE_NAME", &c.Database.Name)
	str("DATABASE_USER", &c.Database.User)
	str("DATABASE_PASSWORD", &c.Database.Password)

	csv("BROKER_BOOTSTRAP", &c.Broker.Bootstrap)
	str("BROKER_SASL_MECHANISM", &c.Broker.SASLMechanism)
	str("BROKER_SASL_USERNAME", &c.Broker.SASLUsername)
	str("BROKER_SASL_PASSWORD", &c.Broker.SASLPassword)
	millis("BROKER_REQUEST_TIMEOUT_MS", &c.Broker.RequestTimeout)
	millis("BROKER_DEFAULT_API_TIMEOUT_MS", &c.Broker.APITimeout)

	str("IDP_URL", &c.IdP.URL)
	str("IDP_REALM", &c.IdP.Realm)
	str("IDP_CLIENT_ID", &c.IdP.ClientID)
	str("IDP_CLIENT_SECRET", &c.IdP.ClientSecret)
	str("IDP_USERNAME", &c.IdP.Username)
	str("IDP_PASSWORD", &c.IdP.Password)
	millis("IDP_CONNECT_TIMEOUT_MS", &c.IdP.ConnectTimeout)
	millis("IDP_READ_TIMEOUT_MS", &c.IdP.ReadTimeout)

	boolean("RECONCILE_SCHEDULER_ENABLED", &c.Reconcile.SchedulerEnabled)
	seconds("RECONCILE_INTERVAL_SECONDS", &c.Reconcile.Interval)
	num("RECONCILE_PAGE_SIZE", &c.IdP.PageSize)
	boolean("RECONCILE_ALWAYS_UPSERT", &c.Reconcile.AlwaysUpsert)
	csv("RECONCILE_EXCLUDED_PRINCIPALS", &c.Reconcile.ExcludedPrincipals)

	num64("RETENTION_MAX_BYTES", &c.Retention.MaxBytes)
	optnum("RETENTION_MAX_AGE_DAYS", &c.Retention.MaxAgeDays)
	seconds(
		"RETENTION_PURGE_INTERVAL_SECONDS", &c.Retention.PurgeInterval,
	)

	num("EVENT_QUEUE_CAPACITY", &c.Events.Capacity)
	str("EVENT_QUEUE_OVERFLOW", &c.Events.Overflow)
	num("EVENT_WORKERS", &c.Events.Workers)

	csv("REALM_ALLOWLIST", &c.RealmAllowlist)
	return err
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
