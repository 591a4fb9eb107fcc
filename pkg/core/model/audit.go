// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"errors"
	"time"
)

// OpType enumerates the kinds of synchronization operations which may
// be recorded in the audit store.
type OpType string

// Supported operation types.
const (
	OpScramUpsert OpType = "SCRAM_UPSERT"
	OpScramDelete OpType = "SCRAM_DELETE"
)

// Validate returns an error if t is not a known operation type.
func (t OpType) Validate() error {
	switch t {
	case OpScramUpsert, OpScramDelete:
		return nil
	}
	return errors.New("unknown operation type: " + string(t))
}

// OpResult enumerates the possible outcomes of one audited operation.
type OpResult string

// Supported operation results.
const (
	ResultSuccess OpResult = "SUCCESS"
	ResultError   OpResult = "ERROR"
	ResultSkipped OpResult = "SKIPPED"
)

// Validate returns an error if r is not a known operation result.
func (r OpResult) Validate() error {
	switch r {
	case ResultSuccess, ResultError, ResultSkipped:
		return nil
	}
	return errors.New("unknown operation result: " + string(r))
}

// BatchSource enumerates the possible initiators of a reconciliation
// batch.
type BatchSource string

// Supported batch sources.
const (
	SourceScheduled BatchSource = "SCHEDULED"
	SourceManual    BatchSource = "MANUAL"
	SourceImmediate BatchSource = "IMMEDIATE"
)

// MaxErrorMessageLen bounds the error message column of operation
// rows. Longer messages are truncated before insertion.
const MaxErrorMessageLen = 1024

// Operation is one append-only audit row, recording the outcome of a
// single credential upsert or delete against the broker. Rows are
// owned by the batch identified by CorrelationID and are only appended
// by the reconciliation run (or event worker) which created that batch.
type Operation struct {
	ID            int64
	CorrelationID string
	OccurredAt    time.Time
	Realm         string
	ClusterID     string
	Principal     string
	OpType        OpType
	Mechanism     Mechanism // empty for deletes covering all mechanisms
	Result        OpResult
	ErrorCode     string // empty unless Result is ERROR
	ErrorMessage  string // truncated to MaxErrorMessageLen
	DurationMs    int64
}

// TruncateErrorMessage bounds msg to MaxErrorMessageLen bytes.
func TruncateErrorMessage(msg string) string {
	if len(msg) > MaxErrorMessageLen {
		return msg[:MaxErrorMessageLen]
	}
	return msg
}

// Batch is one reconciliation run record. A batch is complete iff
// FinishedAt is non-nil. Completed batches are immutable except by
// retention purging. The invariant ItemsSuccess+ItemsError <=
// ItemsTotal holds for every batch.
type Batch struct {
	ID            int64
	CorrelationID string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Source        BatchSource
	ItemsTotal    int
	ItemsSuccess  int
	ItemsError    int
}

// Complete reports whether b has finished (successfully or not).
func (b Batch) Complete() bool {
	return b.FinishedAt != nil
}

// RetentionPolicy is the singleton retention configuration row with
// identity 1. A nil limit means that the corresponding dimension is
// unbounded. ApproxDBBytes caches the last observed database size so
// the dashboard does not need a size probe on every read.
type RetentionPolicy struct {
	MaxBytes      *int64
	MaxAgeDays    *int
	ApproxDBBytes int64
	UpdatedAt     time.Time
}

// Retention policy validation bounds as accepted by the Control API.
const (
	RetentionMaxBytesLimit   = int64(10) << 30 // 10 GiB
	RetentionMaxAgeDaysLimit = 3650
)

// Validate checks the configured limits against the accepted bounds.
func (p RetentionPolicy) Validate() error {
	if p.MaxBytes != nil &&
		(*p.MaxBytes < 0 || *p.MaxBytes > RetentionMaxBytesLimit) {
		return errors.New("max_bytes is out of the [0, 10GiB] range")
	}
	if p.MaxAgeDays != nil &&
		(*p.MaxAgeDays < 0 || *p.MaxAgeDays > RetentionMaxAgeDaysLimit) {
		return errors.New("max_age_days is out of the [0, 3650] range")
	}
	return nil
}

// Summary aggregates the operations of the trailing hour for the
// Control API summary endpoint.
type Summary struct {
	WindowStart  time.Time
	OpsPerHour   int64
	ErrorRate    float64 // 0..1, zero when no operation exists
	LatencyP95Ms float64
	LatencyP99Ms float64
}

// OperationFilter restricts an audit operation listing. Zero values
// mean that the corresponding dimension is not filtered.
type OperationFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Principal string
	OpType    OpType
	Result    OpResult
}

// ReconciliationResult is returned by a reconciliation run, reporting
// the linking correlation id and per-result totals.
type ReconciliationResult struct {
	CorrelationID string
	Success       int
	Error         int
	Skipped       int
	DurationMs    int64
	FatalError    string // error code of an aborting outer failure
}
