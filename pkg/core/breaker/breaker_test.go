// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/cerr"
)

func transientErr() error {
	return cerr.Transient(errors.New("connection refused"))
}

func TestThresholdBoundary(t *testing.T) {
	b := breaker.New("broker")
	for i := 0; i < breaker.DefaultFailureThreshold-1; i++ {
		err := b.Do(transientErr)
		require.Error(t, err)
		require.NotEqual(t, cerr.CodeCircuitOpen, cerr.Classify(err))
	}
	assert.Equal(t, "CLOSED", b.State())

	require.Error(t, b.Do(transientErr))
	assert.Equal(t, "OPEN", b.State())
}

func TestOpenBreakerFailsFast(t *testing.T) {
	b := breaker.New("idp", breaker.WithFailureThreshold(1))
	require.Error(t, b.Do(transientErr))
	require.Equal(t, "OPEN", b.State())

	invoked := false
	start := time.Now()
	err := b.Do(func() error {
		invoked = true
		return nil
	})
	assert.False(t, invoked)
	assert.Equal(t, cerr.CodeCircuitOpen, cerr.Classify(err))
	assert.Less(t, time.Since(start), time.Millisecond)
}

func TestFatalTripsImmediately(t *testing.T) {
	b := breaker.New("broker")
	err := b.Do(func() error {
		return cerr.Fatal(errors.New("unsupported version"))
	})
	require.Error(t, err)
	assert.Equal(t, "OPEN", b.State())
}

func TestInvalidInputDoesNotTrip(t *testing.T) {
	b := breaker.New("broker", breaker.WithFailureThreshold(1))
	err := b.Do(func() error {
		return cerr.BadRequest(errors.New("empty password"))
	})
	require.Error(t, err)
	assert.Equal(t, "CLOSED", b.State())
}

func TestHalfOpenProbe(t *testing.T) {
	b := breaker.New(
		"broker",
		breaker.WithFailureThreshold(1),
		breaker.WithOpenInterval(30*time.Millisecond),
	)
	require.Error(t, b.Do(transientErr))
	require.Equal(t, "OPEN", b.State())

	time.Sleep(50 * time.Millisecond)
	// probe success closes the breaker again
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, "CLOSED", b.State())
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := breaker.New(
		"broker",
		breaker.WithFailureThreshold(1),
		breaker.WithOpenInterval(30*time.Millisecond),
	)
	require.Error(t, b.Do(transientErr))
	time.Sleep(50 * time.Millisecond)
	require.Error(t, b.Do(transientErr))
	assert.Equal(t, "OPEN", b.State())
}

func TestReset(t *testing.T) {
	b := breaker.New("idp", breaker.WithFailureThreshold(1))
	require.Error(t, b.Do(transientErr))
	require.Equal(t, "OPEN", b.State())
	b.Reset()
	assert.Equal(t, "CLOSED", b.State())
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestSetReadiness(t *testing.T) {
	s := breaker.NewSet(breaker.WithFailureThreshold(1))
	assert.True(t, s.AllClosed())
	require.Error(t, s.Broker.Do(transientErr))
	assert.False(t, s.AllClosed())
	s.Broker.Reset()
	assert.True(t, s.AllClosed())
}
