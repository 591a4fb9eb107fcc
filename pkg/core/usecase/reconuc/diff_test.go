// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package reconuc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

func users(names ...string) []model.User {
	us := make([]model.User, len(names))
	for i, n := range names {
		us[i] = model.User{ID: n, Username: n, Enabled: true}
	}
	return us
}

func principals(names ...string) map[string][]model.Mechanism {
	ps := make(map[string][]model.Mechanism, len(names))
	for _, n := range names {
		ps[n] = []model.Mechanism{model.SCRAMSHA256}
	}
	return ps
}

func deleteNames(plan model.SyncPlan) []string {
	names := make([]string, len(plan.Deletes))
	for i, d := range plan.Deletes {
		names[i] = d.Name
	}
	return names
}

func upsertNames(plan model.SyncPlan) []string {
	names := make([]string, len(plan.Upserts))
	for i, u := range plan.Upserts {
		names[i] = u.Username
	}
	return names
}

func TestDiffCreatesMissingDeletesOrphans(t *testing.T) {
	plan := reconuc.Diff(
		users("u1", "u2", "u3"),
		principals("u1", "u4", "admin"),
		model.DiffOptions{Excluded: []string{"admin", "admin-*"}},
	)
	assert.Equal(t, []string{"u2", "u3"}, upsertNames(plan))
	assert.Equal(t, []string{"u4"}, deleteNames(plan))
}

func TestDiffAlwaysUpsertIncludesPresentUsers(t *testing.T) {
	plan := reconuc.Diff(
		users("u1", "u2", "u3"),
		principals("u1", "u4", "admin"),
		model.DiffOptions{
			AlwaysUpsert: true,
			Excluded:     []string{"admin", "admin-*"},
		},
	)
	assert.Equal(t, []string{"u1", "u2", "u3"}, upsertNames(plan))
	assert.Equal(t, []string{"u4"}, deleteNames(plan))
	assert.Equal(t, 4, plan.Size())
}

func TestDiffDeletesSortedLexicographically(t *testing.T) {
	plan := reconuc.Diff(
		nil,
		principals("zeta", "alpha", "mid"),
		model.DiffOptions{},
	)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, deleteNames(plan))
}

func TestDiffExclusionPrefixPatterns(t *testing.T) {
	plan := reconuc.Diff(
		nil,
		principals("admin-ops", "admin", "victim"),
		model.DiffOptions{Excluded: []string{"admin-*", "admin"}},
	)
	assert.Equal(t, []string{"victim"}, deleteNames(plan))
}

func TestDiffNoChangesYieldsEmptyPlan(t *testing.T) {
	plan := reconuc.Diff(
		users("u1", "u2"),
		principals("u1", "u2"),
		model.DiffOptions{},
	)
	require.Zero(t, plan.Size())
	assert.Empty(t, plan.Upserts)
	assert.Empty(t, plan.Deletes)
}

func TestDiffUpsertsPreserveEnumerationOrder(t *testing.T) {
	plan := reconuc.Diff(
		users("zeta", "alpha", "mid"),
		nil,
		model.DiffOptions{},
	)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, upsertNames(plan))
}
