// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package reconuc

import (
	"sort"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// Diff computes the sync plan which brings the broker principal set
// into agreement with the IdP user set. It is a pure function of its
// two snapshots:
//   - a user is upserted if it is absent at the broker, or always when
//     opts.AlwaysUpsert is set;
//   - a broker principal is deleted if no IdP user carries its name
//     and it does not match the exclusion list.
//
// Upserts preserve the enumeration order of users and deletes are
// sorted lexicographically, so the plan is deterministic.
func Diff(
	users []model.User,
	brokerPrincipals map[string][]model.Mechanism,
	opts model.DiffOptions,
) model.SyncPlan {
	var plan model.SyncPlan
	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.Username] = struct{}{}
		if _, ok := brokerPrincipals[u.Username]; !ok || opts.AlwaysUpsert {
			plan.Upserts = append(plan.Upserts, u)
		}
	}
	for name := range brokerPrincipals {
		if _, ok := known[name]; ok {
			continue
		}
		if opts.Excludes(name) {
			continue
		}
		plan.Deletes = append(plan.Deletes, model.Principal{Name: name})
	}
	sort.Slice(plan.Deletes, func(i, j int) bool {
		return plan.Deletes[i].Name < plan.Deletes[j].Name
	})
	return plan
}
