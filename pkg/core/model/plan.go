// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

// SyncPlan is the immutable output of the diff engine, describing the
// broker mutations which bring its principal set into agreement with
// the IdP user set. Upserts preserve the enumeration order of the IdP
// users and deletes are sorted lexicographically, so a plan computed
// twice over the same snapshots is identical.
type SyncPlan struct {
	Upserts []User
	Deletes []Principal
}

// Size returns the number of individual broker mutations in p.
func (p SyncPlan) Size() int {
	return len(p.Upserts) + len(p.Deletes)
}

// DiffOptions tunes the diff engine.
type DiffOptions struct {
	// AlwaysUpsert re-upserts users which already exist at the broker,
	// refreshing their verifiers with fresh random credentials.
	AlwaysUpsert bool
	// Excluded lists principals which must never be deleted from the
	// broker. Entries are exact names, or prefix patterns when they
	// end in "*", such as "admin-*".
	Excluded []string
}

// Excludes reports whether name matches one of the exclusion entries
// of o, either exactly or by an "xyz-*" style prefix pattern.
func (o DiffOptions) Excludes(name string) bool {
	for _, e := range o.Excluded {
		if n := len(e); n > 0 && e[n-1] == '*' {
			if len(name) >= n-1 && name[:n-1] == e[:n-1] {
				return true
			}
			continue
		}
		if name == e {
			return true
		}
	}
	return false
}
