// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"strings"
	"time"
)

// User models one IdP user record as reported by the IdP admin API.
// Only enabled, non-service users participate in synchronization.
type User struct {
	ID        string     // IdP-internal user identifier
	Username  string     // login name, case-sensitive
	Email     string     // optional email address
	Enabled   bool       // disabled users are never synchronized
	CreatedAt *time.Time // optional creation timestamp
}

// DefaultServicePrefixes lists the username prefixes which mark a user
// as a service account, excluding it from synchronization, unless the
// deployment overrides the prefix set.
var DefaultServicePrefixes = []string{
	"service-account-",
	"system-",
	"admin-",
}

// IsServiceUser reports whether the username of u starts with any of
// the given service-account prefixes.
func (u User) IsServiceUser(prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(u.Username, p) {
			return true
		}
	}
	return false
}

// Syncable reports whether u participates in synchronization, that is,
// whether it is enabled and is not a service user.
func (u User) Syncable(servicePrefixes []string) bool {
	return u.Enabled && !u.IsServiceUser(servicePrefixes)
}
