// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

import (
	"strings"
	"time"
)

// ResourceType enumerates the IdP admin event resource kinds which are
// relevant to credential synchronization.
type ResourceType string

// Relevant resource types. Events with other resource types are
// ignored by the event mapper.
const (
	ResourceUser   ResourceType = "USER"
	ResourceClient ResourceType = "CLIENT"
)

// OperationType enumerates the IdP admin event operation kinds.
type OperationType string

// Relevant operation types.
const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// AdminEvent is the minimal projection of an IdP admin event as
// consumed by the event mapper and the in-IdP subscriber. The
// ResourcePath has the users/{id}[/...] or clients/{id}[/...] shape.
type AdminEvent struct {
	Realm         string
	ResourceType  ResourceType
	OperationType OperationType
	ResourcePath  string
	// Username carries the already resolved login name when the event
	// source knows it; otherwise it is empty and the id from the
	// ResourcePath must be resolved through the IdP.
	Username string
}

// Password reset sub-paths which mark a USER UPDATE admin event as a
// credential change even though the resource path does not point at
// the credentials resource directly.
var passwordSubPaths = []string{
	"/reset-password",
	"/reset-password-email",
	"/execute-actions-email",
}

// IsPasswordPath reports whether the resource path of e ends in one of
// the password reset sub-paths.
func (e AdminEvent) IsPasswordPath() bool {
	for _, p := range passwordSubPaths {
		if strings.HasSuffix(e.ResourcePath, p) {
			return true
		}
	}
	return false
}

// ResourceID extracts the {id} component from a users/{id}[/...] or
// clients/{id}[/...] resource path. The second return value reports
// whether the path matched one of those shapes; unmatched paths are
// ignored by callers.
func (e AdminEvent) ResourceID() (string, bool) {
	parts := strings.Split(e.ResourcePath, "/")
	if len(parts) < 2 {
		return "", false
	}
	switch parts[0] {
	case "users", "clients":
	default:
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Envelope wraps an admin event while it sits in the in-process event
// queue. The retry state lives on the envelope itself: ordering across
// retries is not preserved (a re-enqueued envelope loses its original
// queue position).
type Envelope struct {
	CorrelationID string
	Event         AdminEvent
	EnqueuedAt    time.Time
	RetryCount    int
	LastAttemptAt *time.Time
}
