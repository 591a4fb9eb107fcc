// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package idplugin implements the immediate sync path which runs
// inside the IdP process: a password hash interceptor capturing the
// plaintext on credential updates, a request-scoped correlation store
// carrying it to the event stage, and an admin event subscriber
// pushing the derived SCRAM verifier to the broker within the same
// IdP request.
//
// The host IdP is abstracted behind the small interfaces of this file;
// the concrete host bridge (the code registered with the IdP's
// extension points) provides them and forwards its callbacks into the
// Interceptor and Subscriber types.
package idplugin

import "context"

// Hasher is the host's default password hasher. The interceptor
// delegates to it unmodified, so the credential the IdP stores is
// exactly what it would have stored without the plug-in.
type Hasher interface {
	// Encode hashes the plaintext password with the host's own
	// algorithm and returns the encoded credential.
	Encode(password string, iterations int) (string, error)
}

// UsernameResolver resolves a user id (from an admin event resource
// path) into the login name through the host's user storage, without
// an out-of-process round trip.
type UsernameResolver interface {
	Username(ctx context.Context, realm, userID string) (string, error)
}

// ConfigScope reads one configuration value from the host-provided
// plug-in configuration. It is the highest-priority config source.
type ConfigScope interface {
	// Get returns the value for key and whether it was set.
	Get(key string) (string, bool)
}
