// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package idplugin

import "fmt"

// Interceptor sits on the host's password-hashing extension point. It
// captures the plaintext into the correlation store and then delegates
// to the host's default hasher, so the credential the IdP stores is
// untouched.
type Interceptor struct {
	store    *CorrelationStore
	delegate Hasher
}

// NewInterceptor wires an Interceptor to its correlation store and the
// host's default hasher.
func NewInterceptor(s *CorrelationStore, h Hasher) *Interceptor {
	return &Interceptor{store: s, delegate: h}
}

// EncodeCredential captures the plaintext for the given request and
// returns the host hasher's encoding of it. When the delegate fails,
// the captured plaintext is cleared immediately; the host will abort
// the request and the event stage never runs.
func (i *Interceptor) EncodeCredential(
	requestID, password string, iterations int,
) (string, error) {
	i.store.Put(requestID, password)
	encoded, err := i.delegate.Encode(password, iterations)
	if err != nil {
		i.store.Clear(requestID)
		return "", fmt.Errorf("delegating to host hasher: %w", err)
	}
	return encoded, nil
}

// Cleanup backs the host's guaranteed-cleanup hook, clearing whatever
// the request may have left in the store. It runs on every exit path,
// including failures and early returns.
func (i *Interceptor) Cleanup(requestID string) {
	i.store.Clear(requestID)
}
