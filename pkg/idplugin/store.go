// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package idplugin

import "sync"

// CorrelationStore carries a captured plaintext password from the
// interceptor to the subscriber within one IdP request. Entries are
// keyed by the host request identity; a cross-request read is a bug.
//
// Every exit path of the request must clear its entry: the subscriber
// takes (and thereby clears) it when it handles the event, and the
// host bridge calls Clear in its guaranteed-cleanup hook so failures
// and early returns cannot leak a password into the next request.
type CorrelationStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewCorrelationStore creates an empty store.
func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{m: make(map[string][]byte)}
}

// Put records the plaintext for the given request, replacing (and
// wiping) any previous entry of that request.
func (s *CorrelationStore) Put(requestID, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.m[requestID]; ok {
		wipe(old)
	}
	s.m[requestID] = []byte(password)
}

// Take returns the plaintext of the given request and clears the
// entry. The second result reports whether an entry existed.
func (s *CorrelationStore) Take(requestID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.m[requestID]
	if !ok {
		return "", false
	}
	delete(s.m, requestID)
	password := string(buf)
	wipe(buf)
	return password, true
}

// Clear wipes and removes the entry of the given request, if any. It
// is idempotent, so the cleanup hook may run after a successful Take.
func (s *CorrelationStore) Clear(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.m[requestID]; ok {
		wipe(buf)
		delete(s.m, requestID)
	}
}

// Len returns the number of live entries, for leak assertions.
func (s *CorrelationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
