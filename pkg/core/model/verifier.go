// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

// MinIterations is the minimum acceptable PBKDF2 iterations count as
// mandated by RFC 7677. The RFC recommends 15000 or more for new
// deployments; the configured default of this project is 4096 in order
// to match the broker's own default.
const MinIterations = 4096

// SaltLen is the length of generated salts in bytes.
const SaltLen = 32

// Verifier is an immutable RFC 5802 SCRAM credential as consumed by
// the broker admin API. The SaltedPassword field is the PBKDF2 output
//
//	SaltedPassword = PBKDF2-HMAC-<hash>(password, salt, iters, keyLen)
//
// where keyLen is Mechanism.KeyLen(). The verifier is opaque to this
// project after generation; only the broker interprets it during the
// SCRAM exchange. Plaintext passwords are never stored in a Verifier.
type Verifier struct {
	Mechanism      Mechanism
	Salt           []byte
	SaltedPassword []byte
	Iterations     int
}

// Wipe overwrites the given byte slice with zeros. It is used by the
// verifier generator and the plug-in correlation store to destroy
// plaintext password buffers on every exit path.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
