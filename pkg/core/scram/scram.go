// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scram exports the expected interface for Salted Challenge
// Response Authentication Mechanism (SCRAM) verifier generation. For
// the corresponding implementation, check the adapter layer.
//
// Interfaces are defined based on the use cases requirements. A full
// SCRAM implementation (RFC 5802 and RFC 7677) would need client and
// server conversation types which exchange challenge and response
// messages. However, in our use cases, it is only required to derive
// the salted password which the broker stores and runs the server side
// of the exchange against. The client side of the exchange is managed
// by the applications which authenticate to the broker and so is not
// needed in the use cases layer.
//
// See the Generator interface for the expected implementation
// features. It is used by the reconciliation orchestrator and by the
// in-IdP plug-in in order to derive broker credentials without ever
// persisting a plaintext password.
package scram

import "github.com/scramsync/scramsync/pkg/core/model"

// Generator represents the expectations from a SCRAM verifier
// generator implementation which for a specific mechanism computes
// the RFC 5802 salted password by the PBKDF2 algorithm, slowing down
// dictionary attacks as detailed in that RFC.
type Generator interface {
	// Generate derives a model.Verifier from the given plaintext
	// password. The password must be non-empty, the mechanism must be
	// supported, and iters must be at least model.MinIterations,
	// otherwise an invalid-input error is returned.
	//
	// A fresh 32-byte salt is read from a cryptographic RNG for every
	// call. The plaintext password buffers are wiped before Generate
	// returns, on every exit path.
	Generate(
		password string, mechanism model.Mechanism, iters int,
	) (*model.Verifier, error)
}
