// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scram presents the RFC 5802 verifier generator for the
// SCRAM-SHA-256 and SCRAM-SHA-512 mechanisms. The salted password is
// computed by PBKDF2 with an HMAC of the underlying hash algorithm
// and an output length matching that algorithm (32 bytes for SHA-256
// and 64 bytes for SHA-512).
// The resulting bytes are exactly what the broker admin API expects
// for a SCRAM credential upsert, so no further encoding takes place
// in this package.
package scram

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"

	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Generator derives RFC 5802 SCRAM verifiers. It implements the
// github.com/scramsync/scramsync/pkg/core/scram.Generator interface,
// so it may be used in the use cases layer without any dependency on
// the actual implementation.
//
// The zero value is ready for use. A non-nil saltSource replaces the
// cryptographic RNG and exists only for the deterministic test vectors
// (given the same password, salt, and iterations, the output must be
// bit-identical across platforms).
type Generator struct {
	saltSource func(n int) ([]byte, error)
}

// New returns a Generator reading salts from crypto/rand.
func New() *Generator {
	return &Generator{}
}

// NewWithSalt returns a Generator which always uses the given salt
// instead of a random one. Deterministic tests only.
func NewWithSalt(salt []byte) *Generator {
	return &Generator{
		saltSource: func(int) ([]byte, error) {
			return salt, nil
		},
	}
}

// Generate derives a model.Verifier from the given plaintext password
// using the given mechanism and iterations count.
// The password must be non-empty and iters must be at least
// model.MinIterations, otherwise a bad-request error is returned
// without touching the RNG. The intermediate plaintext buffer is wiped
// before Generate returns, on every exit path.
func (g *Generator) Generate(
	password string, mechanism model.Mechanism, iters int,
) (*model.Verifier, error) {
	switch {
	case password == "":
		return nil, cerr.BadRequest(
			fmt.Errorf("password must be non-empty"),
		)
	case iters < model.MinIterations:
		return nil, cerr.BadRequest(fmt.Errorf(
			"iterations (%d) is less than %d",
			iters, model.MinIterations,
		))
	}
	if err := mechanism.Validate(); err != nil {
		return nil, cerr.BadRequest(err)
	}
	salt, err := g.salt(model.SaltLen)
	if err != nil {
		return nil, fmt.Errorf("creating random salt: %w", err)
	}
	pass := []byte(password)
	defer model.Wipe(pass)
	salted := pbkdf2.Key(
		pass, salt, iters, mechanism.KeyLen(), hashNew(mechanism),
	)
	return &model.Verifier{
		Mechanism:      mechanism,
		Salt:           salt,
		SaltedPassword: salted,
		Iterations:     iters,
	}, nil
}

// Verify recomputes the PBKDF2 derivation for the given password and
// reports whether it matches the salted password of v. It backs the
// round-trip property tests and is never used on a live password.
func Verify(v *model.Verifier, password string) bool {
	pass := []byte(password)
	defer model.Wipe(pass)
	salted := pbkdf2.Key(
		pass, v.Salt, v.Iterations,
		v.Mechanism.KeyLen(), hashNew(v.Mechanism),
	)
	if len(salted) != len(v.SaltedPassword) {
		return false
	}
	// constant time is not required here; Verify only runs in tests
	for i := range salted {
		if salted[i] != v.SaltedPassword[i] {
			return false
		}
	}
	return true
}

func (g *Generator) salt(n int) ([]byte, error) {
	if g.saltSource != nil {
		return g.saltSource(n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func hashNew(m model.Mechanism) func() hash.Hash {
	if m == model.SCRAMSHA512 {
		return sha512.New
	}
	return sha256.New
}
