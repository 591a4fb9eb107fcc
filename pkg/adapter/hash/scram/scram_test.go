// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scram_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xdg "github.com/xdg-go/scram"

	"github.com/scramsync/scramsync/pkg/adapter/hash/scram"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
	scrami "github.com/scramsync/scramsync/pkg/core/scram"
)

// Compile-time check that the adapter satisfies the core interface.
var _ scrami.Generator = (*scram.Generator)(nil)

func TestGenerateRejectsInvalidInput(t *testing.T) {
	g := scram.New()
	for name, tc := range map[string]struct {
		pass  string
		mech  model.Mechanism
		iters int
	}{
		"empty password":    {"", model.SCRAMSHA256, 4096},
		"low iterations":    {"secret", model.SCRAMSHA256, 4095},
		"unknown mechanism": {"secret", "SCRAM-MD5", 4096},
	} {
		t.Run(name, func(t *testing.T) {
			v, err := g.Generate(tc.pass, tc.mech, tc.iters)
			assert.Nil(t, v)
			var ce *cerr.Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, cerr.CodeInvalidInput, ce.Code)
		})
	}
}

func TestGenerateIsDeterministicWithInjectedSalt(t *testing.T) {
	salt := make([]byte, model.SaltLen)
	for i := range salt {
		salt[i] = byte(i)
	}
	g := scram.NewWithSalt(salt)
	v1, err := g.Generate("P@ss!1", model.SCRAMSHA256, 4096)
	require.NoError(t, err)
	v2, err := g.Generate("P@ss!1", model.SCRAMSHA256, 4096)
	require.NoError(t, err)
	assert.Equal(t, v1.SaltedPassword, v2.SaltedPassword)
	assert.Equal(t, salt, v1.Salt)
	assert.Len(t, v1.SaltedPassword, 32)

	v3, err := g.Generate("P@ss!1", model.SCRAMSHA512, 4096)
	require.NoError(t, err)
	assert.Len(t, v3.SaltedPassword, 64)
	assert.NotEqual(t, v1.SaltedPassword, v3.SaltedPassword[:32])
}

func TestGenerateRandomSaltsDiffer(t *testing.T) {
	g := scram.New()
	v1, err := g.Generate("secret", model.SCRAMSHA256, 4096)
	require.NoError(t, err)
	v2, err := g.Generate("secret", model.SCRAMSHA256, 4096)
	require.NoError(t, err)
	assert.NotEqual(t, v1.Salt, v2.Salt)
	assert.NotEqual(t, v1.SaltedPassword, v2.SaltedPassword)
	assert.Len(t, v1.Salt, model.SaltLen)
}

func TestVerifyRoundTrip(t *testing.T) {
	g := scram.New()
	for _, mech := range []model.Mechanism{
		model.SCRAMSHA256, model.SCRAMSHA512,
	} {
		v, err := g.Generate("P@ss!1", mech, 8192)
		require.NoError(t, err)
		assert.True(t, scram.Verify(v, "P@ss!1"))
		assert.False(t, scram.Verify(v, "P@ss!2"))
	}
}

// TestStoredKeyMatchesXDG derives the RFC 5802 StoredKey from our
// salted password and compares it against an independent derivation by
// the xdg-go/scram library, pinning the PBKDF2 output to the RFC
// semantics (not merely to itself).
func TestStoredKeyMatchesXDG(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	g := scram.NewWithSalt(salt)
	v, err := g.Generate("correct horse", model.SCRAMSHA256, 4096)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, v.SaltedPassword)
	mac.Write([]byte("Client Key"))
	clientKey := mac.Sum(nil)
	storedKey := sha256.Sum256(clientKey)

	c, err := xdg.SHA256.NewClient("any", "correct horse", "")
	require.NoError(t, err)
	sc := c.GetStoredCredentials(xdg.KeyFactors{
		Salt:  string(salt),
		Iters: 4096,
	})
	assert.Equal(t, sc.StoredKey, storedKey[:])
}
