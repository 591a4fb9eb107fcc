// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package model defines the inner most layer of the Clean Architecture
// containing the business-level models, also called entities or domain.
// This layer may not depend on outter layers, while all other layers
// may depend on it.
// By the way, it is acceptable to annotate structs in this package with
// multiple frameworks dependent tags (e.g., as required by ORM
// libraries) since adding more tags does not complicate definition of
// a struct, but can prevent unnecessary structs duplication.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Principal identifies a broker-side identity as a (realm, name) pair.
// The realm is the IdP tenant identifier which the user belongs to and
// the name is the user login name which is also used as the SASL
// authentication identity at the broker. Name comparison is exact and
// case-sensitive everywhere in this project.
type Principal struct {
	Realm string // IdP tenant identifier
	Name  string // login name, also the broker SASL identity
}

// String returns the realm-qualified representation of p, such as
// "master/alice". It is only used for logging and error messages;
// the broker itself is keyed by the bare Name.
func (p Principal) String() string {
	return p.Realm + "/" + p.Name
}

// Mechanism enumerates the SCRAM mechanisms which are supported by
// this project for verifier generation and broker credential upserts,
// as defined by RFC 5802 and RFC 7677.
type Mechanism string

// Supported SCRAM mechanisms. The numeric codes match the broker admin
// RPC mechanism identifiers (1 for SHA-256 and 2 for SHA-512).
const (
	SCRAMSHA256 Mechanism = "SCRAM-SHA-256"
	SCRAMSHA512 Mechanism = "SCRAM-SHA-512"
)

// ParseMechanism converts a mechanism name, such as SCRAM-SHA-256 or
// the short sha-256 form, into a Mechanism instance. Unknown names are
// reported as an error instead of being passed through, so a typo in
// the configuration cannot reach the broker.
func ParseMechanism(s string) (Mechanism, error) {
	switch strings.ToUpper(s) {
	case "SCRAM-SHA-256", "SHA-256", "SHA256":
		return SCRAMSHA256, nil
	case "SCRAM-SHA-512", "SHA-512", "SHA512":
		return SCRAMSHA512, nil
	}
	return "", fmt.Errorf("unsupported SCRAM mechanism: %q", s)
}

// Validate returns an error if m is not one of the supported SCRAM
// mechanisms.
func (m Mechanism) Validate() error {
	switch m {
	case SCRAMSHA256, SCRAMSHA512:
		return nil
	}
	return errors.New("unsupported SCRAM mechanism: " + string(m))
}

// KeyLen returns the PBKDF2 output length in bytes for the underlying
// hash algorithm of m, that is, 32 for SHA-256 and 64 for SHA-512.
func (m Mechanism) KeyLen() int {
	if m == SCRAMSHA512 {
		return 64
	}
	return 32
}

// Code returns the broker admin RPC mechanism identifier of m.
func (m Mechanism) Code() int8 {
	if m == SCRAMSHA512 {
		return 2
	}
	return 1
}

// MechanismFromCode converts a broker admin RPC mechanism identifier
// into a Mechanism instance. Unknown codes are reported as an error.
func MechanismFromCode(code int8) (Mechanism, error) {
	switch code {
	case 1:
		return SCRAMSHA256, nil
	case 2:
		return SCRAMSHA512, nil
	}
	return "", fmt.Errorf("unknown SCRAM mechanism code: %d", code)
}
