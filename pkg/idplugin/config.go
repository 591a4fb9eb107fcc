// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package idplugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// Configuration keys as seen by the host config scope and the process
// properties, with their environment variable fallbacks.
const (
	KeyRealms     = "realms"
	KeyMechanisms = "mechanisms"
	KeyIterations = "iterations"

	EnvRealms     = "REALM_ALLOWLIST"
	EnvMechanisms = "SCRAM_MECHANISMS"
	EnvIterations = "SCRAM_ITERATIONS"
)

// Settings holds the resolved plug-in configuration.
type Settings struct {
	// Realms is the realm allow-list; empty admits all realms.
	Realms []string
	// Mechanisms lists the SCRAM mechanisms to push per credential
	// change. Defaults to SCRAM-SHA-256 alone.
	Mechanisms []model.Mechanism
	// Iterations is the PBKDF2 iterations count.
	Iterations int
}

// Resolver reads plug-in configuration with the source priority
// host config scope > process property > environment variable.
type Resolver struct {
	scope ConfigScope
	props map[string]string

	// lookupEnv is replaced by tests.
	lookupEnv func(string) (string, bool)
}

// NewResolver builds a Resolver over the host scope (may be nil) and
// the process-wide properties (may be nil).
func NewResolver(scope ConfigScope, props map[string]string) *Resolver {
	return &Resolver{
		scope:     scope,
		props:     props,
		lookupEnv: os.LookupEnv,
	}
}

// lookup returns the value for key, consulting the sources in priority
// order. The env parameter names the environment variable fallback.
func (r *Resolver) lookup(key, env string) (string, bool) {
	if r.scope != nil {
		if v, ok := r.scope.Get(key); ok {
			return v, true
		}
	}
	if v, ok := r.props[key]; ok {
		return v, true
	}
	return r.lookupEnv(env)
}

// Settings resolves and validates the plug-in settings.
func (r *Resolver) Settings() (*Settings, error) {
	s := &Settings{
		Mechanisms: []model.Mechanism{model.SCRAMSHA256},
		Iterations: model.MinIterations,
	}
	if v, ok := r.lookup(KeyRealms, EnvRealms); ok {
		s.Realms = splitCSV(v)
	}
	if v, ok := r.lookup(KeyMechanisms, EnvMechanisms); ok {
		names := splitCSV(v)
		s.Mechanisms = make([]model.Mechanism, 0, len(names))
		for _, name := range names {
			m, err := model.ParseMechanism(name)
			if err != nil {
				return nil, fmt.Errorf("mechanisms setting: %w", err)
			}
			s.Mechanisms = append(s.Mechanisms, m)
		}
		if len(s.Mechanisms) == 0 {
			return nil, fmt.Errorf("mechanisms setting is empty")
		}
	}
	if v, ok := r.lookup(KeyIterations, EnvIterations); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("iterations setting: %w", err)
		}
		if n < model.MinIterations {
			return nil, fmt.Errorf(
				"iterations %d is below the minimum %d",
				n, model.MinIterations,
			)
		}
		s.Iterations = n
	}
	return s, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
