// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package idplugin

import (
	"context"
	"fmt"

	"github.com/scramsync/scramsync/pkg/core/broker"
	"github.com/scramsync/scramsync/pkg/core/log"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/scram"
)

// Subscriber receives admin events from the host, synchronously on
// the credential-change request path. A returned error propagates to
// the host, which rolls the password change back, so the IdP and the
// broker agree or neither changes.
type Subscriber struct {
	store    *CorrelationStore
	gen      scram.Generator
	brk      broker.Client
	resolver UsernameResolver

	realms     []string // allow-list; empty admits all realms
	mechanisms []model.Mechanism
	iterations int
}

// NewSubscriber wires a Subscriber from the plug-in settings and its
// collaborators.
func NewSubscriber(
	s *CorrelationStore, g scram.Generator, b broker.Client,
	r UsernameResolver, settings *Settings,
) *Subscriber {
	return &Subscriber{
		store:      s,
		gen:        g,
		brk:        b,
		resolver:   r,
		realms:     settings.Realms,
		mechanisms: settings.Mechanisms,
		iterations: settings.Iterations,
	}
}

// HandleAdminEvent applies one admin event. The correlation store
// entry of the request is cleared on every exit path; irrelevant and
// filtered events return nil so the host request proceeds untouched.
func (sub *Subscriber) HandleAdminEvent(
	ctx context.Context, requestID string, e model.AdminEvent,
) error {
	defer sub.store.Clear(requestID)

	if !sub.realmAllowed(e.Realm) {
		return nil
	}
	id, ok := e.ResourceID()
	if !ok {
		return nil
	}
	switch e.ResourceType {
	case model.ResourceUser:
		switch {
		case e.OperationType == model.OperationDelete:
			return sub.delete(ctx, e, id)
		case e.OperationType == model.OperationCreate,
			e.OperationType == model.OperationUpdate,
			e.IsPasswordPath():
			return sub.upsert(ctx, requestID, e, id)
		}
	case model.ResourceClient:
		switch e.OperationType {
		case model.OperationCreate, model.OperationUpdate:
			return sub.upsert(ctx, requestID, e, id)
		case model.OperationDelete:
			return sub.delete(ctx, e, id)
		}
	}
	return nil
}

// upsert pushes the captured password to the broker as fresh SCRAM
// verifiers. Without a captured password the event did not touch a
// credential and is skipped.
func (sub *Subscriber) upsert(
	ctx context.Context, requestID string, e model.AdminEvent, id string,
) error {
	password, ok := sub.store.Take(requestID)
	if !ok {
		return nil
	}
	username, err := sub.username(ctx, e, id)
	if err != nil {
		return err
	}
	principal := model.Principal{Realm: e.Realm, Name: username}
	for _, m := range sub.mechanisms {
		v, err := sub.gen.Generate(password, m, sub.iterations)
		if err != nil {
			return fmt.Errorf("deriving %s verifier: %w", m, err)
		}
		if err := sub.brk.Upsert(ctx, principal, v); err != nil {
			// Propagate, so the host rolls the password change back.
			return fmt.Errorf("pushing %s credential: %w", m, err)
		}
		log.Debug(ctx, "pushed credential to broker",
			log.Principal(principal), log.Mechanism(m),
		)
	}
	return nil
}

// delete removes the broker credentials of a deleted user or client.
func (sub *Subscriber) delete(
	ctx context.Context, e model.AdminEvent, id string,
) error {
	username, err := sub.username(ctx, e, id)
	if err != nil {
		return err
	}
	principal := model.Principal{Realm: e.Realm, Name: username}
	for _, m := range sub.mechanisms {
		if err := sub.brk.Delete(ctx, principal, m); err != nil {
			return fmt.Errorf("deleting %s credential: %w", m, err)
		}
	}
	return nil
}

func (sub *Subscriber) username(
	ctx context.Context, e model.AdminEvent, id string,
) (string, error) {
	if e.Username != "" {
		return e.Username, nil
	}
	username, err := sub.resolver.Username(ctx, e.Realm, id)
	if err != nil {
		return "", fmt.Errorf("resolving username of %q: %w", id, err)
	}
	return username, nil
}

func (sub *Subscriber) realmAllowed(realm string) bool {
	if len(sub.realms) == 0 {
		return true
	}
	for _, r := range sub.realms {
		if r == realm {
			return true
		}
	}
	return false
}
