// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package kafka implements the broker SCRAM admin client over the
// Kafka admin protocol (DescribeUserScramCredentials and
// AlterUserScramCredentials, Kafka 2.7.0+), using the franz-go
// client. It adapts the wire-level error codes into the project error
// taxonomy: request timeouts are transient, unsupported protocol
// versions and rejected SASL authentication are fatal, and everything
// else is unknown.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/scramsync/scramsync/pkg/core/broker"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Default per-call timeouts.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultAPITimeout     = 60 * time.Second
)

// Config carries the broker connection settings.
type Config struct {
	BootstrapServers []string
	SASLMechanism    model.Mechanism // for the admin connection itself
	SASLUsername     string
	SASLPassword     string
	RequestTimeout   time.Duration // per admin request, default 30s
	APITimeout       time.Duration // overall call budget, default 60s
}

// Client is the Kafka implementation of the broker.Client interface.
type Client struct {
	cl             requester
	requestTimeout time.Duration
	apiTimeout     time.Duration
	closeFn        func()
}

// requester abstracts the franz-go client request path, so the unit
// tests can substitute a fake broker.
type requester interface {
	Request(context.Context, kmsg.Request) (kmsg.Response, error)
}

// New dials the broker admin surface. The connection is lazy; the
// first describe or alter call observes connectivity failures.
func New(cfg Config) (*Client, error) {
	if len(cfg.BootstrapServers) == 0 {
		return nil, cerr.BadRequest(
			errors.New("no bootstrap servers configured"),
		)
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
	}
	if cfg.SASLUsername != "" {
		auth := scram.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}
		if cfg.SASLMechanism == model.SCRAMSHA512 {
			opts = append(opts, kgo.SASL(auth.AsSha512Mechanism()))
		} else {
			opts = append(opts, kgo.SASL(auth.AsSha256Mechanism()))
		}
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	c := newWith(cl, cfg)
	c.closeFn = cl.Close
	return c, nil
}

func newWith(r requester, cfg Config) *Client {
	c := &Client{
		cl:             r,
		requestTimeout: cfg.RequestTimeout,
		apiTimeout:     cfg.APITimeout,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.apiTimeout <= 0 {
		c.apiTimeout = DefaultAPITimeout
	}
	return c
}

// Close terminates the underlying admin connections.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// DescribeAll enumerates every SCRAM principal at the broker.
func (c *Client) DescribeAll(
	ctx context.Context,
) (map[string][]model.Mechanism, error) {
	return c.describe(ctx, nil)
}

// Describe enumerates the SCRAM credentials of the given principals.
func (c *Client) Describe(
	ctx context.Context, principals []string,
) (map[string][]model.Mechanism, error) {
	return c.describe(ctx, principals)
}

func (c *Client) describe(
	ctx context.Context, principals []string,
) (map[string][]model.Mechanism, error) {
	req := kmsg.NewPtrDescribeUserSCRAMCredentialsRequest()
	for _, p := range principals {
		u := kmsg.NewDescribeUserSCRAMCredentialsRequestUser()
		u.Name = p
		req.Users = append(req.Users, u)
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	kresp, err := c.cl.Request(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	resp := kresp.(*kmsg.DescribeUserSCRAMCredentialsResponse)
	if resp.ErrorCode != 0 {
		return nil, classifyCode(resp.ErrorCode, resp.ErrorMessage)
	}
	out := make(map[string][]model.Mechanism, len(resp.Results))
	for _, res := range resp.Results {
		if res.ErrorCode != 0 {
			// RESOURCE_NOT_FOUND for an explicitly described but
			// absent principal is not an error; it is simply absent
			// from the snapshot.
			if kerr.ErrorForCode(res.ErrorCode) == kerr.ResourceNotFound {
				continue
			}
			return nil, classifyCode(res.ErrorCode, res.ErrorMessage)
		}
		mechs := make([]model.Mechanism, 0, len(res.CredentialInfos))
		for _, info := range res.CredentialInfos {
			m, err := model.MechanismFromCode(info.Mechanism)
			if err != nil {
				continue // future mechanisms are invisible to us
			}
			mechs = append(mechs, m)
		}
		out[res.User] = mechs
	}
	return out, nil
}

// Alter submits the batched upserts and deletions in one round trip
// and returns one future per principal. The request runs in its own
// goroutine; futures resolve when the broker answers. Per-principal
// failures resolve only their own future.
func (c *Client) Alter(
	ctx context.Context, alterations []broker.Alteration,
) (map[string]broker.Future, error) {
	req := kmsg.NewPtrAlterUserSCRAMCredentialsRequest()
	for _, a := range alterations {
		if a.Delete {
			d := kmsg.NewAlterUserSCRAMCredentialsRequestDeletion()
			d.Name = a.Principal.Name
			d.Mechanism = a.Mechanism.Code()
			req.Deletions = append(req.Deletions, d)
			continue
		}
		if a.Verifier == nil {
			return nil, cerr.BadRequest(fmt.Errorf(
				"upsert for %s carries no verifier", a.Principal,
			))
		}
		u := kmsg.NewAlterUserSCRAMCredentialsRequestUpsertion()
		u.Name = a.Principal.Name
		u.Mechanism = a.Verifier.Mechanism.Code()
		u.Iterations = int32(a.Verifier.Iterations)
		u.Salt = a.Verifier.Salt
		u.SaltedPassword = a.Verifier.SaltedPassword
		req.Upsertions = append(req.Upsertions, u)
	}

	done := make(chan struct{})
	results := make(map[string]error, len(alterations))
	futures := make(map[string]broker.Future, len(alterations))
	for _, a := range alterations {
		futures[a.Principal.Name] = &future{
			done: done, results: results, name: a.Principal.Name,
		}
	}

	go func() {
		defer close(done)
		rctx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), c.apiTimeout,
		)
		defer cancel()
		kresp, err := c.cl.Request(rctx, req)
		if err != nil {
			outer := classify(err)
			for name := range futures {
				results[name] = outer
			}
			return
		}
		resp := kresp.(*kmsg.AlterUserSCRAMCredentialsResponse)
		for _, res := range resp.Results {
			if res.ErrorCode != 0 {
				results[res.User] = classifyCode(
					res.ErrorCode, res.ErrorMessage,
				)
			}
		}
	}()
	return futures, nil
}

// Upsert stores a fresh verifier for one principal, waiting for its
// future to resolve.
func (c *Client) Upsert(
	ctx context.Context, p model.Principal, v *model.Verifier,
) error {
	futures, err := c.Alter(ctx, []broker.Alteration{
		{Principal: p, Verifier: v},
	})
	if err != nil {
		return err
	}
	return futures[p.Name].Wait(ctx)
}

// Delete removes the credential of one principal and mechanism,
// waiting for its future to resolve.
func (c *Client) Delete(
	ctx context.Context, p model.Principal, m model.Mechanism,
) error {
	futures, err := c.Alter(ctx, []broker.Alteration{
		{Principal: p, Delete: true, Mechanism: m},
	})
	if err != nil {
		return err
	}
	return futures[p.Name].Wait(ctx)
}

type future struct {
	done    <-chan struct{}
	results map[string]error
	name    string
}

// Wait blocks until the shared alter round trip resolves, returning
// the classified per-principal error, if any. The results map is not
// mutated after done is closed, so the read is race-free.
func (f *future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return cerr.Transient(ctx.Err())
	case <-f.done:
		return f.results[f.name]
	}
}

// classify maps a transport-level request error into the taxonomy.
func classify(err error) error {
	var ce *cerr.Error
	if errors.As(err, &ce) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return cerr.Transient(err)
	}
	if errors.Is(err, kerr.UnsupportedVersion) ||
		errors.Is(err, kerr.UnsupportedSaslMechanism) ||
		errors.Is(err, kerr.SaslAuthenticationFailed) {
		return cerr.Fatal(err)
	}
	return &cerr.Error{
		Err: err, HTTPStatusCode: 500, Code: cerr.CodeUnknown,
	}
}

// classifyCode maps a Kafka error code into the taxonomy.
func classifyCode(code int16, msg *string) error {
	err := kerr.ErrorForCode(code)
	if err == nil {
		err = fmt.Errorf("unknown kafka error code %d", code)
	}
	if msg != nil && *msg != "" {
		err = fmt.Errorf("%w: %s", err, *msg)
	}
	switch kerr.ErrorForCode(code) {
	case kerr.UnsupportedVersion, kerr.UnsupportedSaslMechanism,
		kerr.SaslAuthenticationFailed,
		kerr.ClusterAuthorizationFailed:
		return cerr.Fatal(err)
	case kerr.RequestTimedOut, kerr.NotController:
		return cerr.Transient(err)
	}
	if kerr.IsRetriable(err) {
		return cerr.Transient(err)
	}
	return &cerr.Error{
		Err: err, HTTPStatusCode: 500, Code: cerr.CodeUnknown,
	}
}
