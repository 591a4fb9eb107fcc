// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/scramsync/scramsync/pkg/core/broker"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// fakeBroker answers admin requests from canned responses.
type fakeBroker struct {
	describe *kmsg.DescribeUserSCRAMCredentialsResponse
	alter    *kmsg.AlterUserSCRAMCredentialsResponse
	err      error

	lastAlter *kmsg.AlterUserSCRAMCredentialsRequest
}

func (f *fakeBroker) Request(
	_ context.Context, req kmsg.Request,
) (kmsg.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch r := req.(type) {
	case *kmsg.DescribeUserSCRAMCredentialsRequest:
		return f.describe, nil
	case *kmsg.AlterUserSCRAMCredentialsRequest:
		f.lastAlter = r
		return f.alter, nil
	}
	panic("unexpected request type")
}

func testClient(f *fakeBroker) *Client {
	return newWith(f, Config{APITimeout: 2 * time.Second})
}

func strPtr(s string) *string { return &s }

func TestDescribeAllSnapshots(t *testing.T) {
	resp := kmsg.NewPtrDescribeUserSCRAMCredentialsResponse()
	for _, u := range []struct {
		name  string
		mechs []int8
	}{
		{"alice", []int8{1}},
		{"bob", []int8{1, 2}},
	} {
		res := kmsg.NewDescribeUserSCRAMCredentialsResponseResult()
		res.User = u.name
		for _, m := range u.mechs {
			info := kmsg.NewDescribeUserSCRAMCredentialsResponseResultCredentialInfo()
			info.Mechanism = m
			info.Iterations = 4096
			res.CredentialInfos = append(res.CredentialInfos, info)
		}
		resp.Results = append(resp.Results, res)
	}
	c := testClient(&fakeBroker{describe: resp})

	got, err := c.DescribeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]model.Mechanism{
		"alice": {model.SCRAMSHA256},
		"bob":   {model.SCRAMSHA256, model.SCRAMSHA512},
	}, got)
}

func TestDescribeSkipsAbsentPrincipals(t *testing.T) {
	resp := kmsg.NewPtrDescribeUserSCRAMCredentialsResponse()
	res := kmsg.NewDescribeUserSCRAMCredentialsResponseResult()
	res.User = "ghost"
	res.ErrorCode = kerr.ResourceNotFound.Code
	resp.Results = append(resp.Results, res)
	c := testClient(&fakeBroker{describe: resp})

	got, err := c.Describe(context.Background(), []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDescribeTimeoutIsTransient(t *testing.T) {
	c := testClient(&fakeBroker{err: context.DeadlineExceeded})
	_, err := c.DescribeAll(context.Background())
	assert.Equal(t, cerr.CodeTransient, cerr.Classify(err))
}

func TestDescribeUnsupportedVersionIsFatal(t *testing.T) {
	c := testClient(&fakeBroker{err: kerr.UnsupportedVersion})
	_, err := c.DescribeAll(context.Background())
	assert.Equal(t, cerr.CodeFatal, cerr.Classify(err))
}

func TestAlterPartialFailure(t *testing.T) {
	resp := kmsg.NewPtrAlterUserSCRAMCredentialsResponse()
	okRes := kmsg.NewAlterUserSCRAMCredentialsResponseResult()
	okRes.User = "u2"
	badRes := kmsg.NewAlterUserSCRAMCredentialsResponseResult()
	badRes.User = "u3"
	badRes.ErrorCode = kerr.UnacceptableCredential.Code
	badRes.ErrorMessage = strPtr("iterations too low")
	resp.Results = append(resp.Results, okRes, badRes)
	fake := &fakeBroker{alter: resp}
	c := testClient(fake)

	v := &model.Verifier{
		Mechanism:      model.SCRAMSHA256,
		Salt:           make([]byte, model.SaltLen),
		SaltedPassword: make([]byte, 32),
		Iterations:     4096,
	}
	futures, err := c.Alter(context.Background(), []broker.Alteration{
		{Principal: model.Principal{Realm: "r", Name: "u2"}, Verifier: v},
		{Principal: model.Principal{Realm: "r", Name: "u3"}, Verifier: v},
	})
	require.NoError(t, err)
	require.Len(t, futures, 2)

	assert.NoError(t, futures["u2"].Wait(context.Background()))
	err = futures["u3"].Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations too low")

	require.NotNil(t, fake.lastAlter)
	assert.Len(t, fake.lastAlter.Upsertions, 2)
	assert.Empty(t, fake.lastAlter.Deletions)
}

func TestAlterBuildsDeletions(t *testing.T) {
	resp := kmsg.NewPtrAlterUserSCRAMCredentialsResponse()
	res := kmsg.NewAlterUserSCRAMCredentialsResponseResult()
	res.User = "u4"
	resp.Results = append(resp.Results, res)
	fake := &fakeBroker{alter: resp}
	c := testClient(fake)

	err := c.Delete(
		context.Background(),
		model.Principal{Realm: "r", Name: "u4"},
		model.SCRAMSHA256,
	)
	require.NoError(t, err)
	require.Len(t, fake.lastAlter.Deletions, 1)
	assert.Equal(t, "u4", fake.lastAlter.Deletions[0].Name)
	assert.Equal(t, int8(1), fake.lastAlter.Deletions[0].Mechanism)
}

func TestAlterOuterFailureResolvesAllFutures(t *testing.T) {
	c := testClient(&fakeBroker{err: context.DeadlineExceeded})
	futures, err := c.Alter(context.Background(), []broker.Alteration{
		{
			Principal: model.Principal{Realm: "r", Name: "u1"},
			Delete:    true,
			Mechanism: model.SCRAMSHA256,
		},
	})
	require.NoError(t, err)
	err = futures["u1"].Wait(context.Background())
	assert.Equal(t, cerr.CodeTransient, cerr.Classify(err))
}
