// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package keycloak

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// fakeIdP serves the token endpoint and a canned user population with
// Keycloak-style offset pagination.
type fakeIdP struct {
	users        []kcUser
	userRequests int
	failures     int // leading 503 responses on the users listing
}

func (f *fakeIdP) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/realms/master/protocol/openid-connect/token",
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok",
				"expires_in":   300,
			})
		},
	)
	mux.HandleFunc(
		"/admin/realms/master/users",
		func(w http.ResponseWriter, r *http.Request) {
			f.userRequests++
			if f.failures > 0 {
				f.failures--
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			first, _ := strconv.Atoi(r.URL.Query().Get("first"))
			max, _ := strconv.Atoi(r.URL.Query().Get("max"))
			end := first + max
			if end > len(f.users) {
				end = len(f.users)
			}
			if first > len(f.users) {
				first = len(f.users)
			}
			json.NewEncoder(w).Encode(f.users[first:end])
		},
	)
	return mux
}

func newTestClient(t *testing.T, f *fakeIdP, pageSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:      srv.URL,
		Realm:        "master",
		ClientID:     "sync-agent",
		ClientSecret: "s3cret",
		PageSize:     pageSize,
	})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func makeUsers(n int) []kcUser {
	users := make([]kcUser, n)
	for i := range users {
		users[i] = kcUser{
			ID:       "id-" + strconv.Itoa(i),
			Username: "user-" + strconv.Itoa(i),
			Enabled:  true,
		}
	}
	return users
}

func collect(t *testing.T, c *Client) []model.User {
	t.Helper()
	var got []model.User
	err := c.FetchAll(
		context.Background(),
		func(_ context.Context, u model.User) error {
			got = append(got, u)
			return nil
		},
	)
	require.NoError(t, err)
	return got
}

func TestFetchAllWalksPages(t *testing.T) {
	f := &fakeIdP{users: makeUsers(7)}
	c := newTestClient(t, f, 3)
	got := collect(t, c)
	require.Len(t, got, 7)
	assert.Equal(t, "user-0", got[0].Username)
	assert.Equal(t, "user-6", got[6].Username)
}

func TestFetchAllExactPageSizeIsOneRequest(t *testing.T) {
	f := &fakeIdP{users: makeUsers(5)}
	c := newTestClient(t, f, 5)
	got := collect(t, c)
	assert.Len(t, got, 5)
	assert.Equal(t, 1, f.userRequests)
}

func TestFetchAllFiltersDisabledAndServiceUsers(t *testing.T) {
	f := &fakeIdP{users: []kcUser{
		{ID: "1", Username: "alice", Enabled: true},
		{ID: "2", Username: "bob", Enabled: false},
		{ID: "3", Username: "service-account-app", Enabled: true},
		{ID: "4", Username: "system-backup", Enabled: true},
	}}
	c := newTestClient(t, f, 10)
	got := collect(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Username)
}

func TestFetchAllRetriesTransientPageFailures(t *testing.T) {
	f := &fakeIdP{users: makeUsers(2), failures: 2}
	c := newTestClient(t, f, 10)
	got := collect(t, c)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, f.userRequests)
}

func TestFetchAllFailsAfterRetryBudget(t *testing.T) {
	f := &fakeIdP{users: makeUsers(2), failures: 10}
	c := newTestClient(t, f, 10)
	var seen int
	err := c.FetchAll(
		context.Background(),
		func(context.Context, model.User) error {
			seen++
			return nil
		},
	)
	require.Error(t, err)
	assert.Equal(t, cerr.CodeTransient, cerr.Classify(err))
	assert.Zero(t, seen)
	assert.Equal(t, 3, f.userRequests) // 1 attempt + 2 retries
}

func TestLookupUsername(t *testing.T) {
	f := &fakeIdP{}
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/realms/master/protocol/openid-connect/token":
				f.handler().ServeHTTP(w, r)
			case "/admin/realms/master/users/abc-123":
				json.NewEncoder(w).Encode(kcUser{
					ID: "abc-123", Username: "alice", Enabled: true,
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:      srv.URL,
		Realm:        "master",
		ClientID:     "sync-agent",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)

	name, err := c.LookupUsername(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}
