// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package keycloak implements the IdP user enumerator over the
// Keycloak admin REST API. It authenticates with a client-credentials
// (or resource-owner password) token grant and walks the paginated
// users listing with bounded retries per page.
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/idp"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Defaults per the external interface contract.
const (
	DefaultPageSize       = 500
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// Per-page backoff schedule, capping a page at three attempts in
// total; after the last attempt the enumeration fails as a whole and
// partial results are discarded.
var retryDelays = []time.Duration{time.Second, 2 * time.Second}

// Config carries the Keycloak connection settings. Either the client
// secret (client_credentials grant) or a username/password pair
// (password grant) must be provided.
type Config struct {
	BaseURL        string
	Realm          string
	ClientID       string
	ClientSecret   string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	PageSize        int
	ServicePrefixes []string // defaults to model.DefaultServicePrefixes
}

// Client is the Keycloak implementation of the idp.Enumerator
// interface.
type Client struct {
	cfg  Config
	http *http.Client

	// sleep is replaced by tests to avoid real retry delays.
	sleep func(context.Context, time.Duration) error

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

var _ idp.Enumerator = (*Client)(nil)

// New validates the configuration and returns a Client. No network
// traffic happens before the first call.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.BaseURL == "":
		return nil, cerr.BadRequest(errors.New("IdP URL is required"))
	case cfg.Realm == "":
		return nil, cerr.BadRequest(errors.New("IdP realm is required"))
	case cfg.ClientID == "":
		return nil, cerr.BadRequest(errors.New("IdP client id is required"))
	case cfg.ClientSecret == "" && cfg.Password == "":
		return nil, cerr.BadRequest(
			errors.New("IdP client secret or password is required"),
		)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ServicePrefixes == nil {
		cfg.ServicePrefixes = model.DefaultServicePrefixes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}, nil
}

// kcUser is the wire shape of a Keycloak user representation, reduced
// to the fields this project consumes.
type kcUser struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Enabled          bool   `json:"enabled"`
	CreatedTimestamp int64  `json:"createdTimestamp"`
}

func (u kcUser) model() model.User {
	m := model.User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Enabled:  u.Enabled,
	}
	if u.CreatedTimestamp > 0 {
		t := time.UnixMilli(u.CreatedTimestamp)
		m.CreatedAt = &t
	}
	return m
}

// FetchAll streams the complete user population of the configured
// realm into the handler. Each request over-fetches by one row, so a
// response of at most PageSize rows is known to be the final page and
// an exactly-PageSize population costs a single request.
func (c *Client) FetchAll(ctx context.Context, h idp.UserHandler) error {
	offset := 0
	probe := c.cfg.PageSize + 1
	for {
		page, err := c.fetchPage(ctx, offset, probe)
		if err != nil {
			return err
		}
		for _, u := range page {
			mu := u.model()
			if !mu.Syncable(c.cfg.ServicePrefixes) {
				continue
			}
			if err := h(ctx, mu); err != nil {
				return err
			}
		}
		if len(page) <= c.cfg.PageSize {
			return nil
		}
		offset += len(page)
	}
}

// fetchPage reads one page with the bounded retry schedule.
func (c *Client) fetchPage(
	ctx context.Context, first, max int,
) ([]kcUser, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := c.listUsers(ctx, first, max)
		if err == nil {
			return page, nil
		}
		if !cerr.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt >= len(retryDelays) {
			break
		}
		if err := c.sleep(ctx, retryDelays[attempt]); err != nil {
			return nil, cerr.Transient(err)
		}
	}
	return nil, cerr.Transient(fmt.Errorf(
		"IdP unavailable after %d attempts: %w",
		len(retryDelays)+1, lastErr,
	))
}

func (c *Client) listUsers(
	ctx context.Context, first, max int,
) ([]kcUser, error) {
	q := url.Values{}
	q.Set("first", strconv.Itoa(first))
	q.Set("max", strconv.Itoa(max))
	q.Set("briefRepresentation", "true")
	var page []kcUser
	err := c.getJSON(
		ctx,
		fmt.Sprintf(
			"%s/admin/realms/%s/users?%s",
			c.cfg.BaseURL, c.cfg.Realm, q.Encode(),
		),
		&page,
	)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// LookupUsername resolves a user id into the login name.
func (c *Client) LookupUsername(
	ctx context.Context, id string,
) (string, error) {
	var u kcUser
	err := c.getJSON(
		ctx,
		fmt.Sprintf(
			"%s/admin/realms/%s/users/%s",
			c.cfg.BaseURL, c.cfg.Realm, url.PathEscape(id),
		),
		&u,
	)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func (c *Client) getJSON(
	ctx context.Context, rawURL string, out any,
) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, rawURL, nil,
	)
	if err != nil {
		return cerr.BadRequest(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.Transient(err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cerr.Transient(fmt.Errorf("decoding IdP response: %w", err))
	}
	return nil
}

// accessToken returns a cached admin token, refreshing it through the
// token endpoint when it is within 10 seconds of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.tokenExp) > 10*time.Second {
		return c.token, nil
	}
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("grant_type", "client_credentials")
		form.Set("client_secret", c.cfg.ClientSecret)
	} else {
		form.Set("grant_type", "password")
		form.Set("username", c.cfg.Username)
		form.Set("password", c.cfg.Password)
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		fmt.Sprintf(
			"%s/realms/%s/protocol/openid-connect/token",
			c.cfg.BaseURL, c.cfg.Realm,
		),
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", cerr.BadRequest(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", cerr.Transient(err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", cerr.Transient(
			fmt.Errorf("decoding token response: %w", err),
		)
	}
	if tok.AccessToken == "" {
		return "", cerr.Fatal(errors.New("empty access token"))
	}
	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(
		time.Duration(tok.ExpiresIn) * time.Second,
	)
	return c.token, nil
}

// classifyStatus maps an IdP HTTP status into the error taxonomy:
// denied authentication is fatal, server-side failures are transient.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		return cerr.Fatal(fmt.Errorf("IdP denied access: %d", status))
	case status == http.StatusNotFound:
		return cerr.NotFound(fmt.Errorf("IdP resource not found"))
	case status >= 500, status == http.StatusTooManyRequests:
		return cerr.Transient(fmt.Errorf("IdP returned %d", status))
	}
	return cerr.BadRequest(fmt.Errorf("IdP returned %d", status))
}
