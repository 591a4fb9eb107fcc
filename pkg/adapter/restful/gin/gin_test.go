// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/scramsync/scramsync/internal/test/auditmem"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/routes"
	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/broker"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/idp"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/usecase/eventuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

type fakeEnum struct {
	users []model.User
	// block, when non-nil, parks FetchAll until released, so a second
	// trigger request can race an in-progress run.
	started chan struct{}
	release chan struct{}
}

func (f *fakeEnum) FetchAll(ctx context.Context, h idp.UserHandler) error {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	for _, u := range f.users {
		if err := h(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEnum) LookupUsername(
	_ context.Context, id string,
) (string, error) {
	return "login-of-" + id, nil
}

type okFuture struct{}

func (okFuture) Wait(context.Context) error { return nil }

type fakeBrokerClient struct {
	existing map[string][]model.Mechanism
}

func (f *fakeBrokerClient) DescribeAll(
	context.Context,
) (map[string][]model.Mechanism, error) {
	return f.existing, nil
}

func (f *fakeBrokerClient) Describe(
	context.Context, []string,
) (map[string][]model.Mechanism, error) {
	return f.existing, nil
}

func (f *fakeBrokerClient) Alter(
	_ context.Context, alterations []broker.Alteration,
) (map[string]broker.Future, error) {
	futures := make(map[string]broker.Future, len(alterations))
	for _, a := range alterations {
		futures[a.Principal.Name] = okFuture{}
	}
	return futures, nil
}

func (f *fakeBrokerClient) Upsert(
	context.Context, model.Principal, *model.Verifier,
) error {
	return nil
}

func (f *fakeBrokerClient) Delete(
	context.Context, model.Principal, model.Mechanism,
) error {
	return nil
}

func (f *fakeBrokerClient) Close() {}

type fakeGen struct{}

func (fakeGen) Generate(
	password string, mechanism model.Mechanism, iters int,
) (*model.Verifier, error) {
	return &model.Verifier{
		Mechanism:      mechanism,
		Salt:           make([]byte, model.SaltLen),
		SaltedPassword: make([]byte, mechanism.KeyLen()),
		Iterations:     iters,
	}, nil
}

type GinTestSuite struct {
	suite.Suite

	Store    *auditmem.Store
	Breakers *breaker.Set
	Enum     *fakeEnum
	Gin      *gin.Engine
}

func TestGinTestSuite(t *testing.T) {
	suite.Run(t, &GinTestSuite{})
}

func (gts *GinTestSuite) SetupTest() {
	gts.Store = auditmem.New()
	gts.Breakers = breaker.NewSet()
	gts.Enum = &fakeEnum{
		users: []model.User{
			{ID: "u1", Username: "alice"},
			{ID: "u2", Username: "bob"},
		},
	}
	brk := &fakeBrokerClient{
		existing: map[string][]model.Mechanism{
			"alice": {model.SCRAMSHA256},
		},
	}
	recon, err := reconuc.New(
		gts.Store.Pool(), gts.Store.Audit(), brk, gts.Enum, fakeGen{},
		reconuc.WithBreakers(gts.Breakers),
	)
	gts.Require().NoError(err, "cannot instantiate reconciliation uc")
	events, err := eventuc.New(
		gts.Store.Pool(), gts.Store.Audit(), brk, gts.Enum, fakeGen{},
		eventuc.WithCapacity(1),
		eventuc.WithOverflowPolicy(eventuc.OverflowReject),
	)
	gts.Require().NoError(err, "cannot instantiate event uc")

	gts.Gin = gin.New(gin.Recovery())
	routes.Register(gts.Gin, routes.Deps{
		Pool:     gts.Store.Pool(),
		Audit:    gts.Store.Audit(),
		Recon:    recon,
		Events:   events,
		Breakers: gts.Breakers,
		Metrics: http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		),
		Accounts: gin.Accounts{"ops": "secret"},
	})
}

func (gts *GinTestSuite) serve(
	method, target, body string, authorized bool,
) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.SetBasicAuth("ops", "secret")
	}
	w := httptest.NewRecorder()
	gts.Gin.ServeHTTP(w, req)
	return w
}

func (gts *GinTestSuite) decode(
	w *httptest.ResponseRecorder, out any,
) {
	err := json.Unmarshal(w.Body.Bytes(), out)
	gts.Require().NoError(err, "cannot decode response: %s", w.Body)
}

func (gts *GinTestSuite) TestHealthz() {
	w := gts.serve(http.MethodGet, "/healthz", "", false)
	gts.Equal(http.StatusOK, w.Code)
}

func (gts *GinTestSuite) TestReadyzReflectsBreakers() {
	w := gts.serve(http.MethodGet, "/readyz", "", false)
	gts.Equal(http.StatusOK, w.Code)

	fatal := cerr.Fatal(errors.New("unsupported broker version"))
	_ = gts.Breakers.Broker.Do(func() error { return fatal })
	gts.Require().False(gts.Breakers.AllClosed())

	w = gts.serve(http.MethodGet, "/readyz", "", false)
	gts.Equal(http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	gts.decode(w, &resp)
	gts.False(resp.Ready)
	gts.Equal("OPEN", resp.Checks["brokerBreaker"])
}

func (gts *GinTestSuite) TestAPIRequiresBasicAuth() {
	w := gts.serve(http.MethodGet, "/api/reconcile/status", "", false)
	gts.Equal(http.StatusUnauthorized, w.Code)
	gts.Contains(w.Header().Get("WWW-Authenticate"), "Basic")

	w = gts.serve(http.MethodGet, "/api/reconcile/status", "", true)
	gts.Equal(http.StatusOK, w.Code)
}

func (gts *GinTestSuite) TestTriggerReconciliation() {
	w := gts.serve(
		http.MethodPost, "/api/reconcile/trigger", "", true,
	)
	gts.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		CorrelationID string `json:"correlationId"`
		Success       int    `json:"success"`
		Error         int    `json:"error"`
	}
	gts.decode(w, &resp)
	gts.NotEmpty(resp.CorrelationID)
	// bob is created at the broker; alice is already present.
	gts.Equal(1, resp.Success)
	gts.Zero(resp.Error)
	gts.NotNil(gts.Store.Batch(resp.CorrelationID))
}

func (gts *GinTestSuite) TestTriggerConflictsWithInProgressRun() {
	gts.Enum.started = make(chan struct{})
	gts.Enum.release = make(chan struct{})
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- gts.serve(
			http.MethodPost, "/api/reconcile/trigger", "", true,
		)
	}()
	<-gts.Enum.started

	w := gts.serve(
		http.MethodPost, "/api/reconcile/trigger", "", true,
	)
	gts.Equal(http.StatusConflict, w.Code)
	var envelope struct {
		Code string `json:"code"`
	}
	gts.decode(w, &envelope)
	gts.Equal(string(cerr.CodeAlreadyRunning), envelope.Code)

	close(gts.Enum.release)
	select {
	case first := <-done:
		gts.Equal(http.StatusAccepted, first.Code)
	case <-time.After(5 * time.Second):
		gts.FailNow("the first trigger request never finished")
	}
}

func (gts *GinTestSuite) TestListOperationsWithFilters() {
	w := gts.serve(
		http.MethodPost, "/api/reconcile/trigger", "", true,
	)
	gts.Require().Equal(http.StatusAccepted, w.Code)

	w = gts.serve(
		http.MethodGet,
		"/api/operations?result=SUCCESS&pageSize=10", "", true,
	)
	gts.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Items []struct {
			Principal string `json:"principal"`
			Result    string `json:"result"`
		} `json:"items"`
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"pageSize"`
	}
	gts.decode(w, &resp)
	gts.Equal(int64(1), resp.Total)
	gts.Require().Len(resp.Items, 1)
	gts.Equal("bob", resp.Items[0].Principal)
	gts.Equal(1, resp.Page)
	gts.Equal(10, resp.PageSize)

	w = gts.serve(
		http.MethodGet, "/api/operations?startTime=not-a-time",
		"", true,
	)
	gts.Equal(http.StatusBadRequest, w.Code)
}

func (gts *GinTestSuite) TestListBatches() {
	w := gts.serve(
		http.MethodPost, "/api/reconcile/trigger", "", true,
	)
	gts.Require().Equal(http.StatusAccepted, w.Code)

	w = gts.serve(http.MethodGet, "/api/batches", "", true)
	gts.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Items []struct {
			Source     string  `json:"source"`
			FinishedAt *string `json:"finishedAt"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	gts.decode(w, &resp)
	gts.Equal(int64(1), resp.Total)
	gts.Require().Len(resp.Items, 1)
	gts.Equal(string(model.SourceManual), resp.Items[0].Source)
	gts.NotNil(resp.Items[0].FinishedAt)
}

func (gts *GinTestSuite) TestSummary() {
	w := gts.serve(http.MethodGet, "/api/summary", "", true)
	gts.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		OpsPerHour int64   `json:"opsPerHour"`
		ErrorRate  float64 `json:"errorRate"`
	}
	gts.decode(w, &resp)
	gts.Zero(resp.OpsPerHour)
	gts.Zero(resp.ErrorRate)
}

func (gts *GinTestSuite) TestRetentionRoundTrip() {
	w := gts.serve(
		http.MethodPut, "/api/config/retention",
		`{"maxBytes": 1048576, "maxAgeDays": 30}`, true,
	)
	gts.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = gts.serve(http.MethodGet, "/api/config/retention", "", true)
	gts.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		MaxBytes   *int64 `json:"maxBytes"`
		MaxAgeDays *int   `json:"maxAgeDays"`
	}
	gts.decode(w, &resp)
	gts.Require().NotNil(resp.MaxBytes)
	gts.Equal(int64(1048576), *resp.MaxBytes)
	gts.Require().NotNil(resp.MaxAgeDays)
	gts.Equal(30, *resp.MaxAgeDays)
}

func (gts *GinTestSuite) TestRetentionRejectsOutOfRangeLimits() {
	w := gts.serve(
		http.MethodPut, "/api/config/retention",
		`{"maxAgeDays": 5000}`, true,
	)
	gts.Equal(http.StatusBadRequest, w.Code)
	var envelope struct {
		Code string `json:"code"`
	}
	gts.decode(w, &envelope)
	gts.Equal(string(cerr.CodeInvalidInput), envelope.Code)
}

func (gts *GinTestSuite) TestPostEventQueueFull() {
	body := `{
		"realm": "master", "resourceType": "USER",
		"operationType": "DELETE", "resourcePath": "users/u1",
		"username": "alice"
	}`
	// Workers are not started, so the single queue slot fills up.
	w := gts.serve(http.MethodPost, "/api/events", body, true)
	gts.Equal(http.StatusAccepted, w.Code)
	w = gts.serve(http.MethodPost, "/api/events", body, true)
	gts.Equal(http.StatusTooManyRequests, w.Code)
}

func (gts *GinTestSuite) TestPostEventValidation() {
	w := gts.serve(
		http.MethodPost, "/api/events",
		`{"resourceType": "USER"}`, true,
	)
	gts.Equal(http.StatusBadRequest, w.Code)
}
