// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package routes contains all resource packages and facilitates their
// registration over the use case and repository instances which the
// composition root has wired up.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/auditrs"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/eventrs"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/healthrs"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/reconrs"
	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/retentionrs"
	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/repo"
	"github.com/scramsync/scramsync/pkg/core/usecase/eventuc"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

// Deps carries the already wired collaborators of the Control API.
// Use case instantiation happens in the composition root because the
// use cases also serve the schedulers, not only the REST surface.
type Deps struct {
	Pool     repo.Pool
	Audit    repo.Audit
	Recon    *reconuc.UseCase
	Events   *eventuc.UseCase
	Breakers *breaker.Set
	Metrics  http.Handler

	// Accounts enables HTTP basic authentication on the /api group
	// when non-empty. The health and metrics endpoints always stay
	// unauthenticated so probes and scrapers work without credentials.
	Accounts gin.Accounts
}

// Register registers all resource packages, which are named like
// reconrs and auditrs, as request handlers using the e gin-gonic
// engine instance. The authenticated resources live under the
// /api group; an unauthenticated request to that group is rejected
// with a 401 status and a WWW-Authenticate challenge.
func Register(e *gin.Engine, d Deps) {
	healthrs.Register(e, d.Pool, d.Audit, d.Breakers, d.Metrics)

	r := e.Group("/api")
	if len(d.Accounts) > 0 {
		r.Use(gin.BasicAuth(d.Accounts))
	}
	reconrs.Register(r, d.Recon)
	auditrs.Register(r, d.Pool, d.Audit)
	retentionrs.Register(r, d.Pool, d.Audit)
	eventrs.Register(r, d.Events)
}
