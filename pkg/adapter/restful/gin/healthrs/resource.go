// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package healthrs realizes the liveness, readiness, and metrics
// endpoints. These endpoints are registered outside the authenticated
// API group, so probes and scrapers do not need credentials.
package healthrs

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/core/breaker"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

type resource struct {
	pool     repo.Pool
	auditrp  repo.Audit
	breakers *breaker.Set
}

// Register instantiates a resource serving:
//  1. GET request to /healthz
//     in order to report process liveness.
//  2. GET request to /readyz
//     in order to report readiness, requiring every dependency breaker
//     to be CLOSED and the audit storage to accept writes.
//  3. GET request to /metrics
//     in order to expose the Prometheus registry via the m handler.
func Register(
	e *gin.Engine, p repo.Pool, a repo.Audit,
	b *breaker.Set, m http.Handler,
) {
	rs := &resource{pool: p, auditrp: a, breakers: b}
	e.GET("/healthz", rs.Healthz)
	e.GET("/readyz", rs.Readyz)
	e.GET("/metrics", gin.WrapH(m))
}

func (rs *resource) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers 200 iff all breakers are CLOSED and the audit store
// accepts a write, and 503 with the failing checks otherwise. The
// storage probe refreshes the cached database size, which is a real
// write against the retention row.
func (rs *resource) Readyz(c *gin.Context) {
	checks := gin.H{
		"idpBreaker":    rs.breakers.IdP.State(),
		"brokerBreaker": rs.breakers.Broker.State(),
	}
	ready := rs.breakers.AllClosed()

	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		_, err := rs.auditrp.Conn(conn).DBSize(ctx)
		return err
	})
	if err != nil {
		checks["storage"] = err.Error()
		ready = false
	} else {
		checks["storage"] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}
