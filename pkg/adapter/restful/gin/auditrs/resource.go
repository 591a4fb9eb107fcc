// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package auditrs realizes the audit resource, exposing the recorded
// synchronization operations, their batches, and the trailing-hour
// summary through the Control API.
package auditrs

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/repo"
)

type resource struct {
	pool    repo.Pool
	auditrp repo.Audit
}

// Register instantiates a resource adapting the audit store with the
// relevant REST APIs including:
//  1. GET request to /api/operations
//     in order to list operation rows with filters and pagination.
//  2. GET request to /api/batches
//     in order to list reconciliation batches with pagination.
//  3. GET request to /api/summary
//     in order to aggregate the operations of the trailing hour.
func Register(r *gin.RouterGroup, p repo.Pool, a repo.Audit) {
	rs := &resource{pool: p, auditrp: a}
	r.GET("operations", rs.ListOperations)
	r.GET("batches", rs.ListBatches)
	r.GET("summary", rs.Summary)
}

func (rs *resource) ListOperations(c *gin.Context) {
	req := rs.DserOperationsReq(c)
	if req == nil {
		return
	}
	var ops []model.Operation
	var total int64
	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		var err error
		ops, total, err = rs.auditrp.Conn(conn).ListOperations(
			ctx, req.Filter, req.Page, req.PageSize,
		)
		return err
	})
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.SerOperations(ops, total, req))
}

func (rs *resource) ListBatches(c *gin.Context) {
	req := rs.DserPageReq(c)
	if req == nil {
		return
	}
	var batches []model.Batch
	var total int64
	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		var err error
		batches, total, err = rs.auditrp.Conn(conn).ListBatches(
			ctx, req.Page, req.PageSize,
		)
		return err
	})
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.SerBatches(batches, total, req))
}

func (rs *resource) Summary(c *gin.Context) {
	var summary *model.Summary
	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		var err error
		summary, err = rs.auditrp.Conn(conn).Summary(ctx)
		return err
	})
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.SerSummary(summary))
}
