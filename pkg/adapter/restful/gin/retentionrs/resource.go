// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package retentionrs realizes the retention configuration resource,
// reading and replacing the singleton retention policy row.
package retentionrs

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

// Register instantiates a resource adapting the retention policy with
// the relevant REST APIs including:
//  1. GET request to /api/config/retention
//     in order to read the effective policy and the cached DB size.
//  2. PUT request to /api/config/retention
//     in order to replace the retention limits. The new limits apply
//     from the next purge cycle; no immediate purge is triggered.
func Register(r *gin.RouterGroup, p repo.Pool, a repo.Audit) {
	rs := &resource{pool: p, auditrp: a}
	r.GET("config/retention", rs.GetRetention)
	r.PUT("config/retention", rs.PutRetention)
}

func (rs *resource) GetRetention(c *gin.Context) {
	var policy *model.RetentionPolicy
	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		var err error
		policy, err = rs.auditrp.Conn(conn).Retention(ctx)
		return err
	})
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.SerRetention(policy))
}

func (rs *resource) PutRetention(c *gin.Context) {
	req := rs.DserRetentionReq(c)
	if req == nil {
		return
	}
	var policy *model.RetentionPolicy
	err := rs.pool.Conn(c, func(ctx context.Context, conn repo.Conn) error {
		var err error
		policy, err = rs.auditrp.Conn(conn).UpdateRetention(
			ctx, req.MaxBytes, req.MaxAgeDays,
		)
		return err
	})
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rs.SerRetention(policy))
}
