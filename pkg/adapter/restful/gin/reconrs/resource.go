// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package reconrs realizes the reconciliation resource, allowing runs
// to be triggered manually and their in-progress state to be observed.
package reconrs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/model"
	"github.com/scramsync/scramsync/pkg/core/usecase/reconuc"
)

type resource struct {
	recon *reconuc.UseCase
}

// Register instantiates a resource adapting the reconciliation use case
// with the relevant REST APIs including:
//  1. POST request to /api/reconcile/trigger
//     in order to run one manual reconciliation.
//  2. GET request to /api/reconcile/status
//     in order to check whether a run is in progress.
func Register(r *gin.RouterGroup, recon *reconuc.UseCase) {
	rs := &resource{recon: recon}
	r.POST("reconcile/trigger", rs.Trigger)
	r.GET("reconcile/status", rs.Status)
}

func (rs *resource) Trigger(c *gin.Context) {
	res, err := rs.recon.Run(c, model.SourceManual)
	if err != nil {
		serdser.SerErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rs.SerResult(res))
}

func (rs *resource) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": rs.recon.Running()})
}
