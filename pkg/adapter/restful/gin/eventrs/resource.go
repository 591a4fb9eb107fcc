// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package eventrs realizes the admin event webhook resource, feeding
// IdP admin events into the in-process event queue.
package eventrs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/cerr"
	"github.com/scramsync/scramsync/pkg/core/usecase/eventuc"
)

type resource struct {
	events *eventuc.UseCase
}

// Register instantiates a resource adapting the event queue use case
// with the relevant REST APIs including:
//  1. POST request to /api/events
//     in order to enqueue one admin event. Acceptance means queued,
//     not applied; a full queue under the REJECT policy answers 429.
func Register(r *gin.RouterGroup, events *eventuc.UseCase) {
	rs := &resource{events: events}
	r.POST("events", rs.PostEvent)
}

func (rs *resource) PostEvent(c *gin.Context) {
	e := rs.DserEvent(c)
	if e == nil {
		return
	}
	if !rs.events.Enqueue(*e) {
		c.JSON(http.StatusTooManyRequests, serdser.ErrorResponse{
			Code:    string(cerr.CodeTransient),
			Message: "event queue is full",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"depth": rs.events.Depth()})
}
