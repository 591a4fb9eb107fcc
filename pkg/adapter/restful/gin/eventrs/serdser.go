// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package eventrs

import (
	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/model"
)

type rawEventReq struct {
	Realm         string `json:"realm" binding:"required"`
	ResourceType  string `json:"resourceType" binding:"required,oneof=USER CLIENT"`
	OperationType string `json:"operationType" binding:"required,oneof=CREATE UPDATE DELETE"`
	ResourcePath  string `json:"resourcePath" binding:"required"`
	Username      string `json:"username" binding:"omitempty"`
}

func (rs *resource) DserEvent(c *gin.Context) *model.AdminEvent {
	raw := &rawEventReq{}
	if ok := serdser.BindJSON(c, raw); !ok {
		return nil
	}
	return &model.AdminEvent{
		Realm:         raw.Realm,
		ResourceType:  model.ResourceType(raw.ResourceType),
		OperationType: model.OperationType(raw.OperationType),
		ResourcePath:  raw.ResourcePath,
		Username:      raw.Username,
	}
}
