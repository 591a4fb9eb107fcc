// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package retentionrs

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/model"
)

type rawRetentionReq struct {
	MaxBytes   *int64 `json:"maxBytes" binding:"omitempty"`
	MaxAgeDays *int   `json:"maxAgeDays" binding:"omitempty"`
}

type retentionReq struct {
	MaxBytes   *int64
	MaxAgeDays *int
}

func (rs *resource) DserRetentionReq(c *gin.Context) *retentionReq {
	raw := &rawRetentionReq{}
	if ok := serdser.BindJSON(c, raw); !ok {
		return nil
	}
	policy := model.RetentionPolicy{
		MaxBytes:   raw.MaxBytes,
		MaxAgeDays: raw.MaxAgeDays,
	}
	if err := policy.Validate(); err != nil {
		serdser.SerBadRequest(c, err.Error())
		return nil
	}
	return &retentionReq{
		MaxBytes:   raw.MaxBytes,
		MaxAgeDays: raw.MaxAgeDays,
	}
}

type retentionResp struct {
	MaxBytes      *int64 `json:"maxBytes"`
	MaxAgeDays    *int   `json:"maxAgeDays"`
	ApproxDBBytes int64  `json:"approxDbBytes"`
	UpdatedAt     string `json:"updatedAt"`
}

func (rs *resource) SerRetention(
	p *model.RetentionPolicy,
) retentionResp {
	return retentionResp{
		MaxBytes:      p.MaxBytes,
		MaxAgeDays:    p.MaxAgeDays,
		ApproxDBBytes: p.ApproxDBBytes,
		UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
