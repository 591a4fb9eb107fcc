// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package auditrs

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scramsync/scramsync/pkg/adapter/restful/gin/serdser"
	"github.com/scramsync/scramsync/pkg/core/model"
)

// Pagination defaults and bounds of the listing endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type rawPageReq struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=500"`
}

type pageReq struct {
	Page     int
	PageSize int
}

type rawOperationsReq struct {
	rawPageReq
	StartTime string `form:"startTime" binding:"omitempty"`
	EndTime   string `form:"endTime" binding:"omitempty"`
	Principal string `form:"principal" binding:"omitempty"`
	OpType    string `form:"opType" binding:"omitempty,oneof=SCRAM_UPSERT SCRAM_DELETE"`
	Result    string `form:"result" binding:"omitempty,oneof=SUCCESS ERROR SKIPPED"`
}

type operationsReq struct {
	pageReq
	Filter model.OperationFilter
}

func (raw rawPageReq) toModel() pageReq {
	req := pageReq{Page: raw.Page, PageSize: raw.PageSize}
	// now, deal with defaults
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	return req
}

func (rs *resource) DserPageReq(c *gin.Context) *pageReq {
	raw := &rawPageReq{}
	if ok := serdser.BindQuery(c, raw); !ok {
		return nil
	}
	req := raw.toModel()
	return &req
}

func (rs *resource) DserOperationsReq(c *gin.Context) *operationsReq {
	raw := &rawOperationsReq{}
	if ok := serdser.BindQuery(c, raw); !ok {
		return nil
	}
	req := &operationsReq{
		pageReq: raw.rawPageReq.toModel(),
		Filter: model.OperationFilter{
			Principal: raw.Principal,
			OpType:    model.OpType(raw.OpType),
			Result:    model.OpResult(raw.Result),
		},
	}
	if raw.StartTime != "" {
		t, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil {
			serdser.SerBadRequest(c, "startTime is not RFC 3339")
			return nil
		}
		req.Filter.StartTime = &t
	}
	if raw.EndTime != "" {
		t, err := time.Parse(time.RFC3339, raw.EndTime)
		if err != nil {
			serdser.SerBadRequest(c, "endTime is not RFC 3339")
			return nil
		}
		req.Filter.EndTime = &t
	}
	return req
}

type operationResp struct {
	ID            int64  `json:"id"`
	CorrelationID string `json:"correlationId"`
	OccurredAt    string `json:"occurredAt"`
	Realm         string `json:"realm"`
	ClusterID     string `json:"clusterId"`
	Principal     string `json:"principal"`
	OpType        string `json:"opType"`
	Mechanism     string `json:"mechanism,omitempty"`
	Result        string `json:"result"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	DurationMs    int64  `json:"durationMs"`
}

type batchResp struct {
	ID            int64   `json:"id"`
	CorrelationID string  `json:"correlationId"`
	StartedAt     string  `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	Source        string  `json:"source"`
	ItemsTotal    int     `json:"itemsTotal"`
	ItemsSuccess  int     `json:"itemsSuccess"`
	ItemsError    int     `json:"itemsError"`
}

type listResp[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

type summaryResp struct {
	WindowStart  string  `json:"windowStart"`
	OpsPerHour   int64   `json:"opsPerHour"`
	ErrorRate    float64 `json:"errorRate"`
	LatencyP95Ms float64 `json:"latencyP95Ms"`
	LatencyP99Ms float64 `json:"latencyP99Ms"`
}

func (rs *resource) SerOperations(
	ops []model.Operation, total int64, req *operationsReq,
) listResp[operationResp] {
	items := make([]operationResp, 0, len(ops))
	for _, op := range ops {
		items = append(items, operationResp{
			ID:            op.ID,
			CorrelationID: op.CorrelationID,
			OccurredAt:    op.OccurredAt.UTC().Format(time.RFC3339Nano),
			Realm:         op.Realm,
			ClusterID:     op.ClusterID,
			Principal:     op.Principal,
			OpType:        string(op.OpType),
			Mechanism:     string(op.Mechanism),
			Result:        string(op.Result),
			ErrorCode:     op.ErrorCode,
			ErrorMessage:  op.ErrorMessage,
			DurationMs:    op.DurationMs,
		})
	}
	return listResp[operationResp]{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
}

func (rs *resource) SerBatches(
	batches []model.Batch, total int64, req *pageReq,
) listResp[batchResp] {
	items := make([]batchResp, 0, len(batches))
	for _, b := range batches {
		resp := batchResp{
			ID:            b.ID,
			CorrelationID: b.CorrelationID,
			StartedAt:     b.StartedAt.UTC().Format(time.RFC3339Nano),
			Source:        string(b.Source),
			ItemsTotal:    b.ItemsTotal,
			ItemsSuccess:  b.ItemsSuccess,
			ItemsError:    b.ItemsError,
		}
		if b.FinishedAt != nil {
			finished := b.FinishedAt.UTC().Format(time.RFC3339Nano)
			resp.FinishedAt = &finished
		}
		items = append(items, resp)
	}
	return listResp[batchResp]{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
}

func (rs *resource) SerSummary(s *model.Summary) summaryResp {
	return summaryResp{
		WindowStart:  s.WindowStart.UTC().Format(time.RFC3339Nano),
		OpsPerHour:   s.OpsPerHour,
		ErrorRate:    s.ErrorRate,
		LatencyP95Ms: s.LatencyP95Ms,
		LatencyP99Ms: s.LatencyP99Ms,
	}
}
