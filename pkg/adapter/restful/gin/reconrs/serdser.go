// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package reconrs

import "github.com/scramsync/scramsync/pkg/core/model"

type resultResp struct {
	CorrelationID string `json:"correlationId"`
	Success       int    `json:"success"`
	Error         int    `json:"error"`
	Skipped       int    `json:"skipped"`
	DurationMs    int64  `json:"durationMs"`
}

func (rs *resource) SerResult(
	res *model.ReconciliationResult,
) resultResp {
	return resultResp{
		CorrelationID: res.CorrelationID,
		Success:       res.Success,
		Error:         res.Error,
		Skipped:       res.Skipped,
		DurationMs:    res.DurationMs,
	}
}
