// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package postgres

import (
	"context"

	"github.com/scramsync/scramsync/pkg/core/repo"
	"gorm.io/gorm"
)

// Queryer constrains the generic repository query functions to the
// *Conn and *Tx scopes, both of which can run SQL statements and
// expose their *gorm.DB session through the GORM method.
type Queryer interface {
	*Conn | *Tx
	repo.Queryer
	GORM(ctx context.Context) *gorm.DB
}
