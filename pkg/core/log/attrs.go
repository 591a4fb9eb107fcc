// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package log

import (
	"log/slog"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// Valuer returns an Attr for the given slog.LogValuer value.
func Valuer(key string, value slog.LogValuer) slog.Attr {
	return slog.Any(key, value)
}

// Err returns an Attr for the given error value.
// The error value is resolved as a string by its Error() method.
// If error value is nil, the constant "no-error" value will be used.
func Err(key string, value error) slog.Attr {
	if value == nil {
		return slog.String(key, "no-error")
	}
	return slog.String(key, value.Error())
}

// CorrelationID returns an Attr with the fixed "correlation_id" key,
// so every record of one reconciliation run can be grepped together.
func CorrelationID(value string) slog.Attr {
	return slog.String("correlation_id", value)
}

// Principal returns an Attr with the realm-qualified principal name.
func Principal(value model.Principal) slog.Attr {
	return slog.String("principal", value.String())
}

// Mechanism returns an Attr for a SCRAM mechanism name.
func Mechanism(value model.Mechanism) slog.Attr {
	return slog.String("mechanism", string(value))
}
