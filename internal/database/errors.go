// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"errors"
	"strings"
)

// Sentinel errors for repository operations.
var (
	// ErrNotFound indicates the requested entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness invariant would be violated.
	ErrConflict = errors.New("conflict")
)

// isUniqueViolation reports whether a driver error is a unique/primary
// key constraint violation. DuckDB surfaces these as constraint errors
// without a typed sentinel, so the message is inspected.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Constraint Error") ||
		strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "Duplicate key")
}
