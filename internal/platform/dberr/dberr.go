// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tessera-app/tessera/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It classifies the error so job handlers can decide retry behavior.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Constraint violations are permanent: replaying the same write will
	// fail the same way, so surface them as fatal conflicts.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Conflict("duplicate row for " + action)
		case pgerrcode.ForeignKeyViolation:
			return apperr.Conflict("missing referenced row for " + action)
		}
	}

	// 3. Everything else (connection loss, timeouts) is transient; the
	// ingestion transactions are safe to replay.
	return apperr.Internal(err)
}
