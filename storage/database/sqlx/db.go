// Package sqlxdb stores the backend emulator data in PostgreSQL.
package sqlxdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/storage/database"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeInvalidTextEncoding = "22P02"
)

type DB struct {
	db *sqlx.DB
}

var _ baas.Database = (*DB)(nil) // interface compliance check

// Open connects to the database at dsn and migrates it.
func Open(ctx context.Context, dsn string, logger core.Logger) (*DB, error) {
	db, err := database.Connect(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sqlx.DB) *DB {
	return &DB{db: db}
}

func (db *DB) Close() error { return db.db.Close() }

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqCode(err) == codeUniqueViolation }

// isInvalidInput is raised for malformed uuids.
func isInvalidInput(err error) bool { return pqCode(err) == codeInvalidTextEncoding }
