// Package baas implements a local backend-as-a-service compatible with the hosted one the
// dashboard talks to: password auth with JWT sessions, owner-scoped tables and file storage.
package baas

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/user"
)

var (
	ErrBlobNotFound = errors.New("object not found")
	ErrBlobExists   = errors.New("object already exists")
	ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")
)

type (
	// Account is a user with its credentials.
	Account struct {
		User         user.User
		PasswordHash []byte
	}

	// Blob is a stored object.
	Blob struct {
		Bucket      string
		Path        string
		ContentType string
		Data        []byte
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// UserRepository fails with user.ErrNotFound and user.ErrEmailExists.
	UserRepository interface {
		CreateUser(ctx context.Context, acc Account) error
		GetUserByID(ctx context.Context, id string) (Account, error)
		GetUserByEmail(ctx context.Context, email string) (Account, error)
		UpdateUser(ctx context.Context, acc Account) error
	}

	// TokenRepository keeps the ids of revoked access tokens until they expire.
	TokenRepository interface {
		RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
		IsTokenRevoked(ctx context.Context, jti string) (bool, error)
		PurgeRevokedTokens(ctx context.Context, now time.Time) (int, error)
	}

	// RecordRepository stores the rows of the tables in Tables.
	// Records and filters it receives are already normalized by the RecordService.
	RecordRepository interface {
		SelectRecords(ctx context.Context, table string, q core.Query) ([]core.Record, int, error)
		InsertRecord(ctx context.Context, table string, rec core.Record) (core.Record, error)
		UpdateRecords(ctx context.Context, table string, filters []core.Filter, rec core.Record) ([]core.Record, error)
		DeleteRecords(ctx context.Context, table string, filters []core.Filter) ([]core.Record, error)
	}

	// BlobRepository fails with ErrBlobNotFound and ErrBlobExists.
	BlobRepository interface {
		PutBlob(ctx context.Context, blob Blob, upsert bool) error
		GetBlob(ctx context.Context, bucket, path string) (Blob, error)
		DeleteBlobs(ctx context.Context, bucket string, paths []string) ([]string, error)
	}

	// Database is everything the services persist.
	Database interface {
		UserRepository
		TokenRepository
		RecordRepository
		BlobRepository
		Close() error
	}
)
