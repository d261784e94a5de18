package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core/baas"
)

type blobRow struct {
	Bucket      string    `db:"bucket"`
	Path        string    `db:"path"`
	ContentType string    `db:"content_type"`
	Data        []byte    `db:"data"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   null.Time `db:"updated_at"`
}

func (db *DB) PutBlob(ctx context.Context, blob baas.Blob, upsert bool) error {
	q := `INSERT INTO blobs (bucket, path, content_type, data, created_at, updated_at)
		VALUES (:bucket, :path, :content_type, :data, :created_at, :updated_at)`
	if upsert {
		q += ` ON CONFLICT (bucket, path) DO UPDATE SET
			content_type = EXCLUDED.content_type, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	}
	row := blobRow{
		Bucket:      blob.Bucket,
		Path:        blob.Path,
		ContentType: blob.ContentType,
		Data:        blob.Data,
		CreatedAt:   blob.CreatedAt.UTC(),
		UpdatedAt:   null.NewTime(blob.UpdatedAt.UTC(), !blob.UpdatedAt.IsZero()),
	}
	if row.Data == nil {
		row.Data = []byte{}
	}
	if _, err := db.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return baas.ErrBlobExists
		}
		return errors.Wrap(err, "storing blob")
	}
	return nil
}

func (db *DB) GetBlob(ctx context.Context, bucket, path string) (baas.Blob, error) {
	var row blobRow
	q := `SELECT bucket, path, content_type, data, created_at, updated_at FROM blobs WHERE bucket = $1 AND path = $2`
	if err := db.db.GetContext(ctx, &row, q, bucket, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return baas.Blob{}, baas.ErrBlobNotFound
		}
		return baas.Blob{}, errors.Wrap(err, "loading blob")
	}
	return baas.Blob{
		Bucket:      row.Bucket,
		Path:        row.Path,
		ContentType: row.ContentType,
		Data:        row.Data,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   utc(row.UpdatedAt),
	}, nil
}

// DeleteBlobs returns the removed paths in the order they were given.
func (db *DB) DeleteBlobs(ctx context.Context, bucket string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var deleted []string
	q := `DELETE FROM blobs WHERE bucket = $1 AND path = ANY($2) RETURNING path`
	if err := db.db.SelectContext(ctx, &deleted, q, bucket, pq.Array(paths)); err != nil {
		return nil, errors.Wrap(err, "deleting blobs")
	}

	gone := make(map[string]bool, len(deleted))
	for _, p := range deleted {
		gone[p] = true
	}
	var removed []string
	for _, p := range paths {
		if gone[p] {
			removed = append(removed, p)
			delete(gone, p)
		}
	}
	return removed, nil
}
