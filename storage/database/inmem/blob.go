package inmemdb

import (
	"context"

	"github.com/trezcool/smis/core/baas"
)

func blobKey(bucket, path string) string { return bucket + "/" + path }

func (db *DB) PutBlob(_ context.Context, blob baas.Blob, upsert bool) error {
	db.blob.mutex.Lock()
	defer db.blob.mutex.Unlock()

	key := blobKey(blob.Bucket, blob.Path)
	if existing, ok := db.blob.table[key]; ok {
		if !upsert {
			return baas.ErrBlobExists
		}
		blob.CreatedAt = existing.CreatedAt
	}
	blob.Data = append([]byte(nil), blob.Data...)
	db.blob.table[key] = &blob
	return nil
}

func (db *DB) GetBlob(_ context.Context, bucket, path string) (baas.Blob, error) {
	db.blob.mutex.RLock()
	defer db.blob.mutex.RUnlock()

	if blob, ok := db.blob.table[blobKey(bucket, path)]; ok {
		return *blob, nil
	}
	return baas.Blob{}, baas.ErrBlobNotFound
}

func (db *DB) DeleteBlobs(_ context.Context, bucket string, paths []string) ([]string, error) {
	db.blob.mutex.Lock()
	defer db.blob.mutex.Unlock()

	var removed []string
	for _, p := range paths {
		key := blobKey(bucket, p)
		if _, ok := db.blob.table[key]; ok {
			delete(db.blob.table, key)
			removed = append(removed, p)
		}
	}
	return removed, nil
}
