package baas

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
)

var (
	// Buckets served by the StorageService; objects of public buckets can be downloaded without a session.
	Buckets = map[string]bool{
		backend.AvatarsBucket: true,
	}

	errBucketNotFound  = backend.NewError(http.StatusNotFound, backend.CodeObjectNotFound, "Bucket not found")
	errObjectNotFound  = backend.NewError(http.StatusNotFound, backend.CodeObjectNotFound, "Object not found")
	errObjectExists    = backend.NewError(http.StatusConflict, backend.CodeDuplicate, "The resource already exists")
	errObjectTooLarge  = backend.NewError(http.StatusRequestEntityTooLarge, backend.CodePayloadTooLarge, "The object exceeded the maximum allowed size")
	errInvalidKey      = backend.NewError(http.StatusBadRequest, "InvalidKey", "Invalid key")
	errObjectForbidden = backend.NewError(http.StatusForbidden, "42501", "new row violates row-level security policy")
)

// StorageService stores objects in buckets. Users may only write under the folder named after their id.
type StorageService struct {
	repo      BlobRepository
	publicURL string
	maxSize   int64
}

func NewStorageService(conf *core.Config, repo BlobRepository) *StorageService {
	return &StorageService{
		repo:      repo,
		publicURL: strings.TrimRight(conf.Emulator.PublicURL, "/"),
		maxSize:   conf.Emulator.MaxUploadSize,
	}
}

func (svc *StorageService) checkKey(bucket, key string) (string, error) {
	if _, ok := Buckets[bucket]; !ok {
		return "", errBucketNotFound
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", errInvalidKey
	}
	return clean, nil
}

func (svc *StorageService) checkOwner(owner, key string) error {
	if !strings.HasPrefix(key, owner+"/") {
		return errObjectForbidden
	}
	return nil
}

// Upload stores the object and returns its key.
func (svc *StorageService) Upload(ctx context.Context, owner, bucket, key, contentType string, body io.Reader, upsert bool) (string, error) {
	key, err := svc.checkKey(bucket, key)
	if err != nil {
		return "", err
	}
	if err = svc.checkOwner(owner, key); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, svc.maxSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading object")
	}
	if n > svc.maxSize {
		return "", errObjectTooLarge
	}
	if contentType == "" {
		contentType = http.DetectContentType(buf.Bytes())
	}

	now := NowFunc().UTC()
	blob := Blob{Bucket: bucket, Path: key, ContentType: contentType, Data: buf.Bytes(), CreatedAt: now, UpdatedAt: now}
	if err = svc.repo.PutBlob(ctx, blob, upsert); err != nil {
		if errors.Is(err, ErrBlobExists) {
			return "", errObjectExists
		}
		return "", errors.Wrap(err, "storing object")
	}
	return bucket + "/" + key, nil
}

func (svc *StorageService) Download(ctx context.Context, bucket, key string) (Blob, error) {
	key, err := svc.checkKey(bucket, key)
	if err != nil {
		return Blob{}, err
	}
	blob, err := svc.repo.GetBlob(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return Blob{}, errObjectNotFound
		}
		return Blob{}, errors.Wrap(err, "loading object")
	}
	return blob, nil
}

// IsPublic reports whether objects of bucket are served without a session.
func (svc *StorageService) IsPublic(bucket string) bool {
	return Buckets[bucket]
}

// Remove deletes the owned objects and returns the keys that existed.
func (svc *StorageService) Remove(ctx context.Context, owner, bucket string, keys []string) ([]string, error) {
	if _, ok := Buckets[bucket]; !ok {
		return nil, errBucketNotFound
	}
	for _, key := range keys {
		if err := svc.checkOwner(owner, key); err != nil {
			return nil, err
		}
	}
	removed, err := svc.repo.DeleteBlobs(ctx, bucket, keys)
	if err != nil {
		return nil, errors.Wrap(err, "deleting objects")
	}
	return removed, nil
}

func (svc *StorageService) PublicURL(bucket, key string) string {
	return backend.PublicURL(svc.publicURL, bucket, key)
}
