package baas_test

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
)

func TestStorageService(t *testing.T) {
	env := newTestEnv(t)
	env.conf.Emulator.MaxUploadSize = 16
	ctx := context.Background()
	ada := env.signUp(t, "ada@school.test").ID
	svc := baas.NewStorageService(env.conf, env.db)

	key, err := svc.Upload(ctx, ada, backend.AvatarsBucket, ada+"/avatar.png", "", bytes.NewReader([]byte("\x89PNG\r\n\x1a\n")), false)
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+ada+"/avatar.png", key)

	blob, err := svc.Download(ctx, backend.AvatarsBucket, ada+"/avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.ContentType)

	_, err = svc.Upload(ctx, ada, backend.AvatarsBucket, ada+"/avatar.png", "image/png", strings.NewReader("x"), false)
	requireBackendError(t, err, http.StatusConflict, backend.CodeDuplicate)
	_, err = svc.Upload(ctx, ada, backend.AvatarsBucket, ada+"/avatar.png", "image/png", strings.NewReader("x"), true)
	require.NoError(t, err)

	tests := []struct {
		name       string
		bucket     string
		key        string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown bucket", bucket: "secrets", key: ada + "/a.png", body: "x", wantStatus: http.StatusNotFound, wantCode: backend.CodeObjectNotFound},
		{name: "other folder", bucket: backend.AvatarsBucket, key: "someone-else/a.png", body: "x", wantStatus: http.StatusForbidden, wantCode: "42501"},
		{name: "path traversal", bucket: backend.AvatarsBucket, key: ada + "/../x.png", body: "x", wantStatus: http.StatusBadRequest, wantCode: "InvalidKey"},
		{name: "too large", bucket: backend.AvatarsBucket, key: ada + "/big.png", body: strings.Repeat("x", 17), wantStatus: http.StatusRequestEntityTooLarge, wantCode: backend.CodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, ada, tt.bucket, tt.key, "", strings.NewReader(tt.body), false)
			requireBackendError(t, err, tt.wantStatus, tt.wantCode)
		})
	}

	_, err = svc.Remove(ctx, ada, backend.AvatarsBucket, []string{"someone-else/a.png"})
	requireBackendError(t, err, http.StatusForbidden, "42501")

	removed, err := svc.Remove(ctx, ada, backend.AvatarsBucket, []string{ada + "/avatar.png", ada + "/missing.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{ada + "/avatar.png"}, removed)

	_, err = svc.Download(ctx, backend.AvatarsBucket, ada+"/avatar.png")
	requireBackendError(t, err, http.StatusNotFound, backend.CodeObjectNotFound)

	assert.Equal(t, "http://localhost:54321/storage/v1/object/public/avatars/"+ada+"/avatar%201.png",
		svc.PublicURL(backend.AvatarsBucket, ada+"/avatar 1.png"))
	assert.True(t, svc.IsPublic(backend.AvatarsBucket))
}
