package echoapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
)

var errBucketNotPublic = backend.NewError(http.StatusNotFound, backend.CodeObjectNotFound, "Bucket not found")

type (
	storageApi struct {
		svc *baas.StorageService
	}

	removeRequest struct {
		Prefixes []string `json:"prefixes"`
	}

	objectJSON struct {
		Name     string `json:"name"`
		BucketID string `json:"bucket_id"`
	}
)

func registerStorageAPI(g *echo.Group, apikey, bearer echo.MiddlewareFunc, svc *baas.StorageService) {
	api := storageApi{svc: svc}

	g.GET("/object/public/:bucket/*", api.downloadPublic)

	objects := g.Group("/object", apikey, bearer)
	objects.GET("/authenticated/:bucket/*", api.download)
	objects.POST("/:bucket/*", api.upload)
	objects.PUT("/:bucket/*", api.upload)
	objects.DELETE("/:bucket", api.remove)
}

func objectKey(ctx echo.Context) string {
	key := ctx.Param("*")
	if k, err := url.PathUnescape(key); err == nil {
		return k
	}
	return key
}

// upload stores the request body. PUT and the x-upsert header overwrite an existing object.
func (api storageApi) upload(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	req := ctx.Request()
	upsert := req.Method == http.MethodPut || req.Header.Get(headerUpsert) == "true"
	key, err := api.svc.Upload(req.Context(), usr.ID, ctx.Param("bucket"), objectKey(ctx),
		req.Header.Get(echo.HeaderContentType), req.Body, upsert)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"Key": key})
}

func (api storageApi) remove(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data removeRequest
	if err = bind(ctx, &data); err != nil {
		return err
	}
	bucket := ctx.Param("bucket")
	removed, err := api.svc.Remove(ctx.Request().Context(), usr.ID, bucket, data.Prefixes)
	if err != nil {
		return err
	}
	objs := make([]objectJSON, 0, len(removed))
	for _, key := range removed {
		objs = append(objs, objectJSON{Name: key, BucketID: bucket})
	}
	return ctx.JSON(http.StatusOK, objs)
}

func (api storageApi) download(ctx echo.Context) error {
	blob, err := api.svc.Download(ctx.Request().Context(), ctx.Param("bucket"), objectKey(ctx))
	if err != nil {
		return err
	}
	return ctx.Blob(http.StatusOK, blob.ContentType, blob.Data)
}

func (api storageApi) downloadPublic(ctx echo.Context) error {
	if !api.svc.IsPublic(ctx.Param("bucket")) {
		return errBucketNotPublic
	}
	return api.download(ctx)
}
