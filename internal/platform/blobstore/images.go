package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// MaxImageSize is the largest photo or clinical image accepted (5 MiB).
const MaxImageSize = 5 << 20

// allowedImageTypes maps sniffed content types to the stored file extension.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Images stores uploaded images under tenant-scoped keys and hands back the
// public URL they are served from.
type Images struct {
	store     BlobStore
	urlPrefix string
}

// NewImages serves stored images below urlPrefix, e.g. "/public/files".
func NewImages(store BlobStore, urlPrefix string) *Images {
	return &Images{store: store, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// DetectImageType sniffs the first bytes of data and returns the content type
// when it is an accepted image format.
func DetectImageType(data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if _, ok := allowedImageTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}
	return ct, nil
}

// SaveUpload validates and stores a multipart image upload.
func (im *Images) SaveUpload(ctx context.Context, tenantID, kind string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxImageSize {
		return "", ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return im.Save(ctx, tenantID, kind, f)
}

// Save reads at most MaxImageSize bytes from r, checks the format, and stores
// the image under "<tenant>/<kind>/<uuid><ext>".
func (im *Images) Save(ctx context.Context, tenantID, kind string, r io.Reader) (string, error) {
	if tenantID == "" || kind == "" {
		return "", fmt.Errorf("%w: tenant and kind are required", ErrInvalidKey)
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrFileTooLarge
	}
	ct, err := DetectImageType(data)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s/%s%s", tenantID, kind, uuid.NewString(), allowedImageTypes[ct])
	if _, err := im.store.Put(ctx, key, ct, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return im.URL(key), nil
}

// URL returns the public path an object key is served from.
func (im *Images) URL(key string) string {
	return im.urlPrefix + "/" + key
}

// KeyFromURL reverses URL. It reports false for URLs this store did not issue.
func (im *Images) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, im.urlPrefix+"/")
	if !ok || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// Remove deletes the image behind url. Unknown URLs and missing objects are
// not an error.
func (im *Images) Remove(ctx context.Context, url string) error {
	key, ok := im.KeyFromURL(url)
	if !ok {
		return nil
	}
	if err := im.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Handler streams stored images. Keys carry a random UUID, so the route is
// mounted without authentication for the public consultation page.
func (im *Images) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("*")
		if !ValidKey(key) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		rc, meta, err := im.store.Get(c.Request().Context(), key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "file not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to read file")
		}
		defer rc.Close()

		c.Response().Header().Set("Cache-Control", "private, max-age=86400")
		return c.Stream(http.StatusOK, meta.ContentType, rc)
	}
}
