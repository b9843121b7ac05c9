package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"chatify/internal/models"

	"github.com/h2non/filetype"
)

const MaxUploadSize = 5 << 20

var ErrUpload = fmt.Errorf("%w: invalid image", models.ErrValidation)

// MediaIndex keeps metadata of uploaded objects.
type MediaIndex interface {
	SaveMediaObject(ctx context.Context, obj models.MediaObject) error
	FindMediaObject(ctx context.Context, id string) (models.MediaObject, error)
}

// Uploader turns inline image blobs into public media URLs.
type Uploader struct {
	store   FileStore
	index   MediaIndex
	baseURL string
	now     func() time.Time
}

func NewUploader(store FileStore, index MediaIndex, baseURL string) *Uploader {
	return &Uploader{
		store:   store,
		index:   index,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Upload decodes blob (a data URL or raw base64), checks that it is an image
// and stores it under its content hash. It returns the public URL.
func (u *Uploader) Upload(ctx context.Context, userID, blob string) (string, error) {
	data, err := decodeBlob(blob)
	if err != nil {
		return "", err
	}
	return u.Store(ctx, userID, data)
}

// Store saves raw image bytes and returns the public URL.
func (u *Uploader) Store(ctx context.Context, userID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUpload)
	}
	if len(data) > MaxUploadSize {
		return "", fmt.Errorf("%w: image is larger than %d bytes", ErrUpload, MaxUploadSize)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", fmt.Errorf("%w: unsupported file type", ErrUpload)
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + "." + kind.Extension

	if err := u.store.Save(ctx, name, bytes.NewReader(data), int64(len(data)), kind.MIME.Value); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	err = u.index.SaveMediaObject(ctx, models.MediaObject{
		ID:        name,
		MimeType:  kind.MIME.Value,
		Size:      int64(len(data)),
		UserID:    userID,
		CreatedAt: u.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to index image: %w", err)
	}
	return u.baseURL + "/media/" + name, nil
}

// Open returns the stored object and its metadata.
func (u *Uploader) Open(ctx context.Context, name string) (io.ReadCloser, models.MediaObject, error) {
	obj, err := u.index.FindMediaObject(ctx, name)
	if err != nil {
		return nil, models.MediaObject{}, err
	}
	rc, err := u.store.Get(ctx, name)
	if errors.Is(err, ErrNotExist) {
		return nil, models.MediaObject{}, fmt.Errorf("media %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.MediaObject{}, err
	}
	return rc, obj, nil
}

func decodeBlob(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if strings.HasPrefix(blob, "data:") {
		comma := strings.IndexByte(blob, ',')
		if comma < 0 || !strings.HasSuffix(blob[:comma], ";base64") {
			return nil, fmt.Errorf("%w: malformed data url", ErrUpload)
		}
		blob = blob[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(blob)) > MaxUploadSize+3 {
		return nil, fmt.Errorf("%w: image is larger than %d bytes", ErrUpload, MaxUploadSize)
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(blob)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrUpload)
	}
	return data, nil
}
