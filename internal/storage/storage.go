// Package storage writes report images to an object store and builds their
// public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const MaxImageSize = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds the 5 MB limit")
	ErrInvalidKey      = errors.New("invalid object key")
)

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	URL(key string) string
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Image is an upload payload after type sniffing.
type Image struct {
	Data        []byte
	ContentType string
}

// ReadImage reads at most MaxImageSize bytes and sniffs the content type.
// The type is not checked here: an image the store cannot take fails at
// upload, like any other upload failure.
func ReadImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return NewImage(data)
}

func NewImage(data []byte) (*Image, error) {
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}
	return &Image{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// Supported reports whether the store accepts the image's type.
func (img *Image) Supported() bool {
	_, ok := extensions[img.ContentType]
	return ok
}

// ImageKey returns "<owner>/<random>.<ext>" for the image's content type.
func ImageKey(ownerID uuid.UUID, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return fmt.Sprintf("%s/%s.%s", ownerID, uuid.New(), ext), nil
}

// ValidateKey rejects keys that could escape the store's root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
