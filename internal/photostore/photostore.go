// Package photostore stages photos attached during an edit until the save
// that uploads them succeeds.
package photostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/vbonduro/switchmap/internal/domain"
)

// ErrNotFound is returned for a storage key that holds no photo.
var ErrNotFound = errors.New("photo not found")

// JPEGQuality is used when a downscaled JPEG is re-encoded.
const JPEGQuality = 85

type PhotoStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP has no WHATWG signature and is detected separately.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the sniffed MIME type and true if data is an accepted
// image format.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// Prepare sniffs data and, when either side exceeds maxDimension, downscales
// it to fit. WebP is passed through as is. maxDimension <= 0 disables
// resizing.
func Prepare(filename string, data []byte, maxDimension int) (domain.PhotoFile, error) {
	mime, ok := DetectMIME(data)
	if !ok {
		return domain.PhotoFile{}, &domain.ValidationError{Field: "photo", Message: "unsupported image format"}
	}
	file := domain.PhotoFile{Filename: filename, MimeType: mime, Data: data}
	if maxDimension <= 0 || mime == "image/webp" {
		return file, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.PhotoFile{}, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return file, nil
	}

	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	switch mime {
	case "image/png":
		err = imaging.Encode(&buf, resized, imaging.PNG)
	case "image/gif":
		err = imaging.Encode(&buf, resized, imaging.GIF)
	default:
		err = imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
	}
	if err != nil {
		return domain.PhotoFile{}, fmt.Errorf("failed to encode image: %w", err)
	}
	file.Data = buf.Bytes()
	return file, nil
}

// Stage writes file to store and returns the pending reference to it.
func Stage(ctx context.Context, store PhotoStore, file domain.PhotoFile) (domain.PendingPhoto, error) {
	key, err := store.Save(ctx, "pending", file.MimeType, bytes.NewReader(file.Data))
	if err != nil {
		return domain.PendingPhoto{}, fmt.Errorf("failed to stage photo: %w", err)
	}
	return domain.PendingPhoto{Filename: file.Filename, MimeType: file.MimeType, StorageKey: key}, nil
}

// Load reads a staged photo back for upload.
func Load(ctx context.Context, store PhotoStore, p domain.PendingPhoto) (domain.PhotoFile, error) {
	rc, _, err := store.Get(ctx, p.StorageKey)
	if err != nil {
		return domain.PhotoFile{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.PhotoFile{}, fmt.Errorf("failed to read staged photo: %w", err)
	}
	return domain.PhotoFile{Filename: p.Filename, MimeType: p.MimeType, Data: data}, nil
}
