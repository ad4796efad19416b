package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxImageBytes is the upload limit when none is configured.
const DefaultMaxImageBytes = 5 << 20

// ImageStore keeps product photos on local disk.
type ImageStore struct {
	dir      string
	maxBytes int64
}

// NewImageStore prepares dir for product images.
func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("inventory: create image dir: %w", err)
	}
	return &ImageStore{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the per-image size limit.
func (s *ImageStore) MaxBytes() int64 { return s.maxBytes }

// Save validates r as a JPEG within the size limit and writes it under a
// fresh name, which it returns.
func (s *ImageStore) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("inventory: read image: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") {
		return "", fmt.Errorf("%w: got %s", ErrImageType, mt.String())
	}
	name := "product-" + uuid.NewString() + ".jpg"
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("inventory: create image: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("inventory: write image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("inventory: close image: %w", err)
	}
	return name, nil
}

// Remove deletes a stored image. Missing files are not an error.
func (s *ImageStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("inventory: remove image: %w", err)
	}
	return nil
}

// Handler serves stored images.
func (s *ImageStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
