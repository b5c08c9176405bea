// Package media stores uploaded product images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

// MaxWidth is the widest image kept on disk; wider uploads are scaled down.
const MaxWidth = 800

// MaxSide bounds either dimension an upload may declare. The header is read
// before the pixels so an oversized image is refused without decoding it.
const MaxSide = 10000

type Store struct {
	Dir string // filesystem root
	URL string // public prefix, e.g. /media/
}

// SaveImage decodes a png/jpg/jpeg upload, resizes it and writes it as JPEG
// under a random name. It returns the public URL.
func (s *Store) SaveImage(filename string, r io.Reader) (string, error) {
	var (
		decodeConfig func(io.Reader) (image.Config, error)
		decode       func(io.Reader) (image.Image, error)
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		decodeConfig, decode = png.DecodeConfig, png.Decode
	case ".jpg", ".jpeg":
		decodeConfig, decode = jpeg.DecodeConfig, jpeg.Decode
	default:
		return "", apperr.Invalid("image", "Unsupported image format. Only PNG, JPG, JPEG are allowed.")
	}

	var head bytes.Buffer
	cfg, err := decodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return "", apperr.Invalid("image", "Failed to decode image.")
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide {
		return "", apperr.Invalid("image", fmt.Sprintf("Image dimensions are too large. At most %dx%d pixels.", MaxSide, MaxSide))
	}
	img, err := decode(io.MultiReader(&head, r))
	if err != nil {
		return "", apperr.Invalid("image", "Failed to decode image.")
	}

	if img.Bounds().Dx() > MaxWidth {
		img = resize.Resize(MaxWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("media dir: %w", err)
	}
	name := uuid.NewString() + ".jpg"
	dst := filepath.Join(s.Dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	err = jpeg.Encode(out, img, &jpeg.Options{Quality: 80})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("encode image: %w", err)
	}
	return s.URL + name, nil
}

// Remove deletes a file previously returned by SaveImage. Foreign URLs are ignored.
func (s *Store) Remove(url string) error {
	if !strings.HasPrefix(url, s.URL) {
		return nil
	}
	name := path.Base(strings.TrimPrefix(url, s.URL))
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
