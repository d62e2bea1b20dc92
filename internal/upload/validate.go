package upload

import (
	"errors"
	"fmt"
	"image"
	"io"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

const (
	MaxSizeBytes = 10 << 20

	MinPixels = 100
	MaxPixels = 4096
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Validate checks the declared MIME type, the byte size, and the decoded
// pixel dimensions of an upload. Browsers run the dimension check before
// uploading; it is repeated here because nothing forces clients through the
// browser.
func Validate(mimeType string, sizeBytes int64, content io.Reader) error {
	if sizeBytes > MaxSizeBytes {
		return domain.WrapError(domain.ErrValidation, "validate upload", errors.New("file too large"))
	}
	if !allowedMimeTypes[mimeType] {
		return domain.WrapError(domain.ErrValidation, "validate upload",
			fmt.Errorf("unsupported type %q", mimeType))
	}

	cfg, _, err := image.DecodeConfig(content)
	if err != nil {
		return domain.WrapError(domain.ErrValidation, "validate upload",
			fmt.Errorf("undecodable image: %w", err))
	}
	if cfg.Width < MinPixels || cfg.Height < MinPixels || cfg.Width > MaxPixels || cfg.Height > MaxPixels {
		return domain.WrapError(domain.ErrValidation, "validate upload",
			fmt.Errorf("image dimensions %dx%d outside [%d,%d]", cfg.Width, cfg.Height, MinPixels, MaxPixels))
	}
	return nil
}
