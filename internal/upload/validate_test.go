package upload

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateAcceptsReasonablePNG(t *testing.T) {
	data := encodePNG(t, 640, 480)
	if err := Validate("image/png", int64(len(data)), bytes.NewReader(data)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	data := encodePNG(t, 640, 480)
	err := Validate("image/png", MaxSizeBytes+1, bytes.NewReader(data))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsUnsupportedMime(t *testing.T) {
	data := encodePNG(t, 640, 480)
	err := Validate("image/gif", int64(len(data)), bytes.NewReader(data))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsTinyImage(t *testing.T) {
	data := encodePNG(t, 64, 64)
	err := Validate("image/png", int64(len(data)), bytes.NewReader(data))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for 64x64 image, got %v", err)
	}
}

func TestValidateRejectsUndecodableBytes(t *testing.T) {
	data := []byte("definitely not an image")
	err := Validate("image/jpeg", int64(len(data)), bytes.NewReader(data))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateAcceptsBoundaryDimensions(t *testing.T) {
	data := encodePNG(t, MinPixels, MinPixels)
	if err := Validate("image/png", int64(len(data)), bytes.NewReader(data)); err != nil {
		t.Fatalf("100x100 should pass: %v", err)
	}
}
