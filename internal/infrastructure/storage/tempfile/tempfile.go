package tempfile

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"sync"
)

// Upload is a request-scoped scratch copy of one multipart file part. It is
// never reachable after the request: Remove runs on every exit path of the
// scope that created it.
type Upload struct {
	path     string
	mimeType string
	size     int64

	removeOnce sync.Once
}

// WithUploadedFile copies the multipart part into a scratch file under dir
// (the OS default when dir is empty), invokes fn with the handle, and removes
// the file before returning, whether fn succeeds, fails, or panics.
func WithUploadedFile(dir string, part multipart.File, header *multipart.FileHeader, fn func(*Upload) error) error {
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}

	upload := &Upload{
		path:     tmp.Name(),
		mimeType: header.Header.Get("Content-Type"),
	}
	defer upload.Remove()

	size, err := io.Copy(tmp, part)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	upload.size = size

	return fn(upload)
}

func (u *Upload) Path() string     { return u.path }
func (u *Upload) MimeType() string { return u.mimeType }
func (u *Upload) Size() int64      { return u.size }

// Remove deletes the backing file. Safe to call from multiple exit paths;
// only the first call touches the filesystem. A failed or already-done
// removal is logged, never escalated.
func (u *Upload) Remove() {
	u.removeOnce.Do(func() {
		if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("temp file removal failed", "path", u.path, "error", err)
		}
	})
}

// Base64 returns the file content as standard base64 text, the transport
// encoding both hosted models accept.
func (u *Upload) Base64() (string, error) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return "", fmt.Errorf("read scratch file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI embeds the image for the response payload so the browser can render
// it without the server keeping a copy.
func (u *Upload) DataURI() (string, error) {
	encoded, err := u.Base64()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", u.mimeType, encoded), nil
}

// Open returns a reader over the scratch file for header inspection.
func (u *Upload) Open() (io.ReadCloser, error) {
	return os.Open(u.path)
}
