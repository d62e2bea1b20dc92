package ports

import (
	"context"
	"io"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

// InferenceClient calls one hosted classification model and normalizes its
// response into a prediction set.
type InferenceClient interface {
	Detect(ctx context.Context, modelURL, imageBase64 string) (domain.PredictionSet, error)
}

// QuotaStore enforces the per-client request quota.
type QuotaStore interface {
	Allow(clientKey string) domain.QuotaDecision
}

// AuditSink records detection metadata after the fact. Implementations must
// be safe to call from a detached goroutine; failures are the caller's to log
// and ignore.
type AuditSink interface {
	RecordDetection(ctx context.Context, rec domain.AuditRecord) error
}

// DiseaseEncyclopedia resolves a raw model label to display text. Lookups
// never fail; unknown labels get a generic advisory entry.
type DiseaseEncyclopedia interface {
	Lookup(label string) domain.DiseaseInfo
}

// UploadedImage is the request-scoped view of the uploaded photo handed to
// the orchestrator. The backing file's lifetime is owned by whoever created
// it, never by the use case.
type UploadedImage interface {
	MimeType() string
	Size() int64
	Base64() (string, error)
	DataURI() (string, error)
	Open() (io.ReadCloser, error)
}
