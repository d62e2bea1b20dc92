package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smnthegr/cali-ai/internal/core/domain"
	"github.com/smnthegr/cali-ai/internal/core/ports"
	"github.com/smnthegr/cali-ai/internal/upload"
)

// verificationThreshold is the fractional confidence the species verifier
// must reach. The comparison happens before percent rounding so 0.4999 fails
// and 0.50 passes.
const verificationThreshold = 0.5

// defaultImageDim is assumed when the disease model does not echo the
// analyzed image's dimensions.
const defaultImageDim = 640

const auditTimeout = 10 * time.Second

// DetectUseCase sequences one detection request: quota check, validation,
// species verification, disease classification, payload assembly, and a
// detached audit write. Temp-file lifetime belongs to the HTTP adapter's
// scoped handler, so every error returned here still leaves no file behind.
type DetectUseCase struct {
	quota        ports.QuotaStore
	inference    ports.InferenceClient
	encyclopedia ports.DiseaseEncyclopedia
	auditSinks   []ports.AuditSink

	verifierModelURL string
	diseaseModelURL  string
	expectedSubject  string
}

func NewDetectUseCase(
	quota ports.QuotaStore,
	inference ports.InferenceClient,
	encyclopedia ports.DiseaseEncyclopedia,
	auditSinks []ports.AuditSink,
	verifierModelURL, diseaseModelURL, expectedSubject string,
) *DetectUseCase {
	return &DetectUseCase{
		quota:            quota,
		inference:        inference,
		encyclopedia:     encyclopedia,
		auditSinks:       auditSinks,
		verifierModelURL: verifierModelURL,
		diseaseModelURL:  diseaseModelURL,
		expectedSubject:  expectedSubject,
	}
}

// CheckQuota consumes one slot from the client's window, or reports the
// rejection. The decision is returned in both cases so the adapter can fill
// rate-limit headers.
func (uc *DetectUseCase) CheckQuota(clientKey string) (domain.QuotaDecision, error) {
	decision := uc.quota.Allow(clientKey)
	if !decision.Allowed {
		return decision, domain.WrapError(domain.ErrRateLimited, "check quota",
			fmt.Errorf("client %s exhausted its window", clientKey))
	}
	return decision, nil
}

// Detect runs the verification-gated two-model pipeline over an uploaded
// image and assembles the unified result payload.
func (uc *DetectUseCase) Detect(ctx context.Context, clientKey string, img ports.UploadedImage) (*domain.DetectionResult, error) {
	if uc.verifierModelURL == "" || uc.diseaseModelURL == "" {
		return nil, domain.WrapError(domain.ErrConfig, "detect", errors.New("model endpoints are not configured"))
	}

	content, err := img.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	validationErr := upload.Validate(img.MimeType(), img.Size(), content)
	content.Close()
	if validationErr != nil {
		return nil, validationErr
	}

	imageBase64, err := img.Base64()
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	verification, err := uc.verifySubject(ctx, imageBase64)
	if err != nil {
		return nil, err
	}

	diseases, err := uc.inference.Detect(ctx, uc.diseaseModelURL, imageBase64)
	if err != nil {
		return nil, err
	}
	primary, ok := diseases.Top()
	if !ok {
		return nil, domain.WrapError(domain.ErrModel, "classify disease", errors.New("empty prediction set"))
	}

	dataURI, err := img.DataURI()
	if err != nil {
		return nil, fmt.Errorf("embed upload: %w", err)
	}

	result := uc.assemble(verification, primary, diseases, dataURI)
	uc.auditAsync(result, clientKey, verification, primary)
	return result, nil
}

// verifySubject calls the species verifier and applies the gate: top
// prediction (re-sorted by confidence, upstream order is not trusted) must
// contain the expected subject, case-insensitively, at or above the
// fractional threshold.
func (uc *DetectUseCase) verifySubject(ctx context.Context, imageBase64 string) (domain.Prediction, error) {
	set, err := uc.inference.Detect(ctx, uc.verifierModelURL, imageBase64)
	if err != nil {
		return domain.Prediction{}, err
	}

	top, ok := set.Top()
	if !ok {
		return domain.Prediction{}, domain.WrapError(domain.ErrModel, "verify subject", errors.New("empty prediction set"))
	}

	matches := strings.Contains(strings.ToLower(top.Label), strings.ToLower(uc.expectedSubject))
	if !matches || top.Confidence < verificationThreshold {
		return domain.Prediction{}, domain.WrapError(domain.ErrValidation, "verify subject",
			fmt.Errorf("image does not look like a %s leaf (detected %q at %d%% confidence)",
				uc.expectedSubject, top.Label, domain.ConfidencePercent(top.Confidence)))
	}
	return top, nil
}

func (uc *DetectUseCase) assemble(
	verification, primary domain.Prediction,
	diseases domain.PredictionSet,
	dataURI string,
) *domain.DetectionResult {
	width, height := diseases.ImageWidth, diseases.ImageHeight
	if width <= 0 || height <= 0 {
		width, height = defaultImageDim, defaultImageDim
	}

	// The secondary list keeps provider order; only the primary selection
	// re-sorts.
	all := make([]domain.ScoredPrediction, 0, len(diseases.Predictions))
	for _, pred := range diseases.Predictions {
		info := uc.encyclopedia.Lookup(pred.Label)
		all = append(all, domain.ScoredPrediction{
			Label:             pred.Label,
			ConfidencePercent: domain.ConfidencePercent(pred.Confidence),
			Geometry:          pred.Geometry,
			Info:              &info,
		})
	}

	primaryInfo := uc.encyclopedia.Lookup(primary.Label)
	return &domain.DetectionResult{
		DetectionID: uuid.NewString(),
		Verification: domain.Verification{
			Label:             verification.Label,
			ConfidencePercent: domain.ConfidencePercent(verification.Confidence),
		},
		Primary: domain.ScoredPrediction{
			Label:             primary.Label,
			ConfidencePercent: domain.ConfidencePercent(primary.Confidence),
			Geometry:          primary.Geometry,
			Info:              &primaryInfo,
		},
		AllPredictions: all,
		ImageDataURI:   dataURI,
		ImageWidth:     width,
		ImageHeight:    height,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// auditAsync dispatches the metadata write without holding the response
// open. Sink failures are logged and dropped; they can never change the
// outcome already being sent.
func (uc *DetectUseCase) auditAsync(result *domain.DetectionResult, clientKey string, verification, primary domain.Prediction) {
	if len(uc.auditSinks) == 0 {
		return
	}

	rec := domain.AuditRecord{
		DetectionID:        result.DetectionID,
		ClientKey:          clientKey,
		VerifiedLabel:      verification.Label,
		VerifiedConfidence: verification.Confidence,
		DiseaseLabel:       primary.Label,
		DiseaseConfidence:  primary.Confidence,
		PredictionCount:    len(result.AllPredictions),
		Status:             "completed",
	}

	sinks := uc.auditSinks
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		for _, sink := range sinks {
			if err := sink.RecordDetection(ctx, rec); err != nil {
				slog.Warn("audit write failed", "detection_id", rec.DetectionID, "error", err)
			}
		}
	}()
}
