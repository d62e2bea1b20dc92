package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/smnthegr/cali-ai/internal/config"
	"github.com/smnthegr/cali-ai/internal/core/domain"
	"github.com/smnthegr/cali-ai/internal/core/usecase"
	"github.com/smnthegr/cali-ai/internal/infrastructure/storage/tempfile"
	"github.com/smnthegr/cali-ai/internal/observability/metrics"
	"github.com/smnthegr/cali-ai/internal/upload"
)

const serviceName = "cali-ai-api"

// Uploads slightly above the validation cap still reach the validator so the
// client gets the proper "file too large" response instead of a broken read.
const maxRequestBody = upload.MaxSizeBytes + 1<<20

type Router struct {
	cfg      config.Config
	detectUC *usecase.DetectUseCase
	metrics  *metrics.HTTPServerMetrics

	// tempDir overrides the OS scratch directory; tests point it at t.TempDir.
	tempDir string
}

func NewRouter(cfg config.Config, detectUC *usecase.DetectUseCase, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:      cfg,
		detectUC: detectUC,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/api/detect", rt.detect)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = rpsLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.AllowedOrigin)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) detect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	clientKey := clientKeyFromRequest(r)
	decision, err := rt.detectUC.CheckQuota(clientKey)
	rt.writeQuotaHeaders(w, decision)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordRateLimited(serviceName)
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":     "rate limit exceeded, try again later",
			"type":      "rate_limit_error",
			"resetTime": decision.ResetAt,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	file, header, err := r.FormFile("image")
	if err != nil {
		rt.recordOutcome("validation_error")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart field 'image' is required",
			"type":  "validation_error",
		})
		return
	}
	defer file.Close()

	var result *domain.DetectionResult
	scopeErr := tempfile.WithUploadedFile(rt.tempDir, file, header, func(u *tempfile.Upload) error {
		var detectErr error
		result, detectErr = rt.detectUC.Detect(r.Context(), clientKey, u)
		return detectErr
	})
	if scopeErr != nil {
		rt.writeError(w, scopeErr)
		return
	}

	rt.recordOutcome("completed")
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) writeQuotaHeaders(w http.ResponseWriter, decision domain.QuotaDecision) {
	if decision.Remaining < 0 {
		// enforcement disabled
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rt.cfg.RateLimitQuota))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt, 10))
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status, errType := mapError(err)
	rt.recordOutcome(errType)

	message := err.Error()
	if rt.cfg.IsProduction() && errType != "validation_error" {
		message = genericMessage(errType)
	}
	if status >= 500 {
		slog.Error("detection failed", "type", errType, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error": message,
		"type":  errType,
	})
}

func (rt *Router) recordOutcome(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordDetection(serviceName, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
