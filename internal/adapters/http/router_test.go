package httpadapter

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smnthegr/cali-ai/internal/config"
	"github.com/smnthegr/cali-ai/internal/core/domain"
	"github.com/smnthegr/cali-ai/internal/core/usecase"
	"github.com/smnthegr/cali-ai/internal/encyclopedia"
	"github.com/smnthegr/cali-ai/internal/infrastructure/inference/roboflow"
	"github.com/smnthegr/cali-ai/internal/infrastructure/ratelimit"
)

func modelServer(t *testing.T, responses map[string]string, calls map[string]*int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			if counter, ok := calls[r.URL.Path]; ok {
				*counter++
			}
		}
		body, ok := responses[r.URL.Path]
		if !ok {
			http.Error(w, "unknown model", http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
}

func newDetectRouter(t *testing.T, cfg config.Config, server *httptest.Server, quota int) *Router {
	t.Helper()

	enc, err := encyclopedia.Load()
	if err != nil {
		t.Fatalf("load encyclopedia: %v", err)
	}
	uc := usecase.NewDetectUseCase(
		ratelimit.NewMemoryStore(quota, time.Hour),
		roboflow.New("test-key", 5*time.Second, nil),
		enc,
		nil,
		server.URL+"/verify",
		server.URL+"/disease",
		"calamansi",
	)
	if cfg.RateLimitQuota == 0 {
		cfg.RateLimitQuota = quota
	}
	router := NewRouter(cfg, uc, nil)
	router.tempDir = t.TempDir()
	return router
}

func multipartImageRequest(t *testing.T, target string) *http.Request {
	t.Helper()

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 640, 480))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="leaf.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

const happyVerify = `{"predictions":[{"class":"calamansi","confidence":0.92}]}`
const happyDisease = `{
	"predictions": [
		{"x":320,"y":320,"width":100,"height":100,"class":"black spot","confidence":0.81},
		{"x":100,"y":100,"width":40,"height":40,"class":"healthy calamansi","confidence":0.10}
	],
	"image": {"width":640,"height":640}
}`

func TestDetectEndToEndSuccess(t *testing.T) {
	server := modelServer(t, map[string]string{
		"/verify":  happyVerify,
		"/disease": happyDisease,
	}, nil)
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("expected remaining header 4, got %q", res.Header().Get("X-RateLimit-Remaining"))
	}

	var result domain.DetectionResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if result.Primary.Label != "black spot" || result.Primary.ConfidencePercent != 81 {
		t.Fatalf("unexpected primary: %+v", result.Primary)
	}
	if len(result.AllPredictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(result.AllPredictions))
	}
	if result.AllPredictions[1].Label != "healthy calamansi" {
		t.Fatalf("secondary list must keep provider order: %+v", result.AllPredictions)
	}
	if result.ImageDataURI == "" {
		t.Fatalf("payload must embed the uploaded image")
	}
}

func TestDetectWrongSubjectShortCircuits(t *testing.T) {
	diseaseCalls := 0
	server := modelServer(t, map[string]string{
		"/verify":  `{"predictions":[{"class":"tomato","confidence":0.95}]}`,
		"/disease": happyDisease,
	}, map[string]*int{"/disease": &diseaseCalls})
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["type"] != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body["type"])
	}
	if diseaseCalls != 0 {
		t.Fatalf("disease model must not be called after a failed gate")
	}

	entries, err := os.ReadDir(router.tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, filepath.Join(router.tempDir, e.Name()))
		}
		t.Fatalf("temp files leaked: %v", names)
	}
}

func TestDetectNoTempFileSurvivesAnyOutcome(t *testing.T) {
	server := modelServer(t, map[string]string{
		"/verify":  happyVerify,
		"/disease": happyDisease,
	}, nil)
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	entries, err := os.ReadDir(router.tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files leaked after success: %d", len(entries))
	}
}

func TestSixthRequestWithinWindowIsRateLimited(t *testing.T) {
	server := modelServer(t, map[string]string{
		"/verify":  happyVerify,
		"/disease": happyDisease,
	}, nil)
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, res.Code)
		}
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth request expected 429, got %d", res.Code)
	}

	var body struct {
		Type      string `json:"type"`
		ResetTime int64  `json:"resetTime"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Type != "rate_limit_error" {
		t.Fatalf("expected rate_limit_error, got %q", body.Type)
	}
	if body.ResetTime < time.Now().UnixMilli() {
		t.Fatalf("resetTime must not be in the past")
	}
	if res.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining header 0, got %q", res.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestDetectMissingFileReturns400(t *testing.T) {
	server := modelServer(t, map[string]string{}, nil)
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(nil))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDetectUpstreamFailureReturns502(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "test"}, server, 5)
	handler := router.Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["type"] != "service_error" {
		t.Fatalf("expected service_error, got %q", body["type"])
	}
}

func TestProductionHidesUpstreamDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "secret internal detail", http.StatusInternalServerError)
	}))
	defer server.Close()

	router := newDetectRouter(t, config.Config{Environment: "production"}, server, 5)
	handler := router.Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, multipartImageRequest(t, "/api/detect"))

	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if bytes.Contains([]byte(body["error"]), []byte("secret internal detail")) {
		t.Fatalf("production responses must not leak upstream detail: %q", body["error"])
	}
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	server := modelServer(t, map[string]string{}, nil)
	defer server.Close()

	cfg := config.Config{Environment: "test", AllowedOrigin: "https://cali.example.com"}
	handler := newDetectRouter(t, cfg, server, 5).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://cali.example.com")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://cali.example.com" {
		t.Fatalf("expected reflected origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header for untrusted origin: %q", got)
	}
}

func TestCORSAllowsPreviewDeployments(t *testing.T) {
	server := modelServer(t, map[string]string{}, nil)
	defer server.Close()

	cfg := config.Config{Environment: "test", AllowedOrigin: "https://cali.example.com"}
	handler := newDetectRouter(t, cfg, server, 5).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/detect", nil)
	req.Header.Set("Origin", "https://cali-git-main-smnthegr.vercel.app")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("preflight expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://cali-git-main-smnthegr.vercel.app" {
		t.Fatalf("preview origin should be reflected, got %q", got)
	}
}
