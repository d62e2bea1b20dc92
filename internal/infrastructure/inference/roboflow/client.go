package roboflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/smnthegr/cali-ai/internal/core/domain"
	"github.com/smnthegr/cali-ai/internal/infrastructure/resilience"
)

var errMissingAPIKey = errors.New("inference api key is not configured")

// Client talks to hosted Roboflow-style inference endpoints. One client
// serves both the species verifier and the disease model; the endpoint URL
// is chosen per call.
type Client struct {
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	onDuration func(modelURL string, elapsed time.Duration)
}

func New(apiKey string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// detectionResponse tolerates both upstream shapes: object-detection
// endpoints return a ranked predictions list with geometry, classification
// endpoints may return only a single top object.
type detectionResponse struct {
	Predictions []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
		Class      string  `json:"class"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
	Top        string  `json:"top"`
	Confidence float64 `json:"confidence"`
	Image      *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
}

// ObserveDurations registers a callback invoked with the wall time of every
// Detect call, retries included.
func (c *Client) ObserveDurations(fn func(modelURL string, elapsed time.Duration)) {
	c.onDuration = fn
}

// Detect sends the base64-encoded image to modelURL and normalizes the
// response into a prediction set. The set may be empty; deciding whether
// that is an error belongs to the caller.
func (c *Client) Detect(ctx context.Context, modelURL, imageBase64 string) (domain.PredictionSet, error) {
	if c.apiKey == "" {
		return domain.PredictionSet{}, domain.WrapError(domain.ErrConfig, "detect", errMissingAPIKey)
	}
	if c.onDuration != nil {
		start := time.Now()
		defer func() { c.onDuration(modelURL, time.Since(start)) }()
	}

	var raw json.RawMessage
	call := func(ctx context.Context) error {
		return c.postBase64(ctx, modelURL, imageBase64, &raw)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "inference.detect", call, classifyInferenceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.PredictionSet{}, wrapServiceIfNeeded("detect", err)
	}

	var resp detectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.PredictionSet{}, fmt.Errorf("parse inference response: %w", err)
	}
	return normalize(resp), nil
}

func normalize(resp detectionResponse) domain.PredictionSet {
	set := domain.PredictionSet{}
	if resp.Image != nil {
		set.ImageWidth = resp.Image.Width
		set.ImageHeight = resp.Image.Height
	}

	for _, p := range resp.Predictions {
		pred := domain.Prediction{
			Label:      p.Class,
			Confidence: p.Confidence,
		}
		if p.Width > 0 && p.Height > 0 {
			pred.Geometry = &domain.Geometry{
				CenterX: p.X,
				CenterY: p.Y,
				Width:   p.Width,
				Height:  p.Height,
			}
		}
		set.Predictions = append(set.Predictions, pred)
	}

	// Classification endpoints report only a top object.
	if len(set.Predictions) == 0 && resp.Top != "" {
		set.Predictions = []domain.Prediction{{
			Label:      resp.Top,
			Confidence: resp.Confidence,
		}}
	}
	return set
}
