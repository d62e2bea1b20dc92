package domain

import "sort"

// Geometry is a model-space bounding box, center coordinates plus size,
// in pixels of the image the model saw.
type Geometry struct {
	CenterX float64 `json:"x"`
	CenterY float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Prediction is one labeled output of an inference call. Confidence is the
// upstream fraction in [0,1]; geometry is absent for pure classifiers.
type Prediction struct {
	Label      string
	Confidence float64
	Geometry   *Geometry
}

// PredictionSet is what one inference call produced. ImageWidth/ImageHeight
// are the dimensions the provider reports for the analyzed image, zero when
// the endpoint does not echo them.
type PredictionSet struct {
	Predictions []Prediction
	ImageWidth  int
	ImageHeight int
}

// Top returns the highest-confidence prediction without trusting upstream
// order. ok is false for an empty set.
func (s PredictionSet) Top() (Prediction, bool) {
	if len(s.Predictions) == 0 {
		return Prediction{}, false
	}
	sorted := make([]Prediction, len(s.Predictions))
	copy(sorted, s.Predictions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted[0], true
}

// DiseaseInfo is display text for a recognized condition.
type DiseaseInfo struct {
	CanonicalName string `json:"canonicalName"`
	Description   string `json:"description"`
}

// ScoredPrediction is the client-facing form of a prediction, confidence
// already rounded to a whole percentage.
type ScoredPrediction struct {
	Label             string       `json:"label"`
	ConfidencePercent int          `json:"confidencePercent"`
	Geometry          *Geometry    `json:"geometry,omitempty"`
	Info              *DiseaseInfo `json:"info,omitempty"`
}

// Verification summarizes the species-verifier outcome included in a
// successful response.
type Verification struct {
	Label             string `json:"label"`
	ConfidencePercent int    `json:"confidencePercent"`
}

// DetectionResult is the unified payload for one successful detection. The
// uploaded image travels back embedded as a data URI because the server never
// keeps a copy.
type DetectionResult struct {
	DetectionID    string             `json:"detectionId"`
	Verification   Verification       `json:"verification"`
	Primary        ScoredPrediction   `json:"primary"`
	AllPredictions []ScoredPrediction `json:"allPredictions"`
	ImageDataURI   string             `json:"imageDataUri"`
	ImageWidth     int                `json:"imageWidth"`
	ImageHeight    int                `json:"imageHeight"`
	Timestamp      string             `json:"timestamp"`
}

// QuotaDecision is the outcome of one rate-limit check.
type QuotaDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   int64
}

// AuditRecord is the best-effort metadata row written after a detection
// attempt. It never contains image bytes.
type AuditRecord struct {
	DetectionID        string
	ClientKey          string
	VerifiedLabel      string
	VerifiedConfidence float64
	DiseaseLabel       string
	DiseaseConfidence  float64
	PredictionCount    int
	Status             string
}

// ConfidencePercent converts an upstream fraction to the display percentage,
// rounding to nearest. Gating always happens on the fraction, before this.
func ConfidencePercent(fraction float64) int {
	if fraction < 0 {
		return 0
	}
	return int(fraction*100 + 0.5)
}
