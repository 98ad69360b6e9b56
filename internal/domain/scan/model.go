package scan

import "time"

// Severity grades diabetic retinopathy. Levels are ordered.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityMild:     1,
	SeverityModerate: 2,
	SeveritySevere:   3,
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities from none (0) to severe (3); unknown values rank -1.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Diagnosis is the label shown for a severity.
func (s Severity) Diagnosis() string {
	switch s {
	case SeverityMild:
		return "Mild DR"
	case SeverityModerate:
		return "Moderate DR"
	case SeveritySevere:
		return "Severe DR"
	}
	return "No DR"
}

// ImageKind selects which image of a scan to read.
type ImageKind string

const (
	ImageOriginal ImageKind = "original"
	ImageHeatmap  ImageKind = "heatmap"
)

// Scan is one analysed retinal image. It is immutable once stored.
type Scan struct {
	ID                  int64          `json:"id"`
	PatientID           string         `json:"patientId"`
	CreatedBy           string         `json:"createdBy"`
	CapturedAt          time.Time      `json:"timestamp"`
	OriginalImageRef    string         `json:"originalImageRef"`
	HeatmapImageRef     string         `json:"heatmapImageRef"`
	Diagnosis           string         `json:"diagnosis"`
	Severity            Severity       `json:"severity"`
	Confidence          int            `json:"confidence"`
	ModelVersion        string         `json:"modelVersion"`
	InferenceMode       string         `json:"inferenceMode"`
	InferenceTimeMs     int            `json:"inferenceTime"`
	PreprocessingMethod string         `json:"preprocessingMethod"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Input is the caller-supplied part of a new scan. The creator is always the
// requesting doctor.
type Input struct {
	PatientID           string         `json:"patientId"`
	CapturedAt          *time.Time     `json:"timestamp,omitempty"`
	OriginalImageRef    string         `json:"originalImageRef"`
	HeatmapImageRef     string         `json:"heatmapImageRef"`
	Diagnosis           string         `json:"diagnosis"`
	Severity            Severity       `json:"severity"`
	Confidence          int            `json:"confidence"`
	ModelVersion        string         `json:"modelVersion"`
	InferenceMode       string         `json:"inferenceMode"`
	InferenceTimeMs     int            `json:"inferenceTime"`
	PreprocessingMethod string         `json:"preprocessingMethod"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}
