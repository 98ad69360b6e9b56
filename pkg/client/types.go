package client

import "time"

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	Name          string    `json:"name"`
	Phone         *string   `json:"phone,omitempty"`
	DateOfBirth   *string   `json:"dateOfBirth,omitempty"`
	Gender        *string   `json:"gender,omitempty"`
	Address       *string   `json:"address,omitempty"`
	LicenseNumber *string   `json:"licenseNumber,omitempty"`
	Specialty     *string   `json:"specialty,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsApprovedDoctor mirrors the server's doctor gate.
func (p *Profile) IsApprovedDoctor() bool {
	return p != nil && p.Role == "doctor" && p.Status == "approved"
}

type Me struct {
	User    Identity `json:"user"`
	Profile *Profile `json:"profile"`
}

// Registration completes sign-up. Role is "patient" or "doctor".
type Registration struct {
	Email         string  `json:"email,omitempty"`
	Role          string  `json:"role"`
	Name          string  `json:"name"`
	Phone         *string `json:"phone,omitempty"`
	DateOfBirth   *string `json:"dateOfBirth,omitempty"`
	Gender        *string `json:"gender,omitempty"`
	Address       *string `json:"address,omitempty"`
	LicenseNumber *string `json:"licenseNumber,omitempty"`
	Specialty     *string `json:"specialty,omitempty"`
}

type DoctorSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Specialty *string `json:"specialty,omitempty"`
}

type Assignment struct {
	PatientID  string    `json:"patientId"`
	DoctorID   string    `json:"doctorId"`
	AssignedAt time.Time `json:"assignedAt"`
}

type PatientAssignment struct {
	Patient    *Profile  `json:"patient"`
	AssignedAt time.Time `json:"assignedAt"`
}

type Scan struct {
	ID                  int64          `json:"id"`
	PatientID           string         `json:"patientId"`
	CreatedBy           string         `json:"createdBy"`
	Timestamp           time.Time      `json:"timestamp"`
	OriginalImageRef    string         `json:"originalImageRef"`
	HeatmapImageRef     string         `json:"heatmapImageRef"`
	Diagnosis           string         `json:"diagnosis"`
	Severity            string         `json:"severity"`
	Confidence          int            `json:"confidence"`
	ModelVersion        string         `json:"modelVersion"`
	InferenceMode       string         `json:"inferenceMode"`
	InferenceTime       int            `json:"inferenceTime"`
	PreprocessingMethod string         `json:"preprocessingMethod"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// NewScan records an analysis made elsewhere. Empty fields take server
// defaults.
type NewScan struct {
	PatientID           string         `json:"patientId"`
	Timestamp           *time.Time     `json:"timestamp,omitempty"`
	OriginalImageRef    string         `json:"originalImageRef"`
	HeatmapImageRef     string         `json:"heatmapImageRef,omitempty"`
	Diagnosis           string         `json:"diagnosis,omitempty"`
	Severity            string         `json:"severity"`
	Confidence          int            `json:"confidence"`
	ModelVersion        string         `json:"modelVersion,omitempty"`
	InferenceMode       string         `json:"inferenceMode,omitempty"`
	InferenceTime       int            `json:"inferenceTime,omitempty"`
	PreprocessingMethod string         `json:"preprocessingMethod,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

type ScanPage struct {
	Data    []Scan `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"hasMore"`
}
