package assignment

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("assignment not found")
	ErrDoctorNotEligible = errors.New("doctor not eligible")
)

type Repository interface {
	// Replace points patientID at doctorID in one atomic write keyed by
	// patient. It re-checks that doctorID is an approved doctor and returns
	// ErrDoctorNotEligible otherwise.
	Replace(ctx context.Context, patientID, doctorID string) (*Assignment, error)
	GetByPatient(ctx context.Context, patientID string) (*Assignment, error)
	// ListByDoctor returns the doctor's assignments, most recent first.
	ListByDoctor(ctx context.Context, doctorID string) ([]*Assignment, error)
}
