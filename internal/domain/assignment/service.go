package assignment

import (
	"context"
	"errors"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/events"
)

// ProfileStore is the slice of the profile repository the registry reads.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
	GetMany(ctx context.Context, ids []string) ([]*profile.Profile, error)
}

// Registry owns the patient to doctor relation. Each patient has at most
// one doctor; selecting a new one replaces the old in a single write.
type Registry struct {
	repo     Repository
	profiles ProfileStore
	events   events.Publisher
}

func NewRegistry(repo Repository, profiles ProfileStore, pub events.Publisher) *Registry {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Registry{repo: repo, profiles: profiles, events: pub}
}

const notEligibleMessage = "doctor is not available for selection"

// Assign makes doctorID the patient's doctor, replacing any previous one.
func (r *Registry) Assign(ctx context.Context, patientID, doctorID string) (*Assignment, error) {
	if doctorID == "" {
		return nil, apperr.Validation("doctorId is required")
	}

	patient, err := r.profiles.GetByID(ctx, patientID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return nil, apperr.NotFound("patient not found")
	case err != nil:
		return nil, apperr.Infrastructure("load patient", err)
	case patient.Role != profile.RolePatient:
		return nil, apperr.NotFound("patient not found")
	}

	doctor, err := r.profiles.GetByID(ctx, doctorID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return nil, apperr.DoctorNotEligible(notEligibleMessage)
	case err != nil:
		return nil, apperr.Infrastructure("load doctor", err)
	case !doctor.IsApprovedDoctor():
		return nil, apperr.DoctorNotEligible(notEligibleMessage)
	}

	a, err := r.repo.Replace(ctx, patientID, doctorID)
	if errors.Is(err, ErrDoctorNotEligible) {
		// The doctor was rejected between the read above and the write.
		return nil, apperr.DoctorNotEligible(notEligibleMessage)
	}
	if err != nil {
		return nil, apperr.Infrastructure("replace assignment", err)
	}

	_ = r.events.Publish(ctx, events.New(events.TypeAssignmentReplaced, patientID, map[string]any{
		"doctorId": doctorID,
	}))
	return a, nil
}

// GetDoctorFor returns the patient's current doctor, or nil when none has
// been chosen.
func (r *Registry) GetDoctorFor(ctx context.Context, patientID string) (*profile.Profile, error) {
	a, err := r.repo.GetByPatient(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("load assignment", err)
	}

	doctor, err := r.profiles.GetByID(ctx, a.DoctorID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("load doctor", err)
	}
	return doctor, nil
}

// GetPatientsFor lists the doctor's patients, most recently assigned first.
// Assignments whose patient profile has disappeared are skipped.
func (r *Registry) GetPatientsFor(ctx context.Context, doctorID string) ([]PatientAssignment, error) {
	assignments, err := r.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperr.Infrastructure("list assignments", err)
	}
	if len(assignments) == 0 {
		return []PatientAssignment{}, nil
	}

	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.PatientID
	}
	patients, err := r.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Infrastructure("load patients", err)
	}
	byID := make(map[string]*profile.Profile, len(patients))
	for _, p := range patients {
		byID[p.ID] = p
	}

	out := make([]PatientAssignment, 0, len(assignments))
	for _, a := range assignments {
		p, ok := byID[a.PatientID]
		if !ok {
			continue
		}
		out = append(out, PatientAssignment{Patient: p, AssignedAt: a.AssignedAt})
	}
	return out, nil
}

// PatientIDsFor returns the ids of the doctor's current patients.
func (r *Registry) PatientIDsFor(ctx context.Context, doctorID string) ([]string, error) {
	assignments, err := r.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperr.Infrastructure("list assignments", err)
	}
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.PatientID
	}
	return ids, nil
}

// IsAssigned reports whether doctorID is patientID's current doctor.
func (r *Registry) IsAssigned(ctx context.Context, patientID, doctorID string) (bool, error) {
	a, err := r.repo.GetByPatient(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Infrastructure("load assignment", err)
	}
	return a.DoctorID == doctorID, nil
}
