// Package approval is the administrator's review of doctor accounts.
package approval

import (
	"context"
	"errors"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/events"
)

// DoctorStore is the slice of the profile repository this workflow needs.
type DoctorStore interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
	ListDoctors(ctx context.Context, status profile.Status) ([]*profile.Profile, error)
	TransitionDoctorStatus(ctx context.Context, id string, from, to profile.Status) (*profile.Profile, error)
}

type Service struct {
	doctors DoctorStore
	events  events.Publisher
}

func NewService(doctors DoctorStore, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{doctors: doctors, events: pub}
}

// ListPending returns doctors awaiting review, oldest registration first.
func (s *Service) ListPending(ctx context.Context) ([]*profile.Profile, error) {
	doctors, err := s.doctors.ListDoctors(ctx, profile.StatusPending)
	if err != nil {
		return nil, apperr.Infrastructure("list pending doctors", err)
	}
	if doctors == nil {
		doctors = []*profile.Profile{}
	}
	return doctors, nil
}

// SetStatus records the decision for a pending doctor. A decision is final.
func (s *Service) SetStatus(ctx context.Context, doctorID string, to profile.Status) (*profile.Profile, error) {
	if to != profile.StatusApproved && to != profile.StatusRejected {
		return nil, apperr.Validation("status must be approved or rejected")
	}

	p, err := s.doctors.TransitionDoctorStatus(ctx, doctorID, profile.StatusPending, to)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return nil, apperr.NotFound("doctor not found")
	case errors.Is(err, profile.ErrStatusDecided):
		return nil, s.decidedConflict(ctx, doctorID)
	case err != nil:
		return nil, apperr.Infrastructure("update doctor status", err)
	}

	eventType := events.TypeDoctorApproved
	if to == profile.StatusRejected {
		eventType = events.TypeDoctorRejected
	}
	_ = s.events.Publish(ctx, events.New(eventType, p.ID, map[string]any{"status": p.Status}))
	return p, nil
}

func (s *Service) Approve(ctx context.Context, doctorID string) (*profile.Profile, error) {
	return s.SetStatus(ctx, doctorID, profile.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, doctorID string) (*profile.Profile, error) {
	return s.SetStatus(ctx, doctorID, profile.StatusRejected)
}

func (s *Service) decidedConflict(ctx context.Context, doctorID string) error {
	p, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return apperr.Conflict("doctor status already decided")
	}
	return apperr.Conflict("doctor already " + string(p.Status))
}
