package profile

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("profile not found")
	ErrAlreadyExists = errors.New("profile already exists")
	ErrEmailTaken    = errors.New("email already registered")
	// ErrStatusDecided means the doctor is no longer pending.
	ErrStatusDecided = errors.New("doctor status already decided")
)

type Repository interface {
	// Create inserts p once. A second insert for the same id returns
	// ErrAlreadyExists.
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	// GetMany returns the profiles that exist among ids, in no order.
	GetMany(ctx context.Context, ids []string) ([]*Profile, error)
	// ListDoctors returns doctors in status, oldest first for pending and
	// by name otherwise.
	ListDoctors(ctx context.Context, status Status) ([]*Profile, error)
	// TransitionDoctorStatus moves a doctor from one status to another in a
	// single conditional write. ErrNotFound when id is not a doctor;
	// ErrStatusDecided when the doctor is not in from.
	TransitionDoctorStatus(ctx context.Context, id string, from, to Status) (*Profile, error)
}
