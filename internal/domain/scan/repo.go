package scan

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("scan not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// Scope limits a listing to what one requester may see. The zero Scope
// matches nothing.
type Scope struct {
	All        bool
	PatientIDs []string
}

func (s Scope) Contains(patientID string) bool {
	if s.All {
		return true
	}
	for _, id := range s.PatientIDs {
		if id == patientID {
			return true
		}
	}
	return false
}

func (s Scope) Empty() bool { return !s.All && len(s.PatientIDs) == 0 }

type Repository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id int64) (*Scan, error)
	// List returns one page of scans in scope, newest first, and the total
	// number in scope.
	List(ctx context.Context, scope Scope, limit, offset int) ([]*Scan, int, error)
}
