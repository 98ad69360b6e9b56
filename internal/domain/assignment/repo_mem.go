package assignment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/retinacare/retina/internal/domain/profile"
)

type memEntry struct {
	a   Assignment
	seq int
}

// MemoryRepo is a Repository for development and tests. Replace runs under
// a single lock, so readers see either the old or the new doctor.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]memEntry
	next     int
	profiles ProfileStore
}

func NewMemoryRepo(profiles ProfileStore) *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]memEntry), profiles: profiles}
}

func (r *MemoryRepo) Replace(ctx context.Context, patientID, doctorID string) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.profiles.GetByID(ctx, doctorID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, ErrDoctorNotEligible
	}
	if err != nil {
		return nil, err
	}
	if !d.IsApprovedDoctor() {
		return nil, ErrDoctorNotEligible
	}

	r.next++
	e := memEntry{
		a:   Assignment{PatientID: patientID, DoctorID: doctorID, AssignedAt: time.Now().UTC()},
		seq: r.next,
	}
	r.byID[patientID] = e
	out := e.a
	return &out, nil
}

func (r *MemoryRepo) GetByPatient(_ context.Context, patientID string) (*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	out := e.a
	return &out, nil
}

func (r *MemoryRepo) ListByDoctor(_ context.Context, doctorID string) ([]*Assignment, error) {
	r.mu.RLock()
	var entries []memEntry
	for _, e := range r.byID {
		if e.a.DoctorID == doctorID {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	out := make([]*Assignment, 0, len(entries))
	for _, e := range entries {
		a := e.a
		out = append(out, &a)
	}
	return out, nil
}
