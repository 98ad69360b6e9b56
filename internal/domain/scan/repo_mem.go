package scan

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryRepo is a Repository for development and tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	scans  map[int64]*Scan
	nextID int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{scans: make(map[int64]*Scan)}
}

func (r *MemoryRepo) Create(_ context.Context, s *Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s.ID = r.nextID
	r.scans[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id int64) (*Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepo) List(_ context.Context, scope Scope, limit, offset int) ([]*Scan, int, error) {
	r.mu.RLock()
	var matched []*Scan
	for _, s := range r.scans {
		if scope.Contains(s.PatientID) {
			matched = append(matched, clone(s))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CapturedAt.Equal(matched[j].CapturedAt) {
			return matched[i].CapturedAt.After(matched[j].CapturedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(offset, total)
	end := min(start+limit, total)
	return append([]*Scan{}, matched[start:end]...), total, nil
}

func clone(s *Scan) *Scan {
	cp := *s
	cp.Metadata = maps.Clone(s.Metadata)
	return &cp
}
