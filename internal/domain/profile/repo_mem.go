package profile

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is a Repository for development and tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	emails   map[string]string

	// seq keeps insertion order for oldest-first listings.
	seq  map[string]int
	next int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		profiles: make(map[string]*Profile),
		emails:   make(map[string]string),
		seq:      make(map[string]int),
	}
}

func (r *MemoryRepo) Create(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; ok {
		return ErrAlreadyExists
	}
	email := strings.ToLower(p.Email)
	if _, ok := r.emails[email]; ok {
		return ErrEmailTaken
	}

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.profiles[p.ID] = &cp
	r.emails[email] = p.ID
	r.next++
	r.seq[p.ID] = r.next
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepo) GetMany(_ context.Context, ids []string) ([]*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Profile
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListDoctors(_ context.Context, status Status) ([]*Profile, error) {
	r.mu.RLock()
	var out []*Profile
	for _, p := range r.profiles {
		if p.Role == RoleDoctor && p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	seq := make(map[string]int, len(out))
	for _, p := range out {
		seq[p.ID] = r.seq[p.ID]
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if status == StatusPending {
			return seq[out[i].ID] < seq[out[j].ID]
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) TransitionDoctorStatus(_ context.Context, id string, from, to Status) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok || p.Role != RoleDoctor {
		return nil, ErrNotFound
	}
	if p.Status != from {
		return nil, ErrStatusDecided
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}
