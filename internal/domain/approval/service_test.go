package approval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/events"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *profile.MemoryRepo, *recordingPublisher) {
	t.Helper()
	repo := profile.NewMemoryRepo()
	for _, p := range []*profile.Profile{
		{ID: "first", Email: "first@x", Role: profile.RoleDoctor, Status: profile.StatusPending, Name: "Zed"},
		{ID: "second", Email: "second@x", Role: profile.RoleDoctor, Status: profile.StatusPending, Name: "Amy"},
		{ID: "approved", Email: "approved@x", Role: profile.RoleDoctor, Status: profile.StatusApproved, Name: "A"},
		{ID: "rejected", Email: "rejected@x", Role: profile.RoleDoctor, Status: profile.StatusRejected, Name: "R"},
		{ID: "patient", Email: "patient@x", Role: profile.RolePatient, Status: profile.StatusApproved, Name: "P"},
	} {
		if err := repo.Create(context.Background(), p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	pub := &recordingPublisher{}
	return NewService(repo, pub), repo, pub
}

func TestListPending_OldestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	got, err := svc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(got) != 2 || got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("expected [first second], got %v", ids(got))
	}
}

func TestApprove(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()

	p, err := svc.Approve(ctx, "first")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if p.Status != profile.StatusApproved {
		t.Errorf("expected approved, got %s", p.Status)
	}
	stored, _ := repo.GetByID(ctx, "first")
	if !stored.IsApprovedDoctor() {
		t.Error("approval not persisted")
	}
	pending, _ := svc.ListPending(ctx)
	if len(pending) != 1 {
		t.Errorf("expected one pending doctor left, got %v", ids(pending))
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeDoctorApproved {
		t.Errorf("unexpected events %+v", pub.events)
	}
}

func TestReject(t *testing.T) {
	svc, _, pub := newTestService(t)
	p, err := svc.Reject(context.Background(), "second")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if p.Status != profile.StatusRejected {
		t.Errorf("expected rejected, got %s", p.Status)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeDoctorRejected {
		t.Errorf("unexpected events %+v", pub.events)
	}
}

func TestSetStatus_Errors(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		status   profile.Status
		wantKind apperr.Kind
		wantMsg  string
	}{
		{"approved to rejected", "approved", profile.StatusRejected, apperr.KindConflict, "doctor already approved"},
		{"rejected to approved", "rejected", profile.StatusApproved, apperr.KindConflict, "doctor already rejected"},
		{"approve twice", "approved", profile.StatusApproved, apperr.KindConflict, "doctor already approved"},
		{"patient", "patient", profile.StatusApproved, apperr.KindNotFound, "doctor not found"},
		{"unknown", "ghost", profile.StatusApproved, apperr.KindNotFound, "doctor not found"},
		{"back to pending", "first", profile.StatusPending, apperr.KindValidation, ""},
		{"bogus status", "first", "banned", apperr.KindValidation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, pub := newTestService(t)
			before, _ := repo.GetByID(context.Background(), tt.id)

			_, err := svc.SetStatus(context.Background(), tt.id, tt.status)
			if apperr.KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %v", tt.wantMsg, err)
			}
			if before != nil {
				after, _ := repo.GetByID(context.Background(), tt.id)
				if after.Status != before.Status {
					t.Errorf("status changed from %s to %s", before.Status, after.Status)
				}
			}
			if len(pub.events) != 0 {
				t.Errorf("no event expected, got %+v", pub.events)
			}
		})
	}
}

type brokenStore struct{ DoctorStore }

func (brokenStore) TransitionDoctorStatus(context.Context, string, profile.Status, profile.Status) (*profile.Profile, error) {
	return nil, errors.New("deadlock detected")
}

func (brokenStore) ListDoctors(context.Context, profile.Status) ([]*profile.Profile, error) {
	return nil, errors.New("deadlock detected")
}

func TestSetStatus_StoreFailure(t *testing.T) {
	svc := NewService(brokenStore{}, nil)
	if _, err := svc.Approve(context.Background(), "first"); apperr.KindOf(err) != apperr.KindInfrastructure {
		t.Errorf("expected Infrastructure, got %v", err)
	}
	if _, err := svc.ListPending(context.Background()); apperr.KindOf(err) != apperr.KindInfrastructure {
		t.Errorf("expected Infrastructure, got %v", err)
	}
}

func ids(ps []*profile.Profile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
