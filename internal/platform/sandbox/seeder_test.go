package sandbox

import (
	"context"
	"testing"

	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/domain/scan"
)

func memoryStores() (Stores, *profile.MemoryRepo) {
	profiles := profile.NewMemoryRepo()
	return Stores{
		Profiles:    profiles,
		Assignments: assignment.NewMemoryRepo(profiles),
		Scans:       scan.NewMemoryRepo(),
	}, profiles
}

func TestDataGenerator_Reproducible(t *testing.T) {
	a := NewDataGenerator(7).Patient()
	b := NewDataGenerator(7).Patient()
	if a.ID != b.ID || a.Name != b.Name || a.Email != b.Email {
		t.Fatalf("same seed should produce the same patient: %+v vs %+v", a, b)
	}
}

func TestDataGenerator_Doctor(t *testing.T) {
	d := NewDataGenerator(1).Doctor(profile.StatusPending)
	if d.Role != profile.RoleDoctor || d.Status != profile.StatusPending {
		t.Fatalf("unexpected doctor %+v", d)
	}
	if d.LicenseNumber == nil || d.Specialty == nil {
		t.Fatal("doctor should carry license and specialty")
	}
}

func TestDataGenerator_ScanIsConsistent(t *testing.T) {
	g := NewDataGenerator(3)
	for i := 0; i < 50; i++ {
		s := g.Scan("p", "d")
		if !s.Severity.Valid() {
			t.Fatalf("invalid severity %q", s.Severity)
		}
		if s.Diagnosis != s.Severity.Diagnosis() {
			t.Fatalf("diagnosis %q does not match severity %q", s.Diagnosis, s.Severity)
		}
		if s.Confidence < 60 || s.Confidence > 99 {
			t.Fatalf("confidence out of range: %d", s.Confidence)
		}
		if s.HeatmapImageRef != s.OriginalImageRef {
			t.Fatal("heatmap should reuse the original ref")
		}
	}
}

func TestSeeder_Run(t *testing.T) {
	stores, profiles := memoryStores()
	cfg := SeedConfig{DoctorCount: 3, PendingDoctorCount: 2, PatientCount: 10, ScansPerPatient: 2, Seed: 42}

	res, err := NewSeeder(cfg, stores).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Doctors != 3 || res.PendingDoctors != 2 || res.Patients != 10 || res.Assignments != 10 || res.Scans != 20 {
		t.Fatalf("unexpected result %+v", res)
	}

	ctx := context.Background()
	pending, err := profiles.ListDoctors(ctx, profile.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending doctors, got %d", len(pending))
	}

	approved, err := profiles.ListDoctors(ctx, profile.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	assigned := 0
	for _, d := range approved {
		as, err := stores.Assignments.ListByDoctor(ctx, d.ID)
		if err != nil {
			t.Fatal(err)
		}
		assigned += len(as)
	}
	if assigned != 10 {
		t.Fatalf("expected every patient assigned, got %d", assigned)
	}

	_, total, err := stores.Scans.List(ctx, scan.Scope{All: true}, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 20 {
		t.Fatalf("expected 20 scans, got %d", total)
	}
}

func TestSeeder_NoApprovedDoctors(t *testing.T) {
	stores, _ := memoryStores()
	res, err := NewSeeder(SeedConfig{PatientCount: 4, ScansPerPatient: 3, Seed: 1}, stores).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Patients != 4 || res.Assignments != 0 || res.Scans != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}
