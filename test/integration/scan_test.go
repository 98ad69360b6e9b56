//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/domain/scan"
	"github.com/retinacare/retina/internal/platform/db"
	"github.com/retinacare/retina/internal/platform/sandbox"
)

func newScan(patientID, doctorID string, at time.Time) *scan.Scan {
	return &scan.Scan{
		PatientID:           patientID,
		CreatedBy:           doctorID,
		CapturedAt:          at,
		OriginalImageRef:    "ref",
		HeatmapImageRef:     "ref",
		Diagnosis:           scan.SeverityMild.Diagnosis(),
		Severity:            scan.SeverityMild,
		Confidence:          90,
		ModelVersion:        "test",
		InferenceMode:       "test",
		PreprocessingMethod: "none",
		Metadata:            map[string]any{"k": "v"},
	}
}

func TestScanRepo_ScopedListing(t *testing.T) {
	ctx := context.Background()
	repo := scan.NewRepo(globalPool)
	doc := createProfile(t, ctx, profile.RoleDoctor, profile.StatusApproved)
	p1 := createProfile(t, ctx, profile.RolePatient, profile.StatusApproved)
	p2 := createProfile(t, ctx, profile.RolePatient, profile.StatusApproved)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	older := newScan(p1.ID, doc.ID, base)
	newer := newScan(p1.ID, doc.ID, base.Add(time.Minute))
	foreign := newScan(p2.ID, doc.ID, base)
	for _, s := range []*scan.Scan{older, newer, foreign} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, total, err := repo.List(ctx, scan.Scope{PatientIDs: []string{p1.ID}}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Fatalf("unexpected listing total=%d %+v", total, got)
	}
	if got[0].Metadata["k"] != "v" {
		t.Fatalf("metadata not round-tripped: %+v", got[0].Metadata)
	}

	got, total, err = repo.List(ctx, scan.Scope{}, 10, 0)
	if err != nil || total != 0 || len(got) != 0 {
		t.Fatalf("empty scope should match nothing: %d %v %v", total, got, err)
	}
}

func TestScanRepo_UnknownPatient(t *testing.T) {
	ctx := context.Background()
	doc := createProfile(t, ctx, profile.RoleDoctor, profile.StatusApproved)
	err := scan.NewRepo(globalPool).Create(ctx, newScan("no-such-patient", doc.ID, time.Now()))
	if !errors.Is(err, scan.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := scan.NewRepo(globalPool).GetByID(ctx, -1); !errors.Is(err, scan.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSeeder_RunsInOneTransaction(t *testing.T) {
	ctx := context.Background()
	stores := sandbox.Stores{
		Profiles:    profile.NewRepo(globalPool),
		Assignments: assignment.NewRepo(globalPool),
		Scans:       scan.NewRepo(globalPool),
	}
	cfg := sandbox.SeedConfig{DoctorCount: 2, PendingDoctorCount: 1, PatientCount: 5, ScansPerPatient: 2}

	var res *sandbox.SeedResult
	err := db.WithTx(ctx, globalPool, func(ctx context.Context) error {
		var err error
		res, err = sandbox.NewSeeder(cfg, stores).Run(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Assignments != 5 || res.Scans != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
}
