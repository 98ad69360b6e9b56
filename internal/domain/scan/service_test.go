package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/blobstore"
	"github.com/retinacare/retina/pkg/pagination"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 64)...)

type fixture struct {
	svc      *Service
	registry *assignment.Registry
	profiles *profile.MemoryRepo
	repo     *MemoryRepo
	blobs    *blobstore.MemoryStore
	people   map[string]*profile.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	profiles := profile.NewMemoryRepo()
	people := map[string]*profile.Profile{}
	for _, p := range []*profile.Profile{
		{ID: "P1", Role: profile.RolePatient, Status: profile.StatusApproved},
		{ID: "P2", Role: profile.RolePatient, Status: profile.StatusApproved},
		{ID: "D1", Role: profile.RoleDoctor, Status: profile.StatusApproved},
		{ID: "D2", Role: profile.RoleDoctor, Status: profile.StatusApproved},
		{ID: "DP", Role: profile.RoleDoctor, Status: profile.StatusPending},
		{ID: "A", Role: profile.RoleAdmin, Status: profile.StatusApproved},
	} {
		p.Email, p.Name = p.ID+"@example.com", p.ID
		if err := profiles.Create(ctx, p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
		people[p.ID] = p
	}

	registry := assignment.NewRegistry(assignment.NewMemoryRepo(profiles), profiles, nil)
	repo := NewMemoryRepo()
	blobs := blobstore.NewMemoryStore(0)
	analyzer := NewStubAnalyzer(rand.New(rand.NewPCG(1, 2)))
	return &fixture{
		svc:      NewService(repo, registry, profiles, blobs, analyzer, nil),
		registry: registry,
		profiles: profiles,
		repo:     repo,
		blobs:    blobs,
		people:   people,
	}
}

func (f *fixture) assign(t *testing.T, patient, doctor string) {
	t.Helper()
	if _, err := f.registry.Assign(context.Background(), patient, doctor); err != nil {
		t.Fatalf("assign %s -> %s: %v", patient, doctor, err)
	}
}

func (f *fixture) create(t *testing.T, doctor, patient string) *Scan {
	t.Helper()
	sc, err := f.svc.Create(context.Background(), f.people[doctor], Input{
		PatientID:        patient,
		OriginalImageRef: "img-" + patient,
		Severity:         SeverityMild,
		Confidence:       90,
	})
	if err != nil {
		t.Fatalf("create scan for %s: %v", patient, err)
	}
	return sc
}

func (f *fixture) visibleIDs(t *testing.T, who string) map[int64]bool {
	t.Helper()
	scans, _, err := f.svc.ListVisible(context.Background(), f.people[who], pagination.Params{Limit: 100})
	if err != nil {
		t.Fatalf("ListVisible(%s): %v", who, err)
	}
	out := make(map[int64]bool, len(scans))
	for _, s := range scans {
		out[s.ID] = true
	}
	return out
}

func TestScenario_VisibilityFollowsCurrentAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.assign(t, "P1", "D1")
	doc, err := f.registry.GetDoctorFor(ctx, "P1")
	if err != nil || doc.ID != "D1" {
		t.Fatalf("expected D1, got %v %v", doc, err)
	}

	sc := f.create(t, "D1", "P1")
	if sc.PatientID != "P1" || sc.CreatedBy != "D1" {
		t.Fatalf("scan stamped wrong: %+v", sc)
	}
	if !f.visibleIDs(t, "P1")[sc.ID] || !f.visibleIDs(t, "D1")[sc.ID] {
		t.Fatal("scan should be visible to P1 and D1")
	}
	if f.visibleIDs(t, "D2")[sc.ID] {
		t.Fatal("scan should not be visible to D2")
	}

	f.assign(t, "P1", "D2")
	doc, _ = f.registry.GetDoctorFor(ctx, "P1")
	if doc.ID != "D2" {
		t.Fatalf("expected D2, got %s", doc.ID)
	}
	if f.visibleIDs(t, "D1")[sc.ID] {
		t.Error("scan still visible to former doctor D1")
	}
	if !f.visibleIDs(t, "D2")[sc.ID] {
		t.Error("scan not visible to new doctor D2")
	}
	if !f.visibleIDs(t, "P1")[sc.ID] {
		t.Error("scan not visible to its patient")
	}
}

func TestVisibilityPartition(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "P1", "D1")
	f.assign(t, "P2", "D1")
	s1 := f.create(t, "D1", "P1")
	s2 := f.create(t, "D1", "P2")
	f.assign(t, "P2", "D2")

	admin := f.visibleIDs(t, "A")
	for _, s := range []*Scan{s1, s2} {
		if !admin[s.ID] {
			t.Errorf("admin cannot see scan %d", s.ID)
		}
	}

	want := map[string]map[int64]bool{
		"P1": {s1.ID: true},
		"P2": {s2.ID: true},
		"D1": {s1.ID: true},
		"D2": {s2.ID: true},
	}
	for who, ids := range want {
		got := f.visibleIDs(t, who)
		if len(got) != len(ids) {
			t.Errorf("%s sees %v, want %v", who, got, ids)
			continue
		}
		for id := range ids {
			if !got[id] {
				t.Errorf("%s cannot see scan %d", who, id)
			}
		}
	}
}

func TestListVisible_DoctorWithoutPatients(t *testing.T) {
	f := newFixture(t)
	f.create(t, "D1", "P1")
	scans, total, err := f.svc.ListVisible(context.Background(), f.people["D2"], pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(scans) != 0 || total != 0 || scans == nil {
		t.Errorf("expected empty non-nil page, got %v total=%d", scans, total)
	}
}

func TestPendingDoctorGated(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "P1", "D1")
	sc := f.create(t, "D1", "P1")
	ctx := context.Background()
	pending := f.people["DP"]

	checks := map[string]error{}
	_, _, checks["list"] = f.svc.ListVisible(ctx, pending, pagination.Params{Limit: 10})
	_, checks["get"] = f.svc.GetVisible(ctx, pending, sc.ID)
	_, checks["create"] = f.svc.Create(ctx, pending, Input{PatientID: "P1", OriginalImageRef: "x", Severity: SeverityMild})
	_, checks["analyze"] = f.svc.Analyze(ctx, pending, "P1", "eye.png", bytes.NewReader(pngBytes))
	_, _, checks["patient"] = f.svc.ListForPatient(ctx, pending, "P1", pagination.Params{Limit: 10})

	for name, err := range checks {
		if apperr.KindOf(err) != apperr.KindForbidden {
			t.Errorf("%s: expected Forbidden, got %v", name, err)
		}
	}
	if f.blobs.Len() != 0 {
		t.Error("pending doctor upload was stored")
	}
}

func TestGetVisible_NotFoundUniformity(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "P1", "D1")
	sc := f.create(t, "D1", "P1")
	ctx := context.Background()

	_, hidden := f.svc.GetVisible(ctx, f.people["D2"], sc.ID)
	_, absent := f.svc.GetVisible(ctx, f.people["D2"], sc.ID+1000)
	_, other := f.svc.GetVisible(ctx, f.people["P2"], sc.ID)

	for name, err := range map[string]error{"hidden": hidden, "absent": absent, "other patient": other} {
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("%s: expected NotFound, got %v", name, err)
		}
		if err.Error() != absent.Error() {
			t.Errorf("%s: error %q differs from %q", name, err, absent)
		}
	}

	got, err := f.svc.GetVisible(ctx, f.people["A"], sc.ID)
	if err != nil || got.ID != sc.ID {
		t.Errorf("admin should see scan, got %v %v", got, err)
	}
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "P1", "D1")
	f.create(t, "D1", "P1")
	ctx := context.Background()

	tests := []struct {
		who      string
		patient  string
		wantKind apperr.Kind
	}{
		{"P1", "P1", apperr.KindUnknown},
		{"D1", "P1", apperr.KindUnknown},
		{"A", "P1", apperr.KindUnknown},
		{"P2", "P1", apperr.KindNotFound},
		{"D2", "P1", apperr.KindNotFound},
		{"A", "ghost", apperr.KindNotFound},
		{"A", "D1", apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.who+"->"+tt.patient, func(t *testing.T) {
			scans, total, err := f.svc.ListForPatient(ctx, f.people[tt.who], tt.patient, pagination.Params{Limit: 10})
			if tt.wantKind == apperr.KindUnknown {
				if err != nil || total != 1 || len(scans) != 1 {
					t.Fatalf("expected one scan, got %v total=%d err=%v", scans, total, err)
				}
				return
			}
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		who  string
		in   Input
		want apperr.Kind
	}{
		{"patient creating", "P1", Input{PatientID: "P1", OriginalImageRef: "x", Severity: SeverityMild}, apperr.KindForbidden},
		{"admin creating", "A", Input{PatientID: "P1", OriginalImageRef: "x", Severity: SeverityMild}, apperr.KindForbidden},
		{"missing patient", "D1", Input{OriginalImageRef: "x", Severity: SeverityMild}, apperr.KindValidation},
		{"unknown patient", "D1", Input{PatientID: "ghost", OriginalImageRef: "x", Severity: SeverityMild}, apperr.KindValidation},
		{"doctor as patient", "D1", Input{PatientID: "D2", OriginalImageRef: "x", Severity: SeverityMild}, apperr.KindValidation},
		{"missing image", "D1", Input{PatientID: "P1", Severity: SeverityMild}, apperr.KindValidation},
		{"bad severity", "D1", Input{PatientID: "P1", OriginalImageRef: "x", Severity: "catastrophic"}, apperr.KindValidation},
		{"confidence high", "D1", Input{PatientID: "P1", OriginalImageRef: "x", Severity: SeverityMild, Confidence: 101}, apperr.KindValidation},
		{"confidence low", "D1", Input{PatientID: "P1", OriginalImageRef: "x", Severity: SeverityMild, Confidence: -1}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.people[tt.who], tt.in)
			if apperr.KindOf(err) != tt.want {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	captured := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sc, err := f.svc.Create(context.Background(), f.people["D1"], Input{
		PatientID:        " P1 ",
		CapturedAt:       &captured,
		OriginalImageRef: "orig",
		Severity:         SeveritySevere,
		Confidence:       70,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sc.PatientID != "P1" || sc.HeatmapImageRef != "orig" || sc.Diagnosis != "Severe DR" {
		t.Errorf("defaults not applied: %+v", sc)
	}
	if !sc.CapturedAt.Equal(captured) {
		t.Errorf("expected captured %v, got %v", captured, sc.CapturedAt)
	}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "P1", "D1")
	ctx := context.Background()

	sc, err := f.svc.Analyze(ctx, f.people["D1"], "P1", "fundus.png", bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sc.PatientID != "P1" || sc.CreatedBy != "D1" {
		t.Errorf("wrong owner: %+v", sc)
	}
	if sc.Severity.Rank() < 1 || sc.Confidence < 80 || sc.Confidence > 99 {
		t.Errorf("stub output out of range: %+v", sc)
	}
	if sc.ModelVersion != "stub-v1" || sc.InferenceMode != "stub" || sc.HeatmapImageRef != sc.OriginalImageRef {
		t.Errorf("unexpected stub fields: %+v", sc)
	}
	if sc.Metadata["uploadedBy"] != "D1" || sc.Metadata["fileName"] != "fundus.png" {
		t.Errorf("unexpected metadata %v", sc.Metadata)
	}

	for _, kind := range []ImageKind{ImageOriginal, ImageHeatmap} {
		rc, meta, err := f.svc.OpenImage(ctx, f.people["P1"], sc.ID, kind)
		if err != nil {
			t.Fatalf("OpenImage(%s): %v", kind, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(data, pngBytes) || meta.ContentType != "image/png" {
			t.Errorf("%s: unexpected image", kind)
		}
	}

	if _, _, err := f.svc.OpenImage(ctx, f.people["D2"], sc.ID, ImageOriginal); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected NotFound for unrelated doctor, got %v", err)
	}
	if _, _, err := f.svc.OpenImage(ctx, f.people["P1"], sc.ID, "thumbnail"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected Validation for bad kind, got %v", err)
	}
}

func TestAnalyze_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		patient string
		file    string
		content []byte
	}{
		{"no patient", "", "eye.png", pngBytes},
		{"unknown patient", "ghost", "eye.png", pngBytes},
		{"not an image", "P1", "notes.txt", []byte("hello there")},
		{"empty", "P1", "eye.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Analyze(ctx, f.people["D1"], tt.patient, tt.file, bytes.NewReader(tt.content))
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected Validation, got %v", err)
			}
		})
	}
	if f.blobs.Len() != 0 {
		t.Errorf("rejected uploads left %d blobs", f.blobs.Len())
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, blobstore.Metadata) (*Result, error) {
	return nil, errors.New("model server down")
}

func TestAnalyze_AnalyzerFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.svc.analyzer = failingAnalyzer{}

	_, err := f.svc.Analyze(context.Background(), f.people["D1"], "P1", "eye.png", bytes.NewReader(pngBytes))
	if apperr.KindOf(err) != apperr.KindInfrastructure {
		t.Fatalf("expected Infrastructure, got %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Error("blob kept after failed analysis")
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if _, err := f.svc.Create(ctx, f.people["D1"], Input{
			PatientID: "P1", OriginalImageRef: "x", Severity: SeverityNone, CapturedAt: &at,
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.svc.Recent(ctx, f.people["P1"], 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CapturedAt.After(got[i-1].CapturedAt) {
			t.Errorf("not newest first at %d", i)
		}
	}
}

func TestStubAnalyzer_Range(t *testing.T) {
	a := NewStubAnalyzer(rand.New(rand.NewPCG(42, 42)))
	seen := map[Severity]bool{}
	for i := 0; i < 200; i++ {
		res, err := a.Analyze(context.Background(), blobstore.Metadata{Ref: "r"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Confidence < 80 || res.Confidence > 99 {
			t.Fatalf("confidence %d out of range", res.Confidence)
		}
		if res.Severity == SeverityNone || !res.Severity.Valid() {
			t.Fatalf("unexpected severity %q", res.Severity)
		}
		if res.Diagnosis != res.Severity.Diagnosis() || res.HeatmapRef != "r" {
			t.Fatalf("inconsistent result %+v", res)
		}
		seen[res.Severity] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all three severities, saw %v", seen)
	}
}

func TestStubAnalyzer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStubAnalyzer(nil).Analyze(ctx, blobstore.Metadata{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSeverity_Rank(t *testing.T) {
	if !(SeverityNone.Rank() < SeverityMild.Rank() &&
		SeverityMild.Rank() < SeverityModerate.Rank() &&
		SeverityModerate.Rank() < SeveritySevere.Rank()) {
		t.Error("severities out of order")
	}
	if Severity("bogus").Rank() != -1 || Severity("bogus").Valid() {
		t.Error("unknown severity should rank -1")
	}
}
