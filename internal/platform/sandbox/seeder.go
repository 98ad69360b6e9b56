// Package sandbox generates synthetic accounts, assignments and scans for
// demo and development databases. Output is reproducible for a given seed.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/domain/scan"
)

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	DoctorCount        int    `json:"doctorCount"`
	PendingDoctorCount int    `json:"pendingDoctorCount"`
	PatientCount       int    `json:"patientCount"`
	ScansPerPatient    int    `json:"scansPerPatient"`
	Seed               uint64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		DoctorCount:        5,
		PendingDoctorCount: 2,
		PatientCount:       40,
		ScansPerPatient:    3,
	}
}

// SeedResult summarizes one run.
type SeedResult struct {
	Doctors        int           `json:"doctors"`
	PendingDoctors int           `json:"pendingDoctors"`
	Patients       int           `json:"patients"`
	Assignments    int           `json:"assignments"`
	Scans          int           `json:"scans"`
	Duration       time.Duration `json:"duration"`
}

var specialties = []string{
	"Retina", "Ophthalmology", "Endocrinology", "Optometry", "General Practice",
}

var severities = []scan.Severity{
	scan.SeverityNone, scan.SeverityMild, scan.SeverityModerate, scan.SeveritySevere,
}

// DataGenerator produces individual records from a seeded faker.
type DataGenerator struct {
	f *gofakeit.Faker
}

func NewDataGenerator(seed uint64) *DataGenerator {
	return &DataGenerator{f: gofakeit.New(seed)}
}

func (g *DataGenerator) optional(s string) *string { return &s }

// Doctor returns a doctor profile in the given status.
func (g *DataGenerator) Doctor(status profile.Status) *profile.Profile {
	name := g.f.Name()
	return &profile.Profile{
		ID:            g.f.UUID(),
		Email:         g.email(name),
		Role:          profile.RoleDoctor,
		Status:        status,
		Name:          "Dr. " + name,
		Phone:         g.optional(g.f.Phone()),
		LicenseNumber: g.optional(g.f.Numerify("LIC-######")),
		Specialty:     g.optional(g.f.RandomString(specialties)),
	}
}

func (g *DataGenerator) Patient() *profile.Profile {
	name := g.f.Name()
	dob := g.f.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC))
	return &profile.Profile{
		ID:          g.f.UUID(),
		Email:       g.email(name),
		Role:        profile.RolePatient,
		Status:      profile.StatusApproved,
		Name:        name,
		Phone:       g.optional(g.f.Phone()),
		DateOfBirth: g.optional(dob.Format("2006-01-02")),
		Gender:      g.optional(g.f.Gender()),
		Address:     g.optional(g.f.Address().Address),
	}
}

// Scan returns a stored-analysis record for patientID taken by doctorID
// within the last year.
func (g *DataGenerator) Scan(patientID, doctorID string) *scan.Scan {
	sev := severities[g.f.Number(0, len(severities)-1)]
	ref := g.f.UUID()
	now := time.Now().UTC()
	return &scan.Scan{
		PatientID:           patientID,
		CreatedBy:           doctorID,
		CapturedAt:          g.f.DateRange(now.AddDate(-1, 0, 0), now),
		OriginalImageRef:    ref,
		HeatmapImageRef:     ref,
		Diagnosis:           sev.Diagnosis(),
		Severity:            sev,
		Confidence:          g.f.Number(60, 99),
		ModelVersion:        "seed-v1",
		InferenceMode:       "seed",
		InferenceTimeMs:     g.f.Number(80, 900),
		PreprocessingMethod: "none",
		Metadata:            map[string]any{"seeded": true},
	}
}

// email keeps generated addresses unique across a run by tagging them with
// a random suffix.
func (g *DataGenerator) email(name string) string {
	local := strings.ToLower(strings.Join(strings.Fields(name), "."))
	return fmt.Sprintf("%s.%s@example.org", local, g.f.Numerify("####"))
}

// Stores are the repositories the seeder writes to. Pass transaction-bound
// contexts to Run to make a database run atomic.
type Stores struct {
	Profiles    profile.Repository
	Assignments assignment.Repository
	Scans       scan.Repository
}

type Seeder struct {
	cfg    SeedConfig
	gen    *DataGenerator
	stores Stores
}

func NewSeeder(cfg SeedConfig, stores Stores) *Seeder {
	return &Seeder{cfg: cfg, gen: NewDataGenerator(cfg.Seed), stores: stores}
}

// Run writes doctors, patients, one assignment per patient and that
// patient's scans. Every patient is assigned when at least one approved
// doctor is generated.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	res := &SeedResult{}

	doctors := make([]*profile.Profile, 0, s.cfg.DoctorCount)
	for i := 0; i < s.cfg.DoctorCount; i++ {
		d := s.gen.Doctor(profile.StatusApproved)
		if err := s.stores.Profiles.Create(ctx, d); err != nil {
			return nil, fmt.Errorf("create doctor: %w", err)
		}
		doctors = append(doctors, d)
		res.Doctors++
	}
	for i := 0; i < s.cfg.PendingDoctorCount; i++ {
		if err := s.stores.Profiles.Create(ctx, s.gen.Doctor(profile.StatusPending)); err != nil {
			return nil, fmt.Errorf("create pending doctor: %w", err)
		}
		res.PendingDoctors++
	}

	for i := 0; i < s.cfg.PatientCount; i++ {
		p := s.gen.Patient()
		if err := s.stores.Profiles.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		res.Patients++

		if len(doctors) == 0 {
			continue
		}
		doctor := doctors[s.gen.f.Number(0, len(doctors)-1)]
		if _, err := s.stores.Assignments.Replace(ctx, p.ID, doctor.ID); err != nil {
			return nil, fmt.Errorf("assign patient: %w", err)
		}
		res.Assignments++

		for j := 0; j < s.cfg.ScansPerPatient; j++ {
			if err := s.stores.Scans.Create(ctx, s.gen.Scan(p.ID, doctor.ID)); err != nil {
				return nil, fmt.Errorf("create scan: %w", err)
			}
			res.Scans++
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}
