package scan

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/blobstore"
	"github.com/retinacare/retina/internal/platform/events"
	"github.com/retinacare/retina/pkg/pagination"
)

// Assignments is what visibility needs from the assignment registry.
type Assignments interface {
	PatientIDsFor(ctx context.Context, doctorID string) ([]string, error)
	IsAssigned(ctx context.Context, patientID, doctorID string) (bool, error)
}

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
}

const (
	scanNotFound    = "scan not found"
	patientNotFound = "patient not found"
)

// Service applies row-level visibility to scan records: patients see their
// own, doctors see their current patients', admins see all. Visibility is
// computed on every read from the current assignment.
type Service struct {
	repo        Repository
	assignments Assignments
	profiles    ProfileReader
	blobs       blobstore.Store
	analyzer    Analyzer
	events      events.Publisher
}

func NewService(repo Repository, assignments Assignments, profiles ProfileReader, blobs blobstore.Store, analyzer Analyzer, pub events.Publisher) *Service {
	if analyzer == nil {
		analyzer = NewStubAnalyzer(nil)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:        repo,
		assignments: assignments,
		profiles:    profiles,
		blobs:       blobs,
		analyzer:    analyzer,
		events:      pub,
	}
}

func (s *Service) scope(ctx context.Context, requester *profile.Profile) (Scope, error) {
	switch requester.Role {
	case profile.RolePatient:
		return Scope{PatientIDs: []string{requester.ID}}, nil
	case profile.RoleAdmin:
		return Scope{All: true}, nil
	case profile.RoleDoctor:
		if err := authz.RequireApproved()(requester); err != nil {
			return Scope{}, err
		}
		ids, err := s.assignments.PatientIDsFor(ctx, requester.ID)
		if err != nil {
			return Scope{}, apperr.Infrastructure("load assignments", err)
		}
		return Scope{PatientIDs: ids}, nil
	}
	return Scope{}, apperr.Forbidden("invalid account role")
}

// ListVisible returns one page of the scans the requester may see, newest
// first, with the total count.
func (s *Service) ListVisible(ctx context.Context, requester *profile.Profile, page pagination.Params) ([]*Scan, int, error) {
	scope, err := s.scope(ctx, requester)
	if err != nil {
		return nil, 0, err
	}
	scans, total, err := s.repo.List(ctx, scope, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, apperr.Infrastructure("list scans", err)
	}
	return scans, total, nil
}

// Recent returns the newest visible scans.
func (s *Service) Recent(ctx context.Context, requester *profile.Profile, limit int) ([]*Scan, error) {
	scans, _, err := s.ListVisible(ctx, requester, pagination.Params{Limit: limit})
	return scans, err
}

// GetVisible returns the scan if the requester may see it. Absent and
// hidden scans produce the same error.
func (s *Service) GetVisible(ctx context.Context, requester *profile.Profile, id int64) (*Scan, error) {
	scope, err := s.scope(ctx, requester)
	if err != nil {
		return nil, err
	}
	sc, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound(scanNotFound)
	}
	if err != nil {
		return nil, apperr.Infrastructure("get scan", err)
	}
	if !scope.Contains(sc.PatientID) {
		return nil, apperr.NotFound(scanNotFound)
	}
	return sc, nil
}

// ListForPatient lists one patient's scans for the patient, their current
// doctor, or an admin. Everyone else is told the patient does not exist.
func (s *Service) ListForPatient(ctx context.Context, requester *profile.Profile, patientID string, page pagination.Params) ([]*Scan, int, error) {
	allowed, err := s.canSeePatient(ctx, requester, patientID)
	if err != nil {
		return nil, 0, err
	}
	if !allowed {
		return nil, 0, apperr.NotFound(patientNotFound)
	}
	scans, total, err := s.repo.List(ctx, Scope{PatientIDs: []string{patientID}}, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, apperr.Infrastructure("list patient scans", err)
	}
	return scans, total, nil
}

func (s *Service) canSeePatient(ctx context.Context, requester *profile.Profile, patientID string) (bool, error) {
	switch requester.Role {
	case profile.RolePatient:
		return requester.ID == patientID, nil
	case profile.RoleDoctor:
		if err := authz.RequireApproved()(requester); err != nil {
			return false, err
		}
		ok, err := s.assignments.IsAssigned(ctx, patientID, requester.ID)
		if err != nil {
			return false, apperr.Infrastructure("load assignment", err)
		}
		return ok, nil
	case profile.RoleAdmin:
		p, err := s.profiles.GetByID(ctx, patientID)
		if errors.Is(err, profile.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, apperr.Infrastructure("load patient", err)
		}
		return p.Role == profile.RolePatient, nil
	}
	return false, apperr.Forbidden("invalid account role")
}

// Create stores a scan for input.PatientID on behalf of an approved doctor.
func (s *Service) Create(ctx context.Context, requester *profile.Profile, in Input) (*Scan, error) {
	if err := s.requireApprovedDoctor(requester); err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	if err := s.requirePatient(ctx, in.PatientID); err != nil {
		return nil, err
	}

	sc := &Scan{
		PatientID:           in.PatientID,
		CreatedBy:           requester.ID,
		CapturedAt:          time.Now().UTC(),
		OriginalImageRef:    in.OriginalImageRef,
		HeatmapImageRef:     in.HeatmapImageRef,
		Diagnosis:           in.Diagnosis,
		Severity:            in.Severity,
		Confidence:          in.Confidence,
		ModelVersion:        in.ModelVersion,
		InferenceMode:       in.InferenceMode,
		InferenceTimeMs:     in.InferenceTimeMs,
		PreprocessingMethod: in.PreprocessingMethod,
		Metadata:            in.Metadata,
	}
	if in.CapturedAt != nil {
		sc.CapturedAt = in.CapturedAt.UTC()
	}

	err := s.repo.Create(ctx, sc)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, apperr.Validation("patientId must reference a patient")
	}
	if err != nil {
		return nil, apperr.Infrastructure("create scan", err)
	}

	_ = s.events.Publish(ctx, events.New(events.TypeScanCreated, sc.PatientID, map[string]any{
		"scanId":    sc.ID,
		"createdBy": sc.CreatedBy,
		"severity":  sc.Severity,
	}))
	return sc, nil
}

// Analyze stores an uploaded image, runs the analyzer on it and records the
// result as a new scan for patientID.
func (s *Service) Analyze(ctx context.Context, requester *profile.Profile, patientID, fileName string, image io.Reader) (*Scan, error) {
	if err := s.requireApprovedDoctor(requester); err != nil {
		return nil, err
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, apperr.Validation("patientId is required")
	}
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Put(ctx, blobstore.Metadata{FileName: fileName, CreatedBy: requester.ID}, image)
	if err != nil {
		return nil, blobError(err)
	}

	res, err := s.analyzer.Analyze(ctx, *meta)
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), meta.Ref)
		return nil, apperr.Infrastructure("analyze image", err)
	}

	sc, err := s.Create(ctx, requester, Input{
		PatientID:           patientID,
		OriginalImageRef:    meta.Ref,
		HeatmapImageRef:     res.HeatmapRef,
		Diagnosis:           res.Diagnosis,
		Severity:            res.Severity,
		Confidence:          res.Confidence,
		ModelVersion:        res.ModelVersion,
		InferenceMode:       res.InferenceMode,
		InferenceTimeMs:     int(res.InferenceTime.Milliseconds()),
		PreprocessingMethod: res.PreprocessingMethod,
		Metadata: map[string]any{
			"uploadedBy": requester.ID,
			"fileName":   meta.FileName,
		},
	})
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), meta.Ref)
		return nil, err
	}
	return sc, nil
}

// OpenImage streams one image of a visible scan. The caller closes the reader.
func (s *Service) OpenImage(ctx context.Context, requester *profile.Profile, id int64, kind ImageKind) (io.ReadCloser, *blobstore.Metadata, error) {
	sc, err := s.GetVisible(ctx, requester, id)
	if err != nil {
		return nil, nil, err
	}

	var ref string
	switch kind {
	case ImageOriginal:
		ref = sc.OriginalImageRef
	case ImageHeatmap:
		ref = sc.HeatmapImageRef
	default:
		return nil, nil, apperr.Validation("image kind must be original or heatmap")
	}

	rc, meta, err := s.blobs.Open(ctx, ref)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("image not found")
	}
	if err != nil {
		return nil, nil, apperr.Infrastructure("open image", err)
	}
	return rc, meta, nil
}

func (s *Service) requireApprovedDoctor(p *profile.Profile) error {
	if err := authz.RequireRole(profile.RoleDoctor)(p); err != nil {
		return err
	}
	return authz.RequireApproved()(p)
}

func (s *Service) requirePatient(ctx context.Context, patientID string) error {
	p, err := s.profiles.GetByID(ctx, patientID)
	if errors.Is(err, profile.ErrNotFound) || (err == nil && p.Role != profile.RolePatient) {
		return apperr.Validation("patientId must reference a patient")
	}
	if err != nil {
		return apperr.Infrastructure("load patient", err)
	}
	return nil
}

func validateInput(in *Input) error {
	in.PatientID = strings.TrimSpace(in.PatientID)
	switch {
	case in.PatientID == "":
		return apperr.Validation("patientId is required")
	case in.OriginalImageRef == "":
		return apperr.Validation("originalImageRef is required")
	case !in.Severity.Valid():
		return apperr.Validation("severity must be one of none, mild, moderate, severe")
	case in.Confidence < 0 || in.Confidence > 100:
		return apperr.Validation("confidence must be between 0 and 100")
	case in.InferenceTimeMs < 0:
		return apperr.Validation("inferenceTime cannot be negative")
	}
	if in.HeatmapImageRef == "" {
		in.HeatmapImageRef = in.OriginalImageRef
	}
	if in.Diagnosis == "" {
		in.Diagnosis = in.Severity.Diagnosis()
	}
	if in.ModelVersion == "" {
		in.ModelVersion = "unknown"
	}
	if in.InferenceMode == "" {
		in.InferenceMode = "external"
	}
	if in.PreprocessingMethod == "" {
		in.PreprocessingMethod = "none"
	}
	return nil
}

func blobError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrMissingFileName),
		errors.Is(err, blobstore.ErrEmptyFile):
		return apperr.Validation("%s", err.Error())
	}
	return apperr.Infrastructure("store image", err)
}
