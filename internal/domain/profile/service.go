package profile

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/events"
)

// Registration is the self-service sign-up payload. Status is never taken
// from the caller.
type Registration struct {
	Email         string  `json:"email"`
	Role          Role    `json:"role"`
	Name          string  `json:"name"`
	Phone         *string `json:"phone"`
	DateOfBirth   *string `json:"dateOfBirth"`
	Gender        *string `json:"gender"`
	Address       *string `json:"address"`
	LicenseNumber *string `json:"licenseNumber"`
	Specialty     *string `json:"specialty"`
}

type Service struct {
	repo   Repository
	events events.Publisher
}

func NewService(repo Repository, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{repo: repo, events: pub}
}

// Register creates the profile for subject exactly once. identityEmail is
// the address the identity provider vouches for, if any.
func (s *Service) Register(ctx context.Context, subject, identityEmail string, in Registration) (*Profile, error) {
	if subject == "" {
		return nil, apperr.Unauthenticated(nil)
	}
	if in.Role == RoleAdmin {
		return nil, apperr.Forbidden("cannot self-assign admin role")
	}
	if in.Role != RolePatient && in.Role != RoleDoctor {
		return nil, apperr.Validation("role must be patient or doctor")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if len(name) > 200 {
		return nil, apperr.Validation("name must be at most 200 characters")
	}

	email, err := resolveEmail(identityEmail, in.Email)
	if err != nil {
		return nil, err
	}

	if in.DateOfBirth != nil && *in.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", *in.DateOfBirth)
		if err != nil {
			return nil, apperr.Validation("dateOfBirth must be YYYY-MM-DD")
		}
		if dob.After(time.Now()) {
			return nil, apperr.Validation("dateOfBirth cannot be in the future")
		}
	}

	p := &Profile{
		ID:          subject,
		Email:       email,
		Role:        in.Role,
		Status:      InitialStatus(in.Role),
		Name:        name,
		Phone:       trimmed(in.Phone),
		DateOfBirth: trimmed(in.DateOfBirth),
		Gender:      trimmed(in.Gender),
		Address:     trimmed(in.Address),
	}
	if in.Role == RoleDoctor {
		p.LicenseNumber = trimmed(in.LicenseNumber)
		p.Specialty = trimmed(in.Specialty)
	} else if trimmed(in.LicenseNumber) != nil || trimmed(in.Specialty) != nil {
		return nil, apperr.Validation("licenseNumber and specialty are only valid for doctors")
	}

	if err := s.repo.Create(ctx, p); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			return nil, apperr.Conflict("profile already exists")
		case errors.Is(err, ErrEmailTaken):
			return nil, apperr.Conflict("email already registered")
		default:
			return nil, apperr.Infrastructure("create profile", err)
		}
	}

	_ = s.events.Publish(ctx, events.New(events.TypeProfileRegistered, p.ID, map[string]any{
		"role":   p.Role,
		"status": p.Status,
	}))
	return p, nil
}

// CreateAdmin provisions an administrator. It is reachable only from the
// operator CLI, never from HTTP.
func (s *Service) CreateAdmin(ctx context.Context, subject, email, name string) (*Profile, error) {
	if subject == "" {
		return nil, apperr.Validation("id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("email is invalid")
	}

	p := &Profile{ID: subject, Email: email, Role: RoleAdmin, Status: StatusApproved, Name: strings.TrimSpace(name)}
	if err := s.repo.Create(ctx, p); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrEmailTaken):
			return nil, apperr.Conflict(err.Error())
		default:
			return nil, apperr.Infrastructure("create admin", err)
		}
	}
	return p, nil
}

// ApprovedDoctors lists the doctors a patient may choose, by name.
func (s *Service) ApprovedDoctors(ctx context.Context) ([]Summary, error) {
	doctors, err := s.repo.ListDoctors(ctx, StatusApproved)
	if err != nil {
		return nil, apperr.Infrastructure("list approved doctors", err)
	}
	out := make([]Summary, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, d.Summary())
	}
	return out, nil
}

func resolveEmail(identityEmail, given string) (string, error) {
	identityEmail = strings.TrimSpace(identityEmail)
	given = strings.TrimSpace(given)

	switch {
	case identityEmail != "" && given != "" && !strings.EqualFold(identityEmail, given):
		return "", apperr.Validation("email does not match the signed-in account")
	case identityEmail != "":
		return identityEmail, nil
	case given == "":
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(given); err != nil {
		return "", apperr.Validation("email is invalid")
	}
	return given, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
