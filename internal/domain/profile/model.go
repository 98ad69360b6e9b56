package profile

import "time"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// InitialStatus is the status a new account starts in. Only doctors wait
// for review.
func InitialStatus(r Role) Status {
	if r == RoleDoctor {
		return StatusPending
	}
	return StatusApproved
}

// Profile is the application account layered over an identity-provider
// subject. Role never changes after creation.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	Name          string    `json:"name"`
	Phone         *string   `json:"phone,omitempty"`
	DateOfBirth   *string   `json:"dateOfBirth,omitempty"`
	Gender        *string   `json:"gender,omitempty"`
	Address       *string   `json:"address,omitempty"`
	LicenseNumber *string   `json:"licenseNumber,omitempty"`
	Specialty     *string   `json:"specialty,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p *Profile) IsDoctor() bool { return p.Role == RoleDoctor }

// IsApprovedDoctor reports whether p may act as a doctor.
func (p *Profile) IsApprovedDoctor() bool {
	return p.Role == RoleDoctor && p.Status == StatusApproved
}

// Summary is the public view of a doctor shown to patients choosing one.
type Summary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Specialty *string `json:"specialty,omitempty"`
}

func (p *Profile) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Email: p.Email, Specialty: p.Specialty}
}
