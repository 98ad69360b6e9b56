package assignment

import (
	"time"

	"github.com/retinacare/retina/internal/domain/profile"
)

// Assignment is a patient's single current doctor.
type Assignment struct {
	PatientID  string    `json:"patientId"`
	DoctorID   string    `json:"doctorId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// PatientAssignment pairs a patient with when they chose the doctor.
type PatientAssignment struct {
	Patient    *profile.Profile `json:"patient"`
	AssignedAt time.Time        `json:"assignedAt"`
}
