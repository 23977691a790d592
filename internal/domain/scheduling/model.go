package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled   = "scheduled"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

const (
	TypeCheckup     = "checkup"
	TypeEmergency   = "emergency"
	TypeVaccination = "vaccination"
	TypeUltrasound  = "ultrasound"
	TypeSurgery     = "surgery"
	TypeOther       = "other"
)

const (
	DefaultDurationMinutes = 30
	MaxDurationMinutes     = 8 * 60
)

// Appointment is a flat calendar entry for one patient. PatientName is filled
// on reads and ignored on writes.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PatientName     string    `json:"patient_name,omitempty"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	AssignedVet     string    `json:"assigned_vet"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// End returns when the appointment is expected to finish.
func (a *Appointment) End() time.Time {
	return a.Date.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type ListFilter struct {
	Status string
	Type   string
}
