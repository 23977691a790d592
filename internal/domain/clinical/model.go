package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/equivet/equivet/internal/calendar"
)

// MedicalRecord is one entry in a patient's medical history.
type MedicalRecord struct {
	ID          uuid.UUID     `json:"id"`
	PatientID   uuid.UUID     `json:"patient_id"`
	Date        calendar.Date `json:"date"`
	Description string        `json:"description"`
	ImageURL    string        `json:"image_url"`
	CreatedAt   time.Time     `json:"created_at"`
}

const (
	PreventiveVaccine   = "vaccine"
	PreventiveDeworming = "deworming"
	PreventiveVitamin   = "vitamin"
	PreventiveOther     = "other"
)

// PreventiveMedicine records a vaccine, deworming or supplement applied to a
// patient, with the date the next dose is due.
type PreventiveMedicine struct {
	ID        uuid.UUID     `json:"id"`
	PatientID uuid.UUID     `json:"patient_id"`
	Type      string        `json:"type"`
	Product   string        `json:"product"`
	Date      calendar.Date `json:"date"`
	NextDose  calendar.Date `json:"next_dose"`
	Lot       string        `json:"lot"`
	ImageURL  string        `json:"image_url"`
	Notes     string        `json:"notes"`
	CreatedAt time.Time     `json:"created_at"`
}
