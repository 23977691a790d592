package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/gestation"
)

const (
	SexMale   = "macho"
	SexFemale = "hembra"
)

type Owner struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Pregnancy is the conception record kept on the patient row. A zero
// ConceptionDate means there is no pregnancy to track.
type Pregnancy struct {
	IsPregnant     bool          `json:"is_pregnant"`
	ConceptionDate calendar.Date `json:"conception_date"`
	UltrasoundDate calendar.Date `json:"ultrasound_date"`
	Notes          string        `json:"notes"`
}

// Active reports whether there is a pregnancy with a usable conception date.
func (p Pregnancy) Active() bool {
	return p.IsPregnant && p.ConceptionDate.Valid()
}

type Patient struct {
	ID          uuid.UUID     `json:"id"`
	PatientCode string        `json:"patient_code"`
	Name        string        `json:"name"`
	Sex         string        `json:"sex"`
	Color       string        `json:"color"`
	Breed       string        `json:"breed"`
	BirthDate   calendar.Date `json:"birth_date"`
	PhotoURL    string        `json:"photo_url"`
	Owner       Owner         `json:"owner"`
	Pregnancy   Pregnancy     `json:"pregnancy"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Detail is a patient with the values derived at read time.
type Detail struct {
	*Patient
	Age       string             `json:"age"`
	Gestation *gestation.Reading `json:"gestation,omitempty"`
}

// ListFilter narrows List. Search matches name, patient code or owner name.
type ListFilter struct {
	Search   string
	Pregnant *bool
}
