// Package consultation serves the read-only view an owner opens from the
// QR code on a patient card: basic data, preventive medicine history and,
// for mares in foal, the live gestation reading.
package consultation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/clinical"
	"github.com/equivet/equivet/internal/domain/identity"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/gestation"
	"github.com/equivet/equivet/internal/platform/db"
)

// QRSize is the edge of the generated QR image in pixels.
const QRSize = 256

type Clinics interface {
	GetClinic(ctx context.Context) (*identity.ClinicProfile, error)
}

type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	GetPatientByCode(ctx context.Context, code string) (*patient.Patient, error)
}

type Preventive interface {
	PreventiveHistory(ctx context.Context, patientID uuid.UUID) ([]*clinical.PreventiveMedicine, error)
}

// BasicInfo is the public subset of a patient. Owner contact data is never
// exposed here.
type BasicInfo struct {
	Name        string        `json:"name"`
	PatientCode string        `json:"patient_code"`
	BirthDate   calendar.Date `json:"birth_date"`
	Sex         string        `json:"sex"`
	Color       string        `json:"color"`
	Breed       string        `json:"breed"`
	PhotoURL    string        `json:"photo_url,omitempty"`
}

type PregnancyView struct {
	IsPregnant     bool              `json:"is_pregnant"`
	ConceptionDate calendar.Date     `json:"conception_date"`
	UltrasoundDate calendar.Date     `json:"ultrasound_date"`
	Notes          string            `json:"notes"`
	Gestation      gestation.Reading `json:"gestation"`
}

type View struct {
	Clinic             *identity.ClinicProfile        `json:"clinic"`
	BasicInfo          BasicInfo                      `json:"basic_info"`
	Age                string                         `json:"age"`
	PreventiveMedicine []*clinical.PreventiveMedicine `json:"preventive_medicine"`
	Pregnancy          *PregnancyView                 `json:"pregnancy,omitempty"`
}

type Service struct {
	clinics    Clinics
	patients   Patients
	preventive Preventive
	calc       *gestation.Calculator
	baseURL    string
	logger     zerolog.Logger
}

func NewService(clinics Clinics, patients Patients, preventive Preventive, calc *gestation.Calculator, publicBaseURL string, logger zerolog.Logger) *Service {
	return &Service{
		clinics:    clinics,
		patients:   patients,
		preventive: preventive,
		calc:       calc,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
		logger:     logger,
	}
}

func (s *Service) Clinic(ctx context.Context) (*identity.ClinicProfile, error) {
	return s.clinics.GetClinic(ctx)
}

// View assembles the public consultation of the patient with code in the
// clinic of ctx.
func (s *Service) View(ctx context.Context, code string) (*View, error) {
	p, err := s.patients.GetPatientByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	clinic, err := s.clinics.GetClinic(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.preventive.PreventiveHistory(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("preventive history: %w", err)
	}
	if history == nil {
		history = []*clinical.PreventiveMedicine{}
	}

	now := s.calc.Now()
	v := &View{
		Clinic: clinic,
		BasicInfo: BasicInfo{
			Name:        p.Name,
			PatientCode: p.PatientCode,
			BirthDate:   p.BirthDate,
			Sex:         p.Sex,
			Color:       p.Color,
			Breed:       p.Breed,
			PhotoURL:    p.PhotoURL,
		},
		Age:                calendar.HumanAge(p.BirthDate.String(), now),
		PreventiveMedicine: history,
	}
	if p.Pregnancy.Active() {
		v.Pregnancy = &PregnancyView{
			IsPregnant:     true,
			ConceptionDate: p.Pregnancy.ConceptionDate,
			UltrasoundDate: p.Pregnancy.UltrasoundDate,
			Notes:          p.Pregnancy.Notes,
			Gestation:      s.calc.ComputeDate(p.Pregnancy.ConceptionDate),
		}
	}
	return v, nil
}

// ConsultationURL is the public address of a patient's consultation page.
func (s *Service) ConsultationURL(tenantID, code string) string {
	return s.baseURL + "/consulta/" + url.PathEscape(tenantID) + "/" + url.PathEscape(code)
}

// QRCode renders the consultation URL of patient id as a PNG.
func (s *Service) QRCode(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	p, err := s.patients.GetPatient(ctx, id)
	if err != nil {
		return nil, "", err
	}
	target := s.ConsultationURL(db.TenantFromContext(ctx), p.PatientCode)
	png, err := qrcode.Encode(target, qrcode.Medium, QRSize)
	if err != nil {
		return nil, "", fmt.Errorf("generate qr code: %w", err)
	}
	s.logger.Debug().Str("patient_id", id.String()).Str("url", target).Msg("consultation qr generated")
	return png, target, nil
}
