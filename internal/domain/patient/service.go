package patient

import (
	"context"
	"mime/multipart"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/gestation"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/db"
	"github.com/equivet/equivet/internal/platform/events"
)

var (
	phonePattern = regexp.MustCompile(`^[0-9+\-\s()]+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

var validSexes = map[string]bool{SexMale: true, SexFemale: true}

type Service struct {
	patients Repository
	calc     *gestation.Calculator
	images   *blobstore.Images
	events   events.Publisher
	logger   zerolog.Logger
}

func NewService(repo Repository, calc *gestation.Calculator, images *blobstore.Images, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{patients: repo, calc: calc, images: images, events: pub, logger: logger}
}

func normalize(p *Patient) {
	p.PatientCode = strings.TrimSpace(p.PatientCode)
	p.Name = strings.TrimSpace(p.Name)
	p.Sex = strings.ToLower(strings.TrimSpace(p.Sex))
	p.Color = strings.TrimSpace(p.Color)
	p.Breed = strings.TrimSpace(p.Breed)
	p.Owner.Name = strings.TrimSpace(p.Owner.Name)
	p.Owner.Phone = strings.TrimSpace(p.Owner.Phone)
	p.Owner.Email = strings.TrimSpace(p.Owner.Email)
}

func (s *Service) validate(p *Patient) error {
	if len([]rune(p.Name)) < 2 {
		return apperr.Invalid("name must be at least 2 characters")
	}
	if len([]rune(p.PatientCode)) < 3 {
		return apperr.Invalid("patient_code must be at least 3 characters")
	}
	if !p.BirthDate.Valid() {
		return apperr.Invalid("birth_date is required")
	}
	if p.BirthDate.After(calendar.Today(s.calc.Now())) {
		return apperr.Invalid("birth_date cannot be in the future")
	}
	if !validSexes[p.Sex] {
		return apperr.Invalid("invalid sex: %s", p.Sex)
	}
	if len([]rune(p.Color)) < 2 {
		return apperr.Invalid("color must be at least 2 characters")
	}
	if len([]rune(p.Breed)) < 2 {
		return apperr.Invalid("breed must be at least 2 characters")
	}
	if len([]rune(p.Owner.Name)) < 2 {
		return apperr.Invalid("owner name must be at least 2 characters")
	}
	if !phonePattern.MatchString(p.Owner.Phone) {
		return apperr.Invalid("owner phone is invalid")
	}
	if !emailPattern.MatchString(p.Owner.Email) {
		return apperr.Invalid("owner email is invalid")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	normalize(p)
	if err := s.validate(p); err != nil {
		return err
	}
	preg, err := s.checkPregnancy(p.Sex, p.Pregnancy)
	if err != nil {
		return err
	}
	p.Pregnancy = preg
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByCode(ctx context.Context, code string) (*Patient, error) {
	return s.patients.GetByCode(ctx, strings.TrimSpace(code))
}

// GetDetail returns the patient with its age label and, while pregnant, the
// live gestation reading.
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(p), nil
}

func (s *Service) detail(p *Patient) *Detail {
	d := &Detail{Patient: p, Age: calendar.AgeLabel(p.BirthDate.String(), s.calc.Now())}
	if p.Pregnancy.Active() {
		r := s.calc.ComputeDate(p.Pregnancy.ConceptionDate)
		d.Gestation = &r
	}
	return d
}

// Gestation returns the live reading, or the zero reading when the patient is
// not pregnant.
func (s *Service) Gestation(ctx context.Context, id uuid.UUID) (gestation.Reading, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return gestation.Reading{}, err
	}
	if !p.Pregnancy.Active() {
		return s.calc.ComputeDate(calendar.Date{}), nil
	}
	return s.calc.ComputeDate(p.Pregnancy.ConceptionDate), nil
}

// UpdatePatient replaces the basic and owner data. Photo and pregnancy have
// their own operations.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	normalize(p)
	if err := s.validate(p); err != nil {
		return err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return err
	}
	stored, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// checkPregnancy applies the pregnancy record rules: clearing the flag clears
// every other field, setting it requires a conception date on a mare that is
// not in the future, and an ultrasound cannot precede conception.
func (s *Service) checkPregnancy(sex string, preg Pregnancy) (Pregnancy, error) {
	if !preg.IsPregnant {
		return Pregnancy{}, nil
	}
	if sex != SexFemale {
		return Pregnancy{}, apperr.Invalid("only mares can be marked pregnant")
	}
	if !preg.ConceptionDate.Valid() {
		return Pregnancy{}, apperr.Invalid("conception_date is required when is_pregnant is true")
	}
	if preg.ConceptionDate.After(calendar.Today(s.calc.Now())) {
		return Pregnancy{}, apperr.Invalid("conception_date cannot be in the future")
	}
	if preg.UltrasoundDate.Valid() && preg.UltrasoundDate.Before(preg.ConceptionDate) {
		return Pregnancy{}, apperr.Invalid("ultrasound_date cannot be before conception_date")
	}
	preg.Notes = strings.TrimSpace(preg.Notes)
	return preg, nil
}

type pregnancyEvent struct {
	PatientID        string `json:"patient_id"`
	PatientCode      string `json:"patient_code"`
	IsPregnant       bool   `json:"is_pregnant"`
	ConceptionDate   string `json:"conception_date,omitempty"`
	EstimatedDueDate string `json:"estimated_due_date,omitempty"`
}

// UpdatePregnancy stores a new pregnancy record and returns the updated detail.
func (s *Service) UpdatePregnancy(ctx context.Context, id uuid.UUID, preg Pregnancy) (*Detail, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	preg, err = s.checkPregnancy(p.Sex, preg)
	if err != nil {
		return nil, err
	}
	if err := s.patients.UpdatePregnancy(ctx, id, preg); err != nil {
		return nil, err
	}
	p.Pregnancy = preg

	d := s.detail(p)
	payload := pregnancyEvent{PatientID: p.ID.String(), PatientCode: p.PatientCode, IsPregnant: preg.IsPregnant}
	if d.Gestation != nil {
		payload.ConceptionDate = preg.ConceptionDate.String()
		payload.EstimatedDueDate = d.Gestation.EstimatedDueDate
	}
	s.publish(ctx, events.PregnancyUpdated, p.ID.String(), payload)
	return d, nil
}

// SetPhoto stores an uploaded image as the patient photo, replacing any
// previous one.
func (s *Service) SetPhoto(ctx context.Context, id uuid.UUID, fh *multipart.FileHeader) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	url, err := s.images.SaveUpload(ctx, db.TenantFromContext(ctx), "patients", fh)
	if err != nil {
		return nil, err
	}
	if err := s.patients.UpdatePhoto(ctx, id, url); err != nil {
		_ = s.images.Remove(ctx, url)
		return nil, err
	}
	s.removeImage(ctx, p.PhotoURL)
	p.PhotoURL = url
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.patients.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, p.PhotoURL)
	return nil
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, f, limit, offset)
}

// ListPregnant returns every patient with an active pregnancy record.
func (s *Service) ListPregnant(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListPregnant(ctx)
}

func (s *Service) CountPatients(ctx context.Context) (int, error) {
	return s.patients.Count(ctx)
}

func (s *Service) publish(ctx context.Context, eventType, resourceID string, payload any) {
	ev, err := events.New(eventType, db.TenantFromContext(ctx), resourceID, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("patient_id", resourceID).Msg("publish event failed")
	}
}

func (s *Service) removeImage(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.images.Remove(ctx, url); err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("remove image failed")
	}
}
