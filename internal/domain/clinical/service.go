package clinical

import (
	"context"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/db"
)

// Patients is the patient lookup the clinical service needs.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	records    MedicalRecordRepository
	preventive PreventiveRepository
	patients   Patients
	images     *blobstore.Images
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(rec MedicalRecordRepository, prev PreventiveRepository, patients Patients, images *blobstore.Images, now func() time.Time, logger zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{records: rec, preventive: prev, patients: patients, images: images, now: now, logger: logger}
}

// -- Medical History --

func (s *Service) CreateMedicalRecord(ctx context.Context, rec *MedicalRecord, image *multipart.FileHeader) error {
	if rec.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	rec.Description = strings.TrimSpace(rec.Description)
	if !rec.Date.Valid() {
		return apperr.Invalid("date is required")
	}
	if rec.Date.After(calendar.Today(s.now())) {
		return apperr.Invalid("date cannot be in the future")
	}
	if len([]rune(rec.Description)) < 5 {
		return apperr.Invalid("description must be at least 5 characters")
	}
	if _, err := s.patients.GetPatient(ctx, rec.PatientID); err != nil {
		return err
	}

	url, err := s.saveImage(ctx, "medical-history", image)
	if err != nil {
		return err
	}
	rec.ImageURL = url
	if err := s.records.Create(ctx, rec); err != nil {
		s.removeImage(ctx, url)
		return err
	}
	return nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, rec.ImageURL)
	return nil
}

// ListMedicalHistory returns a patient's records, most recent first.
func (s *Service) ListMedicalHistory(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.records.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.After(items[j].Date) })
	return items, total, nil
}

// -- Preventive Medicine --

var validPreventiveTypes = map[string]bool{
	PreventiveVaccine: true, PreventiveDeworming: true,
	PreventiveVitamin: true, PreventiveOther: true,
}

func (s *Service) CreatePreventive(ctx context.Context, p *PreventiveMedicine, image *multipart.FileHeader) error {
	if p.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Product = strings.TrimSpace(p.Product)
	p.Lot = strings.TrimSpace(p.Lot)
	p.Notes = strings.TrimSpace(p.Notes)
	if !validPreventiveTypes[p.Type] {
		return apperr.Invalid("invalid preventive medicine type: %s", p.Type)
	}
	if !p.Date.Valid() {
		return apperr.Invalid("date is required")
	}
	if p.Date.After(calendar.Today(s.now())) {
		return apperr.Invalid("date cannot be in the future")
	}
	if p.NextDose.Valid() && !p.NextDose.After(p.Date) {
		return apperr.Invalid("next_dose must be after date")
	}
	if _, err := s.patients.GetPatient(ctx, p.PatientID); err != nil {
		return err
	}

	url, err := s.saveImage(ctx, "preventive", image)
	if err != nil {
		return err
	}
	p.ImageURL = url
	if err := s.preventive.Create(ctx, p); err != nil {
		s.removeImage(ctx, url)
		return err
	}
	return nil
}

func (s *Service) GetPreventive(ctx context.Context, id uuid.UUID) (*PreventiveMedicine, error) {
	return s.preventive.GetByID(ctx, id)
}

func (s *Service) DeletePreventive(ctx context.Context, id uuid.UUID) error {
	p, err := s.preventive.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.preventive.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, p.ImageURL)
	return nil
}

// ListPreventive returns a page of a patient's preventive medicine, newest first.
func (s *Service) ListPreventive(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PreventiveMedicine, int, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.preventive.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	SortPreventive(items)
	return items, total, nil
}

// PreventiveHistory returns every preventive record of a patient, newest first.
func (s *Service) PreventiveHistory(ctx context.Context, patientID uuid.UUID) ([]*PreventiveMedicine, error) {
	items, err := s.preventive.ListAllByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	SortPreventive(items)
	return items, nil
}

// SortPreventive orders records by date, most recent first. Records on the
// same date keep the newest entry first.
func SortPreventive(items []*PreventiveMedicine) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Date.Compare(items[j].Date); c != 0 {
			return c > 0
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func (s *Service) saveImage(ctx context.Context, kind string, fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", nil
	}
	return s.images.SaveUpload(ctx, db.TenantFromContext(ctx), kind, fh)
}

func (s *Service) removeImage(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.images.Remove(ctx, url); err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("remove image failed")
	}
}
