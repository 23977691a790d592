package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
	"github.com/equivet/equivet/internal/platform/events"
)

// Patients is the patient lookup appointments are checked against.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	appointments AppointmentRepository
	patients     Patients
	events       events.Publisher
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(appt AppointmentRepository, patients Patients, pub events.Publisher, now func() time.Time, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{appointments: appt, patients: patients, events: pub, now: now, logger: logger}
}

var validAppointmentStatuses = map[string]bool{
	StatusScheduled: true, StatusCompleted: true,
	StatusCancelled: true, StatusRescheduled: true,
}

var validAppointmentTypes = map[string]bool{
	TypeCheckup: true, TypeEmergency: true, TypeVaccination: true,
	TypeUltrasound: true, TypeSurgery: true, TypeOther: true,
}

func ValidStatus(status string) bool { return validAppointmentStatuses[status] }

func ValidType(t string) bool { return validAppointmentTypes[t] }

func (s *Service) prepare(ctx context.Context, a *Appointment) (*patient.Patient, error) {
	a.Description = strings.TrimSpace(a.Description)
	a.AssignedVet = strings.TrimSpace(a.AssignedVet)
	a.Notes = strings.TrimSpace(a.Notes)
	if a.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id is required")
	}
	if a.Date.IsZero() {
		return nil, apperr.Invalid("date is required")
	}
	if a.Type == "" {
		a.Type = TypeCheckup
	}
	if !validAppointmentTypes[a.Type] {
		return nil, apperr.Invalid("invalid appointment type: %s", a.Type)
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !validAppointmentStatuses[a.Status] {
		return nil, apperr.Invalid("invalid appointment status: %s", a.Status)
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDurationMinutes
	}
	if a.DurationMinutes < 0 || a.DurationMinutes > MaxDurationMinutes {
		return nil, apperr.Invalid("duration_minutes must be between 1 and %d", MaxDurationMinutes)
	}
	return s.patients.GetPatient(ctx, a.PatientID)
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	p, err := s.prepare(ctx, a)
	if err != nil {
		return err
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}
	a.PatientName = p.Name
	s.publish(ctx, events.AppointmentScheduled, a)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// UpdateAppointment replaces an appointment. Moving to cancelled publishes a
// cancellation; any other change publishes an update.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	prev, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	p, err := s.prepare(ctx, a)
	if err != nil {
		return err
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return err
	}
	a.PatientName = p.Name
	a.CreatedAt = prev.CreatedAt

	eventType := events.AppointmentUpdated
	if a.Status == StatusCancelled && prev.Status != StatusCancelled {
		eventType = events.AppointmentCancelled
	}
	s.publish(ctx, eventType, a)
	return nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}
	if a.Status != StatusCancelled && a.Status != StatusCompleted {
		s.publish(ctx, events.AppointmentCancelled, a)
	}
	return nil
}

func (s *Service) ListAppointments(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validAppointmentStatuses[f.Status] {
		return nil, 0, apperr.Invalid("invalid appointment status: %s", f.Status)
	}
	if f.Type != "" && !validAppointmentTypes[f.Type] {
		return nil, 0, apperr.Invalid("invalid appointment type: %s", f.Type)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// ListRange returns appointments starting in [start, end).
func (s *Service) ListRange(ctx context.Context, start, end time.Time) ([]*Appointment, error) {
	if !end.After(start) {
		return nil, apperr.Invalid("end must be after start")
	}
	return s.appointments.ListRange(ctx, start, end)
}

// ThisWeek returns the appointments of the current Sunday-start week.
func (s *Service) ThisWeek(ctx context.Context) ([]*Appointment, error) {
	start, end := WeekOf(s.now())
	return s.appointments.ListRange(ctx, start, end)
}

// WeekOf returns the bounds of the Sunday-start week containing t, in t's
// location: midnight Sunday inclusive to the next midnight Sunday exclusive.
func WeekOf(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 7)
}

type appointmentEvent struct {
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name,omitempty"`
	Date            time.Time `json:"date"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	ev, err := events.New(eventType, db.TenantFromContext(ctx), a.ID.String(), appointmentEvent{
		PatientID:       a.PatientID.String(),
		PatientName:     a.PatientName,
		Date:            a.Date,
		Type:            a.Type,
		Status:          a.Status,
		DurationMinutes: a.DurationMinutes,
	})
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("appointment_id", a.ID.String()).Msg("publish event failed")
	}
}
