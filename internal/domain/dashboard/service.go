// Package dashboard aggregates the clinic overview: headline counts, the
// mares in foal ordered by progress, and this week's agenda.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/domain/scheduling"
	"github.com/equivet/equivet/internal/gestation"
)

type Patients interface {
	CountPatients(ctx context.Context) (int, error)
	ListPregnant(ctx context.Context) ([]*patient.Patient, error)
}

type Revenue interface {
	Revenue(ctx context.Context) (float64, error)
}

type Agenda interface {
	ThisWeek(ctx context.Context) ([]*scheduling.Appointment, error)
}

type Stats struct {
	TotalPatients      int     `json:"total_patients"`
	TotalRevenue       float64 `json:"total_revenue"`
	WeeklyAppointments int     `json:"weekly_appointments"`
}

// Pregnancy is one active pregnancy with its reading as of the request.
type Pregnancy struct {
	PatientID      uuid.UUID         `json:"patient_id"`
	PatientCode    string            `json:"patient_code"`
	Name           string            `json:"name"`
	ConceptionDate calendar.Date     `json:"conception_date"`
	EstimatedLabel string            `json:"estimated_due_date_label"`
	Gestation      gestation.Reading `json:"gestation"`
}

type Overview struct {
	Stats        Stats                     `json:"stats"`
	Pregnancies  []Pregnancy               `json:"pregnancies"`
	Appointments []*scheduling.Appointment `json:"appointments"`
}

type Service struct {
	patients Patients
	revenue  Revenue
	agenda   Agenda
	calc     *gestation.Calculator
	logger   zerolog.Logger
}

func NewService(patients Patients, revenue Revenue, agenda Agenda, calc *gestation.Calculator, logger zerolog.Logger) *Service {
	return &Service{patients: patients, revenue: revenue, agenda: agenda, calc: calc, logger: logger}
}

// Lookups run one after another: they share the request's tenant connection.

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	week, err := s.agenda.ThisWeek(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("weekly appointments: %w", err)
	}
	return s.stats(ctx, len(week))
}

func (s *Service) stats(ctx context.Context, weekly int) (Stats, error) {
	total, err := s.patients.CountPatients(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count patients: %w", err)
	}
	revenue, err := s.revenue.Revenue(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("revenue: %w", err)
	}
	return Stats{TotalPatients: total, TotalRevenue: revenue, WeeklyAppointments: weekly}, nil
}

// Pregnancies returns every active pregnancy, furthest along first. Equal
// percentages are ordered by name.
func (s *Service) Pregnancies(ctx context.Context) ([]Pregnancy, error) {
	patients, err := s.patients.ListPregnant(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pregnant: %w", err)
	}
	now := s.calc.Now()
	out := make([]Pregnancy, 0, len(patients))
	for _, p := range patients {
		if !p.Pregnancy.Active() {
			continue
		}
		r := s.calc.ComputeDate(p.Pregnancy.ConceptionDate)
		out = append(out, Pregnancy{
			PatientID:      p.ID,
			PatientCode:    p.PatientCode,
			Name:           p.Name,
			ConceptionDate: p.Pregnancy.ConceptionDate,
			EstimatedLabel: calendar.FormatLong(r.EstimatedDueDate, now),
			Gestation:      r,
		})
	}
	SortPregnancies(out)
	return out, nil
}

func SortPregnancies(items []Pregnancy) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Gestation.Percentage != items[j].Gestation.Percentage {
			return items[i].Gestation.Percentage > items[j].Gestation.Percentage
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	week, err := s.agenda.ThisWeek(ctx)
	if err != nil {
		return nil, fmt.Errorf("weekly appointments: %w", err)
	}
	if week == nil {
		week = []*scheduling.Appointment{}
	}
	stats, err := s.stats(ctx, len(week))
	if err != nil {
		return nil, err
	}
	preg, err := s.Pregnancies(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("pregnancies", len(preg)).Int("appointments", len(week)).Msg("dashboard overview")
	return &Overview{Stats: stats, Pregnancies: preg, Appointments: week}, nil
}
