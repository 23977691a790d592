// Package gestation computes live pregnancy progress for mares from a
// recorded conception date.
//
// A Reading is a pure function of (conception date, now). It is never stored;
// every caller recomputes it through the same Calculator so the dashboard, the
// patient detail and the public consultation always agree.
package gestation

import (
	"math"
	"strings"
	"time"

	"github.com/equivet/equivet/internal/calendar"
)

const (
	// TermDays is the full equine gestation length used as the percentage denominator.
	TermDays = 340
	// DueDateOffsetDays is the conception-to-delivery estimate used for the due date.
	DueDateOffsetDays = 330
)

// Reading is the derived gestation state for one patient at one instant.
type Reading struct {
	PregnancyDays    int    `json:"pregnancy_days"`
	Percentage       int    `json:"percentage"`
	EstimatedDueDate string `json:"estimated_due_date"`
	DaysUntilDue     int    `json:"days_until_due"`
	Stage            Stage  `json:"stage"`
}

// IsZero reports whether r is the empty reading produced for missing data.
func (r Reading) IsZero() bool {
	return r.PregnancyDays == 0 && r.Percentage == 0 && r.EstimatedDueDate == "" && r.DaysUntilDue == 0
}

// Compute derives the reading for conceptionDate relative to now. An empty
// or unparseable conception date yields the zero reading.
func Compute(conceptionDate string, now time.Time) Reading {
	if strings.TrimSpace(conceptionDate) == "" {
		return Reading{Stage: StageFor(0)}
	}
	return ComputeDate(calendar.Parse(conceptionDate, now), now)
}

// ComputeDate is Compute for an already-normalized conception date.
func ComputeDate(conception calendar.Date, now time.Time) Reading {
	if !conception.Valid() {
		return Reading{Stage: StageFor(0)}
	}

	today := calendar.Today(now)
	days := calendar.Days(conception, today)

	pct := 0
	if days > 0 {
		pct = int(math.Round(float64(days) / TermDays * 100))
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
	}

	due := conception.AddDays(DueDateOffsetDays)
	return Reading{
		PregnancyDays:    days,
		Percentage:       pct,
		EstimatedDueDate: due.String(),
		DaysUntilDue:     calendar.Days(today, due),
		Stage:            StageFor(pct),
	}
}

// Calculator binds Compute to a clock. The zero value uses time.Now.
type Calculator struct {
	now func() time.Time
}

// NewCalculator returns a Calculator reading the given clock; nil means time.Now.
func NewCalculator(clock func() time.Time) *Calculator {
	return &Calculator{now: clock}
}

// Now returns the calculator's current instant.
func (c *Calculator) Now() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Compute derives the reading at the calculator's current instant.
func (c *Calculator) Compute(conceptionDate string) Reading {
	return Compute(conceptionDate, c.Now())
}

// ComputeDate derives the reading for a normalized date at the current instant.
func (c *Calculator) ComputeDate(conception calendar.Date) Reading {
	return ComputeDate(conception, c.Now())
}
