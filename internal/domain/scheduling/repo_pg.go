package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const apptCols = `a.id, a.patient_id, p.name, a.date, a.description, a.type, a.status,
	a.assigned_vet, a.duration_minutes, a.notes, a.created_at, a.updated_at`

const apptFrom = ` FROM appointments a JOIN patients p ON p.id = a.patient_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Date, &a.Description, &a.Type, &a.Status,
		&a.AssignedVet, &a.DurationMinutes, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, date, description, type, status,
			assigned_vet, duration_minutes, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.Date, a.Description, a.Type, a.Status,
		a.AssignedVet, a.DurationMinutes, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id=$2, date=$3, description=$4, type=$5, status=$6,
			assigned_vet=$7, duration_minutes=$8, notes=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.Date, a.Description, a.Type, a.Status,
		a.AssignedVet, a.DurationMinutes, a.Notes,
	).Scan(&a.UpdatedAt)
	if db.IsNotFound(err) {
		return apperr.NotFound("appointment")
	}
	return err
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Type != "" {
		where = append(where, fmt.Sprintf("a.type = $%d", idx))
		args = append(args, f.Type)
		idx++
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + apptCols + apptFrom + clause +
		fmt.Sprintf(` ORDER BY a.date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.collect(ctx, query, args...)
	return items, total, err
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.patient_id = $1
		ORDER BY a.date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	return items, total, err
}

func (r *appointmentRepoPG) ListRange(ctx context.Context, start, end time.Time) ([]*Appointment, error) {
	return r.collect(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.date >= $1 AND a.date < $2
		ORDER BY a.date`, start, end)
}

func (r *appointmentRepoPG) collect(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
