package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const patientCols = `id, patient_code, name, sex, color, breed, birth_date, photo_url,
	owner_name, owner_phone, owner_email,
	is_pregnant, conception_date, ultrasound_date, pregnancy_notes,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientCode, &p.Name, &p.Sex, &p.Color, &p.Breed, &p.BirthDate, &p.PhotoURL,
		&p.Owner.Name, &p.Owner.Phone, &p.Owner.Email,
		&p.Pregnancy.IsPregnant, &p.Pregnancy.ConceptionDate, &p.Pregnancy.UltrasoundDate, &p.Pregnancy.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, patient_code, name, sex, color, breed, birth_date, photo_url,
			owner_name, owner_phone, owner_email,
			is_pregnant, conception_date, ultrasound_date, pregnancy_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientCode, p.Name, p.Sex, p.Color, p.Breed, p.BirthDate, p.PhotoURL,
		p.Owner.Name, p.Owner.Phone, p.Owner.Email,
		p.Pregnancy.IsPregnant, p.Pregnancy.ConceptionDate, p.Pregnancy.UltrasoundDate, p.Pregnancy.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("patient code %s already exists", p.PatientCode)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_code = $1`, code))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET patient_code=$2, name=$3, sex=$4, color=$5, breed=$6, birth_date=$7,
			owner_name=$8, owner_phone=$9, owner_email=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.PatientCode, p.Name, p.Sex, p.Color, p.Breed, p.BirthDate,
		p.Owner.Name, p.Owner.Phone, p.Owner.Email,
	).Scan(&p.UpdatedAt)
	switch {
	case db.IsNotFound(err):
		return apperr.NotFound("patient")
	case db.IsUniqueViolation(err):
		return apperr.Conflict("patient code %s already exists", p.PatientCode)
	}
	return err
}

func (r *repoPG) UpdatePregnancy(ctx context.Context, id uuid.UUID, preg Pregnancy) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET is_pregnant=$2, conception_date=$3, ultrasound_date=$4, pregnancy_notes=$5,
			updated_at=NOW()
		WHERE id = $1`,
		id, preg.IsPregnant, preg.ConceptionDate, preg.UltrasoundDate, preg.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *repoPG) UpdatePhoto(ctx context.Context, id uuid.UUID, photoURL string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET photo_url=$2, updated_at=NOW() WHERE id = $1`, id, photoURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1

	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR patient_code ILIKE $%d OR owner_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+s+"%")
		idx++
	}
	if f.Pregnant != nil {
		where = append(where, fmt.Sprintf("is_pregnant = $%d", idx))
		args = append(args, *f.Pregnant)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM patients WHERE %s ORDER BY lower(name), patient_code LIMIT $%d OFFSET $%d`,
		patientCols, clause, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListPregnant(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE is_pregnant AND conception_date IS NOT NULL ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}
