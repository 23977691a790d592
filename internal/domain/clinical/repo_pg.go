package clinical

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
)

func conn(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return pool
}

// =========== Medical Record Repository ===========

type medicalRecordRepoPG struct{ pool *pgxpool.Pool }

func NewMedicalRecordRepoPG(pool *pgxpool.Pool) MedicalRecordRepository {
	return &medicalRecordRepoPG{pool: pool}
}

const recordCols = `id, patient_id, date, description, image_url, created_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var r MedicalRecord
	if err := row.Scan(&r.ID, &r.PatientID, &r.Date, &r.Description, &r.ImageURL, &r.CreatedAt); err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("medical record")
		}
		return nil, err
	}
	return &r, nil
}

func (r *medicalRecordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_id, date, description, image_url)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.Date, rec.Description, rec.ImageURL,
	).Scan(&rec.CreatedAt)
}

func (r *medicalRecordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
}

func (r *medicalRecordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medical record")
	}
	return nil
}

func (r *medicalRecordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medical_records WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+recordCols+` FROM medical_records WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

// =========== Preventive Medicine Repository ===========

type preventiveRepoPG struct{ pool *pgxpool.Pool }

func NewPreventiveRepoPG(pool *pgxpool.Pool) PreventiveRepository {
	return &preventiveRepoPG{pool: pool}
}

const preventiveCols = `id, patient_id, type, product, date, next_dose, lot, image_url, notes, created_at`

func scanPreventive(row pgx.Row) (*PreventiveMedicine, error) {
	var p PreventiveMedicine
	err := row.Scan(&p.ID, &p.PatientID, &p.Type, &p.Product, &p.Date, &p.NextDose,
		&p.Lot, &p.ImageURL, &p.Notes, &p.CreatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("preventive medicine record")
		}
		return nil, err
	}
	return &p, nil
}

func (r *preventiveRepoPG) Create(ctx context.Context, p *PreventiveMedicine) error {
	p.ID = uuid.New()
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO preventive_medicine (id, patient_id, type, product, date, next_dose, lot, image_url, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		p.ID, p.PatientID, p.Type, p.Product, p.Date, p.NextDose, p.Lot, p.ImageURL, p.Notes,
	).Scan(&p.CreatedAt)
}

func (r *preventiveRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PreventiveMedicine, error) {
	return scanPreventive(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+preventiveCols+` FROM preventive_medicine WHERE id = $1`, id))
}

func (r *preventiveRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM preventive_medicine WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("preventive medicine record")
	}
	return nil
}

func (r *preventiveRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PreventiveMedicine, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM preventive_medicine WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+preventiveCols+` FROM preventive_medicine WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectPreventive(rows)
	return items, total, err
}

func (r *preventiveRepoPG) ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*PreventiveMedicine, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+preventiveCols+` FROM preventive_medicine WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collectPreventive(rows)
}

func collectPreventive(rows pgx.Rows) ([]*PreventiveMedicine, error) {
	defer rows.Close()
	var items []*PreventiveMedicine
	for rows.Next() {
		p, err := scanPreventive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
