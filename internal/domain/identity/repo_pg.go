package identity

import (
	"context"
	"time"

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

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository {
	return &clinicRepoPG{pool: pool}
}

func (r *clinicRepoPG) Get(ctx context.Context) (*ClinicProfile, error) {
	var p ClinicProfile
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT name, primary_color, secondary_color, logo_url, doctor_name, updated_at
		FROM clinic_profile WHERE id = 1`,
	).Scan(&p.Name, &p.PrimaryColor, &p.SecondaryColor, &p.LogoURL, &p.DoctorName, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("clinic profile")
		}
		return nil, err
	}
	return &p, nil
}

func (r *clinicRepoPG) Update(ctx context.Context, p *ClinicProfile) error {
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinic_profile (id, name, primary_color, secondary_color, logo_url, doctor_name)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
			primary_color = EXCLUDED.primary_color, secondary_color = EXCLUDED.secondary_color,
			logo_url = EXCLUDED.logo_url, doctor_name = EXCLUDED.doctor_name, updated_at = NOW()
		RETURNING updated_at`,
		p.Name, p.PrimaryColor, p.SecondaryColor, p.LogoURL, p.DoctorName,
	).Scan(&p.UpdatedAt)
}

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

const userCols = `id, email, name, role, password_hash, created_at, last_login`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.LastLogin); err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("a user with email %s already exists", u.Email)
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *userRepoPG) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return err
}
