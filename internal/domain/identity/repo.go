package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ClinicRepository interface {
	Get(ctx context.Context) (*ClinicProfile, error)
	Update(ctx context.Context, p *ClinicProfile) error
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
