package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByCode(ctx context.Context, code string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	UpdatePregnancy(ctx context.Context, id uuid.UUID, preg Pregnancy) error
	UpdatePhoto(ctx context.Context, id uuid.UUID, photoURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
	ListPregnant(ctx context.Context) ([]*Patient, error)
	Count(ctx context.Context) (int, error)
}
