package clinical

import (
	"context"

	"github.com/google/uuid"
)

type MedicalRecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
}

type PreventiveRepository interface {
	Create(ctx context.Context, p *PreventiveMedicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*PreventiveMedicine, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*PreventiveMedicine, int, error)
	ListAllByPatient(ctx context.Context, patientID uuid.UUID) ([]*PreventiveMedicine, error)
}
