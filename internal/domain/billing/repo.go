package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	// NextNumber reserves the next value of the clinic's invoice sequence.
	NextNumber(ctx context.Context) (int64, error)
	// Create stores the invoice with its items in one transaction.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// Update rewrites the invoice and replaces its items.
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Invoice, int, error)
	// SumPaid totals every paid invoice.
	SumPaid(ctx context.Context) (float64, error)
}

type PaymentLinkRepository interface {
	Create(ctx context.Context, l *PaymentLink) error
	List(ctx context.Context, limit, offset int) ([]*PaymentLink, int, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*PaymentLink, error)
	// MarkUsedByInvoice flips the invoice's active links to used.
	MarkUsedByInvoice(ctx context.Context, invoiceID uuid.UUID) error
}
