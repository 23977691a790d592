package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/calendar"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/db"
	"github.com/equivet/equivet/internal/platform/events"
)

// DefaultTaxRate is the IVA applied when no rate is configured.
const DefaultTaxRate = 0.16

// Patients is the patient lookup invoices are checked against.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	invoices InvoiceRepository
	links    PaymentLinkRepository
	patients Patients
	taxRate  float64
	baseURL  string
	events   events.Publisher
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService builds the billing service. Payment link URLs are rooted at
// publicBaseURL.
func NewService(inv InvoiceRepository, links PaymentLinkRepository, patients Patients, taxRate float64,
	publicBaseURL string, pub events.Publisher, now func() time.Time, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		invoices: inv,
		links:    links,
		patients: patients,
		taxRate:  taxRate,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		events:   pub,
		now:      now,
		logger:   logger,
	}
}

var validInvoiceStatuses = map[string]bool{StatusPending: true, StatusPaid: true, StatusCancelled: true}

var validPaymentMethods = map[string]bool{MethodCash: true, MethodCard: true, MethodTransfer: true}

func ValidStatus(status string) bool { return validInvoiceStatuses[status] }

func (s *Service) TaxRate() float64 { return s.taxRate }

// prepare validates inv, applies defaults and recomputes every amount.
func (s *Service) prepare(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	if len(inv.Items) == 0 {
		return apperr.Invalid("invoice needs at least one item")
	}
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Description = strings.TrimSpace(it.Description)
		if it.Description == "" {
			return apperr.Invalid("item %d: description is required", i+1)
		}
		if it.Quantity <= 0 {
			return apperr.Invalid("item %d: quantity must be greater than zero", i+1)
		}
		if it.UnitPrice <= 0 {
			return apperr.Invalid("item %d: unit_price must be greater than zero", i+1)
		}
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if !validInvoiceStatuses[inv.Status] {
		return apperr.Invalid("invalid invoice status: %s", inv.Status)
	}
	if inv.PaymentMethod == "" {
		inv.PaymentMethod = MethodCash
	}
	if !validPaymentMethods[inv.PaymentMethod] {
		return apperr.Invalid("invalid payment method: %s", inv.PaymentMethod)
	}
	if !inv.Date.Valid() {
		inv.Date = calendar.Today(s.now())
	}

	p, err := s.patients.GetPatient(ctx, inv.PatientID)
	if err != nil {
		return err
	}
	inv.OwnerName = strings.TrimSpace(inv.OwnerName)
	if inv.OwnerName == "" {
		inv.OwnerName = p.Owner.Name
	}

	t := ComputeTotals(inv.Items, s.taxRate)
	inv.Subtotal, inv.Tax, inv.Total = t.Subtotal, t.Tax, t.Total
	return nil
}

func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if err := s.prepare(ctx, inv); err != nil {
		return err
	}
	n, err := s.invoices.NextNumber(ctx)
	if err != nil {
		return fmt.Errorf("next invoice number: %w", err)
	}
	inv.InvoiceNumber = fmt.Sprintf(InvoiceNumberFormat, n)
	inv.PaymentLink = ""
	if err := s.invoices.Create(ctx, inv); err != nil {
		return err
	}
	s.publish(ctx, events.InvoiceCreated, inv)
	if inv.Status == StatusPaid {
		s.publish(ctx, events.InvoicePaid, inv)
	}
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

// UpdateInvoice replaces a pending invoice. Paid and cancelled invoices are
// final. Moving to paid retires the invoice's active payment links.
func (s *Service) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	prev, err := s.invoices.GetByID(ctx, inv.ID)
	if err != nil {
		return err
	}
	if prev.Status != StatusPending {
		return apperr.Conflict("invoice %s is %s and can no longer change", prev.InvoiceNumber, prev.Status)
	}
	if err := s.prepare(ctx, inv); err != nil {
		return err
	}
	inv.InvoiceNumber = prev.InvoiceNumber
	inv.PaymentLink = prev.PaymentLink
	inv.CreatedAt = prev.CreatedAt
	if err := s.invoices.Update(ctx, inv); err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		if err := s.links.MarkUsedByInvoice(ctx, inv.ID); err != nil {
			return fmt.Errorf("retire payment links: %w", err)
		}
		s.publish(ctx, events.InvoicePaid, inv)
	}
	return nil
}

// DeleteInvoice removes an invoice that has not been paid.
func (s *Service) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return apperr.Conflict("invoice %s is paid and cannot be deleted", inv.InvoiceNumber)
	}
	return s.invoices.Delete(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, f ListFilter, limit, offset int) ([]*Invoice, int, error) {
	if f.Status != "" && !validInvoiceStatuses[f.Status] {
		return nil, 0, apperr.Invalid("invalid invoice status: %s", f.Status)
	}
	return s.invoices.List(ctx, f, limit, offset)
}

// Revenue is the sum of paid invoice totals.
func (s *Service) Revenue(ctx context.Context) (float64, error) {
	sum, err := s.invoices.SumPaid(ctx)
	if err != nil {
		return 0, err
	}
	return roundCents(sum), nil
}

// CreatePaymentLink issues a link for the full amount of a pending invoice
// and records its URL on the invoice.
func (s *Service) CreatePaymentLink(ctx context.Context, invoiceID uuid.UUID) (*PaymentLink, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, apperr.Conflict("invoice %s is %s", inv.InvoiceNumber, inv.Status)
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("public base url is not configured")
	}

	now := s.now()
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	l := &PaymentLink{
		InvoiceID:   inv.ID,
		Token:       token,
		URL:         s.baseURL + "/pago/" + token,
		Amount:      inv.Total,
		Description: "Factura " + inv.InvoiceNumber,
		ExpiresAt:   now.Add(PaymentLinkTTL),
		Status:      LinkActive,
	}
	err = db.InTx(ctx, func(ctx context.Context) error {
		if err := s.links.Create(ctx, l); err != nil {
			return err
		}
		inv.PaymentLink = l.URL
		return s.invoices.Update(ctx, inv)
	})
	if errors.Is(err, db.ErrNoConn) {
		// Outside a tenant request; the repositories manage their own connections.
		if err = s.links.Create(ctx, l); err == nil {
			inv.PaymentLink = l.URL
			err = s.invoices.Update(ctx, inv)
		}
	}
	if err != nil {
		return nil, err
	}

	ev, evErr := events.New(events.PaymentLinkCreated, db.TenantFromContext(ctx), l.ID.String(), linkEvent{
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        l.Amount,
		ExpiresAt:     l.ExpiresAt,
	})
	if evErr == nil {
		evErr = s.events.Publish(ctx, ev)
	}
	if evErr != nil {
		s.logger.Warn().Err(evErr).Str("event", events.PaymentLinkCreated).Str("invoice_id", inv.ID.String()).Msg("publish event failed")
	}
	return l, nil
}

// ListPaymentLinks returns links newest first with their status as of now.
func (s *Service) ListPaymentLinks(ctx context.Context, limit, offset int) ([]*PaymentLink, int, error) {
	items, total, err := s.links.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, l := range items {
		l.Status = l.EffectiveStatus(now)
	}
	return items, total, nil
}

type invoiceEvent struct {
	InvoiceNumber string  `json:"invoice_number"`
	PatientID     string  `json:"patient_id"`
	OwnerName     string  `json:"owner_name"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method"`
}

type linkEvent struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        float64   `json:"amount"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Service) publish(ctx context.Context, eventType string, inv *Invoice) {
	ev, err := events.New(eventType, db.TenantFromContext(ctx), inv.ID.String(), invoiceEvent{
		InvoiceNumber: inv.InvoiceNumber,
		PatientID:     inv.PatientID.String(),
		OwnerName:     inv.OwnerName,
		Total:         inv.Total,
		Status:        inv.Status,
		PaymentMethod: inv.PaymentMethod,
	})
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("invoice_id", inv.ID.String()).Msg("publish event failed")
	}
}
