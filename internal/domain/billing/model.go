package billing

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/equivet/equivet/internal/calendar"
)

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
)

const (
	LinkActive  = "active"
	LinkUsed    = "used"
	LinkExpired = "expired"
)

// PaymentLinkTTL is how long a payment link stays usable.
const PaymentLinkTTL = 7 * 24 * time.Hour

// InvoiceNumberFormat renders the per-clinic invoice sequence.
const InvoiceNumberFormat = "FAC-%06d"

type InvoiceItem struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Total       float64   `json:"total"`
}

type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	PatientID     uuid.UUID     `json:"patient_id"`
	OwnerName     string        `json:"owner_name"`
	Date          calendar.Date `json:"date"`
	Items         []InvoiceItem `json:"items"`
	Subtotal      float64       `json:"subtotal"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	Status        string        `json:"status"`
	PaymentMethod string        `json:"payment_method"`
	PaymentLink   string        `json:"payment_link"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type PaymentLink struct {
	ID          uuid.UUID `json:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	Token       string    `json:"token"`
	URL         string    `json:"url"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// EffectiveStatus reports expired for an active link read after its expiry.
func (l *PaymentLink) EffectiveStatus(now time.Time) string {
	if l.Status == LinkActive && !now.Before(l.ExpiresAt) {
		return LinkExpired
	}
	return l.Status
}

// Totals are the money amounts of an invoice.
type Totals struct {
	Subtotal float64
	Tax      float64
	Total    float64
}

// roundCents rounds half away from zero to two decimals.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeTotals fills each item total and returns the invoice totals, every
// amount rounded to cents.
func ComputeTotals(items []InvoiceItem, taxRate float64) Totals {
	var subtotal float64
	for i := range items {
		items[i].Total = roundCents(items[i].Quantity * items[i].UnitPrice)
		subtotal += items[i].Total
	}
	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal * taxRate)
	return Totals{Subtotal: subtotal, Tax: tax, Total: roundCents(subtotal + tax)}
}

type ListFilter struct {
	Status    string
	PatientID uuid.UUID
}
