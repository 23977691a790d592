package billing

import (
	"context"
	"fmt"

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

// inTx runs fn in a transaction on the tenant connection, or on a pooled
// connection outside a request.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if db.QuerierFromContext(ctx) != nil {
		return db.InTx(ctx, fn)
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, db.DBTxKey, tx))
	})
}

// nullableID stores uuid.Nil as NULL.
func nullableID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

const invoiceCols = `id, invoice_number, patient_id, owner_name, date, subtotal, tax, total,
	status, payment_method, payment_link, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var patientID *uuid.UUID
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &patientID, &inv.OwnerName, &inv.Date,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.Status, &inv.PaymentMethod, &inv.PaymentLink,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("invoice")
		}
		return nil, err
	}
	if patientID != nil {
		inv.PatientID = *patientID
	}
	return &inv, nil
}

func (r *invoiceRepoPG) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n)
	return n, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	return inTx(ctx, r.pool, func(ctx context.Context) error {
		err := conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO invoices (id, invoice_number, patient_id, owner_name, date, subtotal, tax, total,
				status, payment_method, payment_link)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING created_at, updated_at`,
			inv.ID, inv.InvoiceNumber, nullableID(inv.PatientID), inv.OwnerName, inv.Date,
			inv.Subtotal, inv.Tax, inv.Total, inv.Status, inv.PaymentMethod, inv.PaymentLink,
		).Scan(&inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("invoice number %s already exists", inv.InvoiceNumber)
			}
			return err
		}
		return r.insertItems(ctx, inv)
	})
}

func (r *invoiceRepoPG) insertItems(ctx context.Context, inv *Invoice) error {
	for i := range inv.Items {
		it := &inv.Items[i]
		it.ID = uuid.New()
		_, err := conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, inv.ID, i, it.Description, it.Quantity, it.UnitPrice, it.Total)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", i, err)
		}
	}
	return nil
}

func (r *invoiceRepoPG) items(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, description, quantity, unit_price, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []InvoiceItem{}
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if inv.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	return inTx(ctx, r.pool, func(ctx context.Context) error {
		err := conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE invoices SET patient_id=$2, owner_name=$3, date=$4, subtotal=$5, tax=$6, total=$7,
				status=$8, payment_method=$9, payment_link=$10, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`,
			inv.ID, nullableID(inv.PatientID), inv.OwnerName, inv.Date, inv.Subtotal, inv.Tax, inv.Total,
			inv.Status, inv.PaymentMethod, inv.PaymentLink,
		).Scan(&inv.UpdatedAt)
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("invoice")
			}
			return err
		}
		if _, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return err
		}
		return r.insertItems(ctx, inv)
	})
}

func (r *invoiceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice")
	}
	return nil
}

func (r *invoiceRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Invoice, int, error) {
	clause := ` WHERE ($1 = '' OR status = $1) AND ($2::uuid IS NULL OR patient_id = $2)`
	args := []interface{}{f.Status, nullableID(f.PatientID)}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+invoiceCols+` FROM invoices`+clause+`
		ORDER BY date DESC, invoice_number DESC LIMIT $3 OFFSET $4`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, inv := range items {
		if inv.Items, err = r.items(ctx, inv.ID); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *invoiceRepoPG) SumPaid(ctx context.Context) (float64, error) {
	var sum float64
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)::float8 FROM invoices WHERE status = $1`, StatusPaid).Scan(&sum)
	return sum, err
}

type paymentLinkRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentLinkRepoPG(pool *pgxpool.Pool) PaymentLinkRepository {
	return &paymentLinkRepoPG{pool: pool}
}

const linkCols = `id, invoice_id, token, url, amount, description, expires_at, status, created_at`

func scanLink(row pgx.Row) (*PaymentLink, error) {
	var l PaymentLink
	if err := row.Scan(&l.ID, &l.InvoiceID, &l.Token, &l.URL, &l.Amount, &l.Description,
		&l.ExpiresAt, &l.Status, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *paymentLinkRepoPG) Create(ctx context.Context, l *PaymentLink) error {
	l.ID = uuid.New()
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payment_links (id, invoice_id, token, url, amount, description, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		l.ID, l.InvoiceID, l.Token, l.URL, l.Amount, l.Description, l.ExpiresAt, l.Status,
	).Scan(&l.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("payment link token already exists")
	}
	return err
}

func (r *paymentLinkRepoPG) List(ctx context.Context, limit, offset int) ([]*PaymentLink, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM payment_links`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, `SELECT `+linkCols+` FROM payment_links
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	return items, total, err
}

func (r *paymentLinkRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*PaymentLink, error) {
	return r.collect(ctx, `SELECT `+linkCols+` FROM payment_links WHERE invoice_id = $1
		ORDER BY created_at DESC`, invoiceID)
}

func (r *paymentLinkRepoPG) MarkUsedByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE payment_links SET status = $2 WHERE invoice_id = $1 AND status = $3`,
		invoiceID, LinkUsed, LinkActive)
	return err
}

func (r *paymentLinkRepoPG) collect(ctx context.Context, query string, args ...interface{}) ([]*PaymentLink, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PaymentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
