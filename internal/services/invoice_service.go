package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/engagemarket/backend/internal/invoice"
	"github.com/engagemarket/backend/internal/models"
)

const invoiceColumns = `id, number, user_id, kind, amount_ht, vat, amount_ttc, commission, payment_method_label, billing_snapshot, issued_at`

// InvoiceService stores invoice snapshots and renders them on demand.
type InvoiceService struct {
	db       *sql.DB
	renderer *invoice.Renderer
}

func NewInvoiceService(db *sql.DB, renderer *invoice.Renderer) *InvoiceService {
	return &InvoiceService{db: db, renderer: renderer}
}

// InvoiceNumber formats a sequence value as INV-<year>-<seq>.
func InvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

// IssueTx numbers and stores inv inside tx. IssuedAt must already be set.
func (s *InvoiceService) IssueTx(ctx context.Context, tx *sql.Tx, inv *models.Invoice) error {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("invoice number: %w", err)
	}
	inv.Number = InvoiceNumber(inv.IssuedAt.Year(), seq)

	return tx.QueryRowContext(ctx, `
		INSERT INTO invoices (number, user_id, kind, amount_ht, vat, amount_ttc, commission, payment_method_label, billing_snapshot, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		inv.Number, inv.UserID, inv.Kind, inv.AmountHT, inv.VAT, inv.AmountTTC, inv.Commission,
		inv.PaymentMethodLabel, inv.Billing, inv.IssuedAt).
		Scan(&inv.ID)
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.UserID, &inv.Kind, &inv.AmountHT, &inv.VAT, &inv.AmountTTC,
		&inv.Commission, &inv.PaymentMethodLabel, &inv.Billing, &inv.IssuedAt)
	return &inv, err
}

func (s *InvoiceService) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE user_id = $1
		ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// Get returns an invoice owned by userID. Admins may read any invoice.
func (s *InvoiceService) Get(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID && role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return inv, nil
}

// PDF renders the stored snapshot. The document never reads live billing data.
func (s *InvoiceService) PDF(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, []byte, error) {
	inv, err := s.Get(ctx, userID, role, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.renderer.Render(inv)
	if err != nil {
		return nil, nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return inv, doc, nil
}
