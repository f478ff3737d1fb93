package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/engagemarket/backend/internal/database"
	"github.com/engagemarket/backend/internal/models"
)

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BillingService manages billing profiles, payment methods and withdraw
// methods. Each user has at most one default record per kind.
type BillingService struct {
	db  *sql.DB
	now func() time.Time
}

func NewBillingService(db *sql.DB) *BillingService {
	return &BillingService{db: db, now: time.Now}
}

// makeDefault decides whether a new record becomes the default and clears the
// previous default when it does. The first record of a kind is always default.
func (s *BillingService) makeDefault(ctx context.Context, tx *sql.Tx, kind models.BillingKind, userID string, requested bool) (bool, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+kind.Table()+` WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}
	if !requested {
		return false, nil
	}
	if err := clearDefault(ctx, tx, kind, userID); err != nil {
		return false, err
	}
	return true, nil
}

func clearDefault(ctx context.Context, tx *sql.Tx, kind models.BillingKind, userID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE `+kind.Table()+` SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID)
	return err
}

func (s *BillingService) CreateBillingProfile(ctx context.Context, userID string, p *models.BillingProfile) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		isDefault, err := s.makeDefault(ctx, tx, models.KindBillingProfile, userID, p.IsDefault)
		if err != nil {
			return err
		}
		p.UserID, p.IsDefault, p.CreatedAt = userID, isDefault, s.now().UTC()
		return tx.QueryRowContext(ctx, `
			INSERT INTO billing_profiles (user_id, company_name, vat_number, street, postcode, city, country, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			p.UserID, p.CompanyName, p.VATNumber, p.Street, p.Postcode, p.City, p.Country, p.IsDefault, p.CreatedAt).
			Scan(&p.ID)
	})
}

func (s *BillingService) CreatePaymentMethod(ctx context.Context, userID string, m *models.PaymentMethod) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		isDefault, err := s.makeDefault(ctx, tx, models.KindPaymentMethod, userID, m.IsDefault)
		if err != nil {
			return err
		}
		m.UserID, m.IsDefault, m.CreatedAt = userID, isDefault, s.now().UTC()
		return tx.QueryRowContext(ctx, `
			INSERT INTO payment_methods (user_id, type, holder, last4, email, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			m.UserID, m.Type, m.Holder, m.Last4, m.Email, m.IsDefault, m.CreatedAt).
			Scan(&m.ID)
	})
}

func (s *BillingService) CreateWithdrawMethod(ctx context.Context, userID string, m *models.WithdrawMethod) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		isDefault, err := s.makeDefault(ctx, tx, models.KindWithdrawMethod, userID, m.IsDefault)
		if err != nil {
			return err
		}
		m.UserID, m.IsDefault, m.CreatedAt = userID, isDefault, s.now().UTC()
		return tx.QueryRowContext(ctx, `
			INSERT INTO withdraw_methods (user_id, type, holder, last4, email, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			m.UserID, m.Type, m.Holder, m.Last4, m.Email, m.IsDefault, m.CreatedAt).
			Scan(&m.ID)
	})
}

const (
	billingProfileColumns = `id, user_id, company_name, vat_number, street, postcode, city, country, is_default, created_at`
	methodColumns         = `id, user_id, type, holder, last4, email, is_default, created_at`
)

func scanBillingProfile(row rowScanner) (*models.BillingProfile, error) {
	var p models.BillingProfile
	err := row.Scan(&p.ID, &p.UserID, &p.CompanyName, &p.VATNumber, &p.Street, &p.Postcode, &p.City, &p.Country, &p.IsDefault, &p.CreatedAt)
	return &p, err
}

func scanPaymentMethod(row rowScanner) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := row.Scan(&m.ID, &m.UserID, &m.Type, &m.Holder, &m.Last4, &m.Email, &m.IsDefault, &m.CreatedAt)
	return &m, err
}

func scanWithdrawMethod(row rowScanner) (*models.WithdrawMethod, error) {
	var m models.WithdrawMethod
	err := row.Scan(&m.ID, &m.UserID, &m.Type, &m.Holder, &m.Last4, &m.Email, &m.IsDefault, &m.CreatedAt)
	return &m, err
}

func listQuery(columns string, kind models.BillingKind) string {
	return `SELECT ` + columns + ` FROM ` + kind.Table() + ` WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC`
}

func defaultQuery(columns string, kind models.BillingKind) string {
	return `SELECT ` + columns + ` FROM ` + kind.Table() + ` WHERE user_id = $1 AND is_default`
}

func (s *BillingService) ListBillingProfiles(ctx context.Context, userID string) ([]models.BillingProfile, error) {
	rows, err := s.db.QueryContext(ctx, listQuery(billingProfileColumns, models.KindBillingProfile), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.BillingProfile{}
	for rows.Next() {
		p, err := scanBillingProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *BillingService) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, listQuery(methodColumns, models.KindPaymentMethod), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PaymentMethod{}
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *BillingService) ListWithdrawMethods(ctx context.Context, userID string) ([]models.WithdrawMethod, error) {
	rows, err := s.db.QueryContext(ctx, listQuery(methodColumns, models.KindWithdrawMethod), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.WithdrawMethod{}
	for rows.Next() {
		m, err := scanWithdrawMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DefaultBillingProfile returns the user's default profile. q may be a
// transaction so the profile is read in the same snapshot as the invoice.
func (s *BillingService) DefaultBillingProfile(ctx context.Context, q queryRower, userID string) (*models.BillingProfile, error) {
	p, err := scanBillingProfile(q.QueryRowContext(ctx, defaultQuery(billingProfileColumns, models.KindBillingProfile), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBillingProfile
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BillingService) DefaultPaymentMethod(ctx context.Context, q queryRower, userID string) (*models.PaymentMethod, error) {
	m, err := scanPaymentMethod(q.QueryRowContext(ctx, defaultQuery(methodColumns, models.KindPaymentMethod), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPaymentMethod
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *BillingService) DefaultWithdrawMethod(ctx context.Context, q queryRower, userID string) (*models.WithdrawMethod, error) {
	m, err := scanWithdrawMethod(q.QueryRowContext(ctx, defaultQuery(methodColumns, models.KindWithdrawMethod), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWithdrawMethod
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetDefault makes the record the user's default for its kind.
func (s *BillingService) SetDefault(ctx context.Context, kind models.BillingKind, userID, id string) error {
	table := kind.Table()
	if table == "" {
		return fmt.Errorf("%w: unknown billing kind %q", ErrInvalidInput, kind)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT TRUE FROM `+table+` WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := clearDefault(ctx, tx, kind, userID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE `+table+` SET is_default = TRUE WHERE id = $1`, id)
		return err
	})
}

// Delete removes a record. Deleting the default promotes the most recent
// remaining record of the same kind.
func (s *BillingService) Delete(ctx context.Context, kind models.BillingKind, userID, id string) error {
	table := kind.Table()
	if table == "" {
		return fmt.Errorf("%w: unknown billing kind %q", ErrInvalidInput, kind)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var wasDefault bool
		err := tx.QueryRowContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2 RETURNING is_default`, id, userID).Scan(&wasDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !wasDefault {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE `+table+` SET is_default = TRUE
			WHERE id = (SELECT id FROM `+table+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1)`, userID)
		return err
	})
}
