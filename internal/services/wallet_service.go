package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
	"github.com/engagemarket/backend/internal/pricing"
)

// WalletService runs the money flows that involve billing records and
// invoices on top of the ledger.
type WalletService struct {
	ledger   *LedgerService
	billing  *BillingService
	invoices *InvoiceService
	pricing  *pricing.Engine
	log      *logrus.Entry
	now      func() time.Time
}

func NewWalletService(ledger *LedgerService, billing *BillingService, invoices *InvoiceService, engine *pricing.Engine, log *logrus.Entry) *WalletService {
	return &WalletService{
		ledger:   ledger,
		billing:  billing,
		invoices: invoices,
		pricing:  engine,
		log:      log,
		now:      time.Now,
	}
}

type TopUpResult struct {
	Entry   *models.LedgerEntry `json:"entry"`
	Invoice *models.Invoice     `json:"invoice"`
}

// TopUp credits amountHT (cents, VAT excluded) to the available balance and
// issues the matching invoice. The buyer pays amountHT plus VAT.
func (s *WalletService) TopUp(ctx context.Context, userID string, amountHT int64) (*TopUpResult, error) {
	if amountHT <= 0 || amountHT > models.MaxAmount {
		return nil, ErrInvalidAmount
	}

	var result TopUpResult
	err := s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		profile, err := s.billing.DefaultBillingProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		method, err := s.billing.DefaultPaymentMethod(ctx, tx, userID)
		if err != nil {
			return err
		}

		split := s.pricing.SplitTopUp(pricing.FromCents(amountHT))
		inv := &models.Invoice{
			UserID:             userID,
			Kind:               models.InvoiceTopUp,
			AmountHT:           amountHT,
			VAT:                pricing.ToCents(split.VAT),
			AmountTTC:          pricing.ToCents(split.TTC),
			PaymentMethodLabel: method.Label(),
			Billing:            models.SnapshotOf(profile),
			IssuedAt:           s.now().UTC(),
		}
		if err := s.invoices.IssueTx(ctx, tx, inv); err != nil {
			return err
		}

		entry, err := s.ledger.ApplyTx(ctx, tx, b, Movement{
			UserID:    userID,
			Reference: "top_up:" + inv.Number,
			Bucket:    models.BucketAvailable,
			EntryType: models.EntryCredit,
			Amount:    amountHT,
			Event:     notify.FundsAdded,
		})
		if err != nil {
			return err
		}
		result = TopUpResult{Entry: entry, Invoice: inv}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("[WALLET] top-up failed")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amountHT,
		"invoice": result.Invoice.Number,
	}).Info("[WALLET] top-up recorded")
	return &result, nil
}

// Withdraw debits gross from the available balance. The commission is kept by
// the marketplace and the net amount is paid out to the default withdraw method.
func (s *WalletService) Withdraw(ctx context.Context, userID string, gross int64) (*models.Withdrawal, error) {
	if gross <= 0 || gross > models.MaxAmount {
		return nil, ErrInvalidAmount
	}

	var w *models.Withdrawal
	err := s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		profile, err := s.billing.DefaultBillingProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		method, err := s.billing.DefaultWithdrawMethod(ctx, tx, userID)
		if err != nil {
			return err
		}

		id := uuid.NewString()
		if _, err := s.ledger.ApplyTx(ctx, tx, b, Movement{
			UserID:    userID,
			Reference: "withdrawal:" + id,
			Bucket:    models.BucketAvailable,
			EntryType: models.EntryDebit,
			Amount:    gross,
		}); err != nil {
			return err
		}

		split := s.pricing.SplitWithdrawal(pricing.FromCents(gross))
		now := s.now().UTC()
		inv := &models.Invoice{
			UserID:             userID,
			Kind:               models.InvoiceWithdrawal,
			AmountHT:           pricing.ToCents(split.Net),
			VAT:                pricing.ToCents(split.VAT),
			AmountTTC:          gross,
			Commission:         pricing.ToCents(split.Commission),
			PaymentMethodLabel: method.Label(),
			Billing:            models.SnapshotOf(profile),
			IssuedAt:           now,
		}
		if err := s.invoices.IssueTx(ctx, tx, inv); err != nil {
			return err
		}

		w = &models.Withdrawal{
			ID:                  id,
			UserID:              userID,
			Gross:               gross,
			Commission:          inv.Commission,
			Net:                 inv.AmountHT,
			VAT:                 inv.VAT,
			WithdrawMethodLabel: inv.PaymentMethodLabel,
			Status:              models.WithdrawalRequested,
			InvoiceID:           inv.ID,
			CreatedAt:           now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO withdrawals (id, user_id, gross, commission, net, vat, withdraw_method_label, status, invoice_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			w.ID, w.UserID, w.Gross, w.Commission, w.Net, w.VAT, w.WithdrawMethodLabel, w.Status, w.InvoiceID, w.CreatedAt); err != nil {
			return err
		}

		b.Notify(notify.NewEvent(notify.WithdrawalCreated, userID, map[string]any{
			"withdrawal_id": w.ID,
			"gross":         w.Gross,
			"net":           w.Net,
			"invoice":       inv.Number,
		}))
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("[WALLET] withdrawal failed")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"withdrawal_id": w.ID,
		"gross":         w.Gross,
		"net":           w.Net,
	}).Info("[WALLET] withdrawal requested")
	return w, nil
}

func (s *WalletService) Transfer(ctx context.Context, userID string, amount int64) (*models.Wallet, error) {
	if err := s.ledger.TransferPendingToAvailable(ctx, userID, amount); err != nil {
		return nil, err
	}
	return s.ledger.Balance(ctx, userID)
}

func (s *WalletService) Balance(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *WalletService) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	return s.ledger.History(ctx, userID, limit)
}

func (s *WalletService) Withdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	rows, err := s.ledger.db.QueryContext(ctx, `
		SELECT id, user_id, gross, commission, net, vat, withdraw_method_label, status, invoice_id, created_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Withdrawal{}
	for rows.Next() {
		var w models.Withdrawal
		if err := rows.Scan(&w.ID, &w.UserID, &w.Gross, &w.Commission, &w.Net, &w.VAT,
			&w.WithdrawMethodLabel, &w.Status, &w.InvoiceID, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
