package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/engagemarket/backend/internal/audit"
	"github.com/engagemarket/backend/internal/database"
	"github.com/engagemarket/backend/internal/metrics"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LedgerService owns wallet balances. Every mutation locks the wallet row,
// bumps its version and appends a ledger entry in the caller's transaction.
type LedgerService struct {
	db     *sql.DB
	audit  audit.Logger
	events notify.Emitter
	now    func() time.Time
}

func NewLedgerService(db *sql.DB, auditLog audit.Logger, events notify.Emitter) *LedgerService {
	return &LedgerService{
		db:     db,
		audit:  auditLog,
		events: events,
		now:    time.Now,
	}
}

// Movement is a single change to one bucket of one wallet.
type Movement struct {
	UserID     string
	ContractID *string
	Reference  string
	Bucket     models.Bucket
	EntryType  string
	Amount     int64
	Event      notify.EventType // empty means no notification
}

// Batch collects the entries and events produced inside a transaction so
// that their side effects only happen once it has committed.
type Batch struct {
	entries []*models.LedgerEntry
	events  []notify.Event
}

func (b *Batch) Notify(events ...notify.Event) {
	b.events = append(b.events, events...)
}

// Atomic runs fn in a transaction and flushes the batch after commit.
func (s *LedgerService) Atomic(ctx context.Context, fn func(tx *sql.Tx, b *Batch) error) error {
	var b Batch
	if err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error { return fn(tx, &b) }); err != nil {
		return err
	}
	s.flush(&b)
	return nil
}

func (s *LedgerService) flush(b *Batch) {
	for _, e := range b.entries {
		s.audit.LogMovement(e.Reference, e.UserID, string(e.Bucket), e.EntryType, e.Amount, e.BalanceAfter)
		metrics.RecordLedgerMovement(string(e.Bucket), e.EntryType, e.Amount)
	}
	s.events.Emit(b.events...)
}

// ApplyTx applies m inside tx.
func (s *LedgerService) ApplyTx(ctx context.Context, tx *sql.Tx, b *Batch, m Movement) (*models.LedgerEntry, error) {
	if m.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.lockWallet(ctx, tx, m.UserID)
	if err != nil {
		return nil, err
	}

	balance := &wallet.AvailableBalance
	if m.Bucket == models.BucketPending {
		balance = &wallet.PendingBalance
	}

	if m.EntryType != models.EntryDebit && *balance > math.MaxInt64-m.Amount {
		return nil, fmt.Errorf("%w: %s balance would overflow", ErrInvalidAmount, m.Bucket)
	}
	after := *balance + m.Amount
	if m.EntryType == models.EntryDebit {
		after = *balance - m.Amount
		if after < 0 {
			if m.Bucket == models.BucketAvailable {
				return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, *balance, m.Amount)
			}
			return nil, fmt.Errorf("%w: pending %d, requested %d", ErrInvalidAmount, *balance, m.Amount)
		}
	}
	*balance = after

	if err := s.updateWallet(ctx, tx, wallet); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:       m.UserID,
		ContractID:   m.ContractID,
		Reference:    m.Reference,
		Bucket:       m.Bucket,
		EntryType:    m.EntryType,
		Amount:       m.Amount,
		BalanceAfter: after,
		CreatedAt:    s.now(),
	}
	if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	b.entries = append(b.entries, entry)
	if m.Event != "" {
		data := map[string]any{"amount": m.Amount, "reference": m.Reference, "balance": after}
		if m.ContractID != nil {
			data["contract_id"] = *m.ContractID
		}
		b.Notify(notify.NewEvent(m.Event, m.UserID, data))
	}
	return entry, nil
}

func (s *LedgerService) apply(ctx context.Context, m Movement) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		var err error
		entry, err = s.ApplyTx(ctx, tx, b, m)
		return err
	})
	if err != nil {
		s.audit.LogError(m.Reference, m.UserID, err)
		return nil, err
	}
	return entry, nil
}

// Debit removes amount from the available balance.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int64, reference string) (*models.LedgerEntry, error) {
	return s.apply(ctx, Movement{
		UserID:    userID,
		Reference: reference,
		Bucket:    models.BucketAvailable,
		EntryType: models.EntryDebit,
		Amount:    amount,
		Event:     notify.FundsDebited,
	})
}

func (s *LedgerService) CreditAvailable(ctx context.Context, userID string, amount int64, reference string) (*models.LedgerEntry, error) {
	return s.apply(ctx, Movement{
		UserID:    userID,
		Reference: reference,
		Bucket:    models.BucketAvailable,
		EntryType: models.EntryCredit,
		Amount:    amount,
		Event:     notify.FundsAdded,
	})
}

func (s *LedgerService) CreditPending(ctx context.Context, userID string, amount int64, reference string) (*models.LedgerEntry, error) {
	return s.apply(ctx, Movement{
		UserID:    userID,
		Reference: reference,
		Bucket:    models.BucketPending,
		EntryType: models.EntryCredit,
		Amount:    amount,
		Event:     notify.EarningsReceived,
	})
}

// TransferPendingToAvailable releases earnings so they can be withdrawn.
func (s *LedgerService) TransferPendingToAvailable(ctx context.Context, userID string, amount int64) error {
	reference := "transfer:" + userID + ":" + s.now().UTC().Format("20060102T150405.000")
	err := s.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		if _, err := s.ApplyTx(ctx, tx, b, Movement{
			UserID:    userID,
			Reference: reference,
			Bucket:    models.BucketPending,
			EntryType: models.EntryDebit,
			Amount:    amount,
		}); err != nil {
			return err
		}
		_, err := s.ApplyTx(ctx, tx, b, Movement{
			UserID:    userID,
			Reference: reference,
			Bucket:    models.BucketAvailable,
			EntryType: models.EntryCredit,
			Amount:    amount,
			Event:     notify.FundsTransferred,
		})
		return err
	})
	if err != nil {
		s.audit.LogError(reference, userID, err)
	}
	return err
}

// CreateWalletTx opens an empty wallet for a new user.
func (s *LedgerService) CreateWalletTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, available_balance, pending_balance, version, updated_at)
		VALUES ($1, 0, 0, 1, $2)`,
		userID, s.now())
	return err
}

func (s *LedgerService) Balance(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, available_balance, pending_balance, version, updated_at
		FROM wallets
		WHERE user_id = $1`, userID).
		Scan(&w.UserID, &w.AvailableBalance, &w.PendingBalance, &w.Version, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// History returns the most recent ledger entries of a user.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, contract_id, reference, bucket, entry_type, amount, balance_after, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContractID, &e.Reference, &e.Bucket,
			&e.EntryType, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LedgerService) lockWallet(ctx context.Context, tx *sql.Tx, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, available_balance, pending_balance, version, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&w.UserID, &w.AvailableBalance, &w.PendingBalance, &w.Version, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *LedgerService) updateWallet(ctx context.Context, tx *sql.Tx, w *models.Wallet) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET available_balance = $1, pending_balance = $2, version = version + 1, updated_at = $3
		WHERE user_id = $4 AND version = $5`,
		w.AvailableBalance, w.PendingBalance, s.now(), w.UserID, w.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for wallet %s", ErrStaleState, w.UserID)
	}
	w.Version++
	return nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (user_id, contract_id, reference, bucket, entry_type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.UserID, e.ContractID, e.Reference, e.Bucket, e.EntryType, e.Amount, e.BalanceAfter, e.CreatedAt).
		Scan(&e.ID)
}
