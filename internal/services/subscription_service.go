package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
)

const (
	subscriptionColumns = `id, buyer_id, seller_id, service, target, price, billing, status, next_renewal, auto_recharge, created_at, updated_at`
	renewalBatchSize    = 200
)

// SubscriptionService manages recurring contracts. Follows renew monthly,
// other services are charged once per post the buyer records.
type SubscriptionService struct {
	db        *sql.DB
	ledger    *LedgerService
	contracts *ContractService
	wallet    *WalletService
	log       *logrus.Entry
	now       func() time.Time
}

func NewSubscriptionService(db *sql.DB, ledger *LedgerService, contracts *ContractService, wallet *WalletService, log *logrus.Entry) *SubscriptionService {
	return &SubscriptionService{
		db:        db,
		ledger:    ledger,
		contracts: contracts,
		wallet:    wallet,
		log:       log,
		now:       time.Now,
	}
}

type SubscriptionRequest struct {
	SellerID     string             `json:"seller_id" validate:"required,uuid"`
	Service      models.ServiceType `json:"service" validate:"required,oneof=follow like comment repost_story"`
	Target       string             `json:"target" validate:"required,max=2000"`
	Price        int64              `json:"price" validate:"required,gt=0,max=100000000"`
	AutoRecharge bool               `json:"auto_recharge"`
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(&sub.ID, &sub.BuyerID, &sub.SellerID, &sub.Service, &sub.Target, &sub.Price,
		&sub.Billing, &sub.Status, &sub.NextRenewal, &sub.AutoRecharge, &sub.CreatedAt, &sub.UpdatedAt)
	return &sub, err
}

// Create opens a subscription and immediately charges its first contract.
func (s *SubscriptionService) Create(ctx context.Context, buyerID string, req SubscriptionRequest) (*models.Subscription, *models.Contract, error) {
	if !req.Service.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown service %q", ErrInvalidInput, req.Service)
	}
	if req.Price <= 0 || req.Price > models.MaxAmount {
		return nil, nil, ErrInvalidAmount
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		ID:           uuid.NewString(),
		BuyerID:      buyerID,
		SellerID:     req.SellerID,
		Service:      req.Service,
		Target:       req.Target,
		Price:        req.Price,
		Billing:      models.BillingFor(req.Service),
		Status:       models.SubscriptionActive,
		AutoRecharge: req.AutoRecharge,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if sub.Billing == models.BillingMonthly {
		next := now.AddDate(0, 1, 0)
		sub.NextRenewal = &next
	}

	var first models.Contract
	err := s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (id, buyer_id, seller_id, service, target, price, billing, status, next_renewal, auto_recharge, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			sub.ID, sub.BuyerID, sub.SellerID, sub.Service, sub.Target, sub.Price, sub.Billing,
			sub.Status, sub.NextRenewal, sub.AutoRecharge, now); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		created, err := s.contracts.CreateTx(ctx, tx, b, buyerID, []models.CartItem{itemFor(sub, sub.Target)})
		if err != nil {
			return err
		}
		first = created[0]
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"buyer_id":        buyerID,
		"billing":         sub.Billing,
	}).Info("[SUBSCRIPTIONS] subscription created")
	return sub, &first, nil
}

func itemFor(sub *models.Subscription, target string) models.CartItem {
	return models.CartItem{
		SellerID:       sub.SellerID,
		Service:        sub.Service,
		Target:         target,
		Price:          sub.Price,
		SubscriptionID: &sub.ID,
	}
}

// Get returns a subscription visible to userID (its buyer or seller).
func (s *SubscriptionService) Get(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sub.BuyerID != userID && sub.SellerID != userID {
		return nil, ErrForbidden
	}
	return sub, nil
}

func (s *SubscriptionService) List(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

var subscriptionMoves = map[models.SubscriptionStatus][]models.SubscriptionStatus{
	models.SubscriptionActive: {models.SubscriptionPaused, models.SubscriptionCancelled},
	models.SubscriptionPaused: {models.SubscriptionActive, models.SubscriptionCancelled},
}

func canMove(from, to models.SubscriptionStatus) bool {
	for _, s := range subscriptionMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// setStatus moves a subscription owned by buyerID. The UPDATE is guarded on
// the status read so a concurrent change surfaces as ErrStaleState.
func (s *SubscriptionService) setStatus(ctx context.Context, buyerID, id string, to models.SubscriptionStatus) (*models.Subscription, error) {
	sub, err := s.Get(ctx, buyerID, id)
	if err != nil {
		return nil, err
	}
	if sub.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if !canMove(sub.Status, to) {
		return nil, fmt.Errorf("%w: subscription %s is %s", ErrInvalidTransition, id, sub.Status)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, now, id, sub.Status)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrStaleState)
	}

	s.log.WithFields(logrus.Fields{"subscription_id": id, "from": sub.Status, "to": to}).Info("[SUBSCRIPTIONS] status changed")
	sub.Status, sub.UpdatedAt = to, now
	return sub, nil
}

func (s *SubscriptionService) Pause(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return s.setStatus(ctx, buyerID, id, models.SubscriptionPaused)
}

func (s *SubscriptionService) Resume(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return s.setStatus(ctx, buyerID, id, models.SubscriptionActive)
}

// Cancel is terminal.
func (s *SubscriptionService) Cancel(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return s.setStatus(ctx, buyerID, id, models.SubscriptionCancelled)
}

// RecordPost charges a per-post subscription for a new post of the buyer.
func (s *SubscriptionService) RecordPost(ctx context.Context, buyerID, id, postURL string) (*models.Contract, error) {
	sub, err := s.Get(ctx, buyerID, id)
	if err != nil {
		return nil, err
	}
	if sub.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if sub.Billing != models.BillingPerPost {
		return nil, fmt.Errorf("%w: subscription %s is billed %s", ErrInvalidInput, id, sub.Billing)
	}
	if sub.Status != models.SubscriptionActive {
		return nil, fmt.Errorf("%w: subscription %s is %s", ErrInvalidTransition, id, sub.Status)
	}

	var created models.Contract
	charge := func() error {
		return s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
			contracts, err := s.contracts.CreateTx(ctx, tx, b, buyerID, []models.CartItem{itemFor(sub, postURL)})
			if err != nil {
				return err
			}
			created = contracts[0]
			return nil
		})
	}
	if err := s.withRecharge(ctx, sub, charge); err != nil {
		return nil, err
	}
	return &created, nil
}

// withRecharge runs charge and, when the buyer lacks funds and opted into
// auto-recharge, tops the wallet up by the subscription price and retries once.
func (s *SubscriptionService) withRecharge(ctx context.Context, sub *models.Subscription, charge func() error) error {
	err := charge()
	if !errors.Is(err, ErrInsufficientFunds) || !sub.AutoRecharge {
		return err
	}
	if _, topUpErr := s.wallet.TopUp(ctx, sub.BuyerID, sub.Price); topUpErr != nil {
		s.log.WithError(topUpErr).WithField("subscription_id", sub.ID).Warn("[SUBSCRIPTIONS] auto-recharge failed")
		return err
	}
	s.log.WithField("subscription_id", sub.ID).Info("[SUBSCRIPTIONS] wallet auto-recharged")
	return charge()
}

type RenewalReport struct {
	Renewed int `json:"renewed"`
	Paused  int `json:"paused"`
	Failed  int `json:"failed"`
}

// RenewDue charges every monthly subscription whose renewal date has passed.
// Subscriptions that cannot be paid are paused and their buyer notified.
func (s *SubscriptionService) RenewDue(ctx context.Context) (RenewalReport, error) {
	var report RenewalReport
	now := s.now().UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active' AND billing = 'monthly' AND next_renewal <= $1
		ORDER BY next_renewal
		LIMIT $2`, now, renewalBatchSize)
	if err != nil {
		return report, err
	}
	var due []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			rows.Close()
			return report, err
		}
		due = append(due, sub)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	for _, sub := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		err := s.withRecharge(ctx, sub, func() error { return s.renew(ctx, sub, now) })
		switch {
		case err == nil:
			report.Renewed++
		case errors.Is(err, ErrStaleState):
			// renewed or paused concurrently
		case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidCart), errors.Is(err, ErrNotFound):
			perr := s.pause(ctx, sub, pauseReason(err))
			if errors.Is(perr, ErrStaleState) {
				// cancelled or paused by the buyer meanwhile
				continue
			}
			if perr != nil {
				s.log.WithError(perr).WithField("subscription_id", sub.ID).Error("[SUBSCRIPTIONS] pause failed")
				report.Failed++
				continue
			}
			report.Paused++
		default:
			s.log.WithError(err).WithField("subscription_id", sub.ID).Error("[SUBSCRIPTIONS] renewal failed")
			report.Failed++
		}
	}

	if len(due) > 0 {
		s.log.WithFields(logrus.Fields{
			"renewed": report.Renewed,
			"paused":  report.Paused,
			"failed":  report.Failed,
		}).Info("[SUBSCRIPTIONS] renewal run finished")
	}
	return report, nil
}

func pauseReason(err error) string {
	if errors.Is(err, ErrInsufficientFunds) {
		return "insufficient_funds"
	}
	return "seller_unavailable"
}

// nextRenewal advances by one month from the previous date so renewals do not
// drift, unless the subscription is so far behind that it would stay overdue.
func nextRenewal(prev *time.Time, now time.Time) time.Time {
	if prev != nil {
		if next := prev.AddDate(0, 1, 0); next.After(now) {
			return next
		}
	}
	return now.AddDate(0, 1, 0)
}

func (s *SubscriptionService) renew(ctx context.Context, sub *models.Subscription, now time.Time) error {
	next := nextRenewal(sub.NextRenewal, now)
	return s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET next_renewal = $1, updated_at = $2
			WHERE id = $3 AND status = 'active' AND next_renewal = $4`,
			next, now, sub.ID, sub.NextRenewal)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("subscription %s: %w", sub.ID, ErrStaleState)
		}

		created, err := s.contracts.CreateTx(ctx, tx, b, sub.BuyerID, []models.CartItem{itemFor(sub, sub.Target)})
		if err != nil {
			return err
		}
		b.Notify(notify.NewEvent(notify.SubscriptionRenew, sub.BuyerID, map[string]any{
			"subscription_id": sub.ID,
			"contract_id":     created[0].ID,
			"next_renewal":    next,
		}))
		sub.NextRenewal = &next
		return nil
	})
}

func (s *SubscriptionService) pause(ctx context.Context, sub *models.Subscription, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'paused', updated_at = $1
		WHERE id = $2 AND status = 'active'`,
		s.now().UTC(), sub.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscription %s: %w", sub.ID, ErrStaleState)
	}

	sub.Status = models.SubscriptionPaused
	s.ledger.events.Emit(notify.NewEvent(notify.SubscriptionPaused, sub.BuyerID, map[string]any{
		"subscription_id": sub.ID,
		"reason":          reason,
	}))
	s.log.WithFields(logrus.Fields{"subscription_id": sub.ID, "reason": reason}).Warn("[SUBSCRIPTIONS] subscription paused")
	return nil
}
