package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/audit"
	"github.com/engagemarket/backend/internal/fsm"
	"github.com/engagemarket/backend/internal/logging"
	"github.com/engagemarket/backend/internal/metrics"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
	"github.com/engagemarket/backend/internal/storage"
)

const contractColumns = `id, order_number, buyer_id, seller_id, service, target, price, status,
	subscription_id, proof_key, refusal_reason, dispute_reason, resolution_note,
	created_at, updated_at, accepted_at, delivered_at, completed_at, disputed_at, refused_at, archived_at`

// caps one expiry sweep
const expiryBatchSize = 500

// ContractService drives engagement contracts through their lifecycle. Money
// moves in the same transaction as the guarded status update.
type ContractService struct {
	db      *sql.DB
	ledger  *LedgerService
	proofs  storage.ProofStore
	audit   audit.Logger
	windows fsm.Windows
	log     *logrus.Entry
	now     func() time.Time
}

func NewContractService(db *sql.DB, ledger *LedgerService, proofs storage.ProofStore, auditLog audit.Logger, windows fsm.Windows) *ContractService {
	return &ContractService{
		db:      db,
		ledger:  ledger,
		proofs:  proofs,
		audit:   auditLog,
		windows: windows,
		log:     logging.For("contracts"),
		now:     time.Now,
	}
}

// Windows returns the delivery and validation windows used for views.
func (s *ContractService) Windows() fsm.Windows {
	return s.windows
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.OrderNumber, &c.BuyerID, &c.SellerID, &c.Service, &c.Target, &c.Price, &c.Status,
		&c.SubscriptionID, &c.ProofKey, &c.RefusalReason, &c.DisputeReason, &c.ResolutionNote,
		&c.CreatedAt, &c.UpdatedAt, &c.AcceptedAt, &c.DeliveredAt, &c.CompletedAt, &c.DisputedAt, &c.RefusedAt, &c.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Checkout turns a cart into contracts and debits the buyer once for the
// total. Either every contract is created or none is.
func (s *ContractService) Checkout(ctx context.Context, buyerID string, items []models.CartItem) ([]models.Contract, error) {
	var created []models.Contract
	err := s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		var err error
		created, err = s.CreateTx(ctx, tx, b, buyerID, items)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("buyer_id", buyerID).Warn("[CONTRACTS] checkout failed")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"buyer_id": buyerID, "contracts": len(created)}).Info("[CONTRACTS] checkout completed")
	return created, nil
}

// CreateTx validates items, debits the buyer and inserts one pending contract
// per item inside tx.
func (s *ContractService) CreateTx(ctx context.Context, tx *sql.Tx, b *Batch, buyerID string, items []models.CartItem) ([]models.Contract, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}

	var total int64
	for i, item := range items {
		if item.SellerID == buyerID {
			return nil, fmt.Errorf("%w: item %d: buyer and seller must differ", ErrInvalidCart, i)
		}
		if !item.Service.Valid() {
			return nil, fmt.Errorf("%w: item %d: unknown service %q", ErrInvalidCart, i, item.Service)
		}
		if item.Price <= 0 || item.Price > models.MaxAmount {
			return nil, fmt.Errorf("%w: item %d: price must be between 1 and %d", ErrInvalidAmount, i, models.MaxAmount)
		}
		if err := ValidateTarget(item.Service, item.Target); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if total > math.MaxInt64-item.Price {
			return nil, fmt.Errorf("%w: cart total overflows", ErrInvalidAmount)
		}
		total += item.Price
	}

	if err := s.checkSellers(ctx, tx, items); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	contracts := make([]models.Contract, len(items))
	for i, item := range items {
		contracts[i] = models.Contract{
			ID:             uuid.NewString(),
			BuyerID:        buyerID,
			SellerID:       item.SellerID,
			Service:        item.Service,
			Target:         item.Target,
			Price:          item.Price,
			Status:         fsm.StatusPending,
			SubscriptionID: item.SubscriptionID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	debit := Movement{
		UserID:    buyerID,
		Reference: "checkout:" + contracts[0].ID,
		Bucket:    models.BucketAvailable,
		EntryType: models.EntryDebit,
		Amount:    total,
		Event:     notify.FundsDebited,
	}
	if len(contracts) == 1 {
		debit.ContractID = &contracts[0].ID
	}
	if _, err := s.ledger.ApplyTx(ctx, tx, b, debit); err != nil {
		return nil, err
	}

	for i := range contracts {
		c := &contracts[i]
		err := tx.QueryRowContext(ctx, `
			INSERT INTO contracts (id, buyer_id, seller_id, service, target, price, status, subscription_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING order_number`,
			c.ID, c.BuyerID, c.SellerID, c.Service, c.Target, c.Price, c.Status, c.SubscriptionID, now).
			Scan(&c.OrderNumber)
		if err != nil {
			return nil, fmt.Errorf("insert contract: %w", err)
		}
		b.Notify(notify.NewEvent(notify.ProposalReceived, c.SellerID, contractData(c)))
	}
	return contracts, nil
}

func (s *ContractService) checkSellers(ctx context.Context, tx *sql.Tx, items []models.CartItem) error {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.SellerID] {
			continue
		}
		seen[item.SellerID] = true

		var role models.Role
		var status models.UserStatus
		err := tx.QueryRowContext(ctx, `SELECT role, status FROM users WHERE id = $1`, item.SellerID).Scan(&role, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("seller %s: %w", item.SellerID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if role != models.RoleInfluencer || status != models.UserActive {
			return fmt.Errorf("%w: seller %s cannot take orders", ErrInvalidCart, item.SellerID)
		}
	}
	return nil
}

func (s *ContractService) Get(ctx context.Context, id string) (*models.Contract, error) {
	c, err := scanContract(s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c, err
}

// View returns the contract as seen by the given user: buyers get the order
// projection, sellers and admins the proposal projection.
func (s *ContractService) View(ctx context.Context, userID string, role models.Role, id string) (*models.ContractView, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Present(c, userID, role)
}

// Present projects a contract the caller already holds, such as the result of a transition.
func (s *ContractService) Present(c *models.Contract, userID string, role models.Role) (*models.ContractView, error) {
	v, ok := c.ViewFor(userID, role, s.now(), s.windows)
	if !ok {
		return nil, ErrForbidden
	}
	return &v, nil
}

// ListAsBuyer returns the buyer's orders, newest first. An empty status lists all.
func (s *ContractService) ListAsBuyer(ctx context.Context, buyerID string, status fsm.Status) ([]models.ContractView, error) {
	contracts, err := s.list(ctx, "buyer_id", buyerID, status)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]models.ContractView, 0, len(contracts))
	for i := range contracts {
		views = append(views, contracts[i].OrderView(now, s.windows))
	}
	return views, nil
}

// ListAsSeller returns the seller's proposals, newest first.
func (s *ContractService) ListAsSeller(ctx context.Context, sellerID string, status fsm.Status) ([]models.ContractView, error) {
	contracts, err := s.list(ctx, "seller_id", sellerID, status)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]models.ContractView, 0, len(contracts))
	for i := range contracts {
		views = append(views, contracts[i].ProposalView(now, s.windows))
	}
	return views, nil
}

func (s *ContractService) list(ctx context.Context, column, userID string, status fsm.Status) ([]models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE ` + column + ` = $1`
	args := []any{userID}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
		}
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

func collectContracts(rows *sql.Rows) ([]models.Contract, error) {
	var out []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// command describes one state machine step requested by a user or the system.
type command struct {
	cmd     fsm.Command
	actor   fsm.Actor // empty: derived from whether actorID is the buyer or the seller
	actorID string
	column  string // optional text column written alongside the transition
	value   string
	// runs after the transition is known to be legal, before the transaction
	prepare func(ctx context.Context, c *models.Contract) (string, error)
	// undoes prepare when the transaction does not commit
	discard func(ctx context.Context, value string)
}

func partyOf(c *models.Contract, userID string) fsm.Actor {
	switch userID {
	case c.BuyerID:
		return fsm.ActorBuyer
	case c.SellerID:
		return fsm.ActorSeller
	}
	return ""
}

func authorize(c *models.Contract, actor fsm.Actor, actorID string) error {
	switch actor {
	case fsm.ActorBuyer:
		if c.BuyerID != actorID {
			return ErrForbidden
		}
	case fsm.ActorSeller:
		if c.SellerID != actorID {
			return ErrForbidden
		}
	case fsm.ActorAdmin, fsm.ActorSystem:
	default:
		return ErrForbidden
	}
	return nil
}

func (s *ContractService) execute(ctx context.Context, contractID string, cmd command) (*models.Contract, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	if cmd.actor == "" {
		cmd.actor = partyOf(c, cmd.actorID)
	}
	if err := authorize(c, cmd.actor, cmd.actorID); err != nil {
		return nil, err
	}
	if !fsm.Allowed(cmd.cmd, cmd.actor) {
		return nil, fmt.Errorf("%w: %s cannot %s", ErrForbidden, cmd.actor, cmd.cmd)
	}

	from := c.Status
	to, err := fsm.Next(from, cmd.cmd)
	if err != nil {
		return nil, err
	}

	if cmd.prepare != nil {
		if cmd.value, err = cmd.prepare(ctx, c); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	err = s.ledger.Atomic(ctx, func(tx *sql.Tx, b *Batch) error {
		if err := fsm.Apply(ctx, tx, c.ID, from, to, now); err != nil {
			return err
		}
		if cmd.column != "" && cmd.value != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE contracts SET `+cmd.column+` = $1 WHERE id = $2`, cmd.value, c.ID); err != nil {
				return fmt.Errorf("set %s: %w", cmd.column, err)
			}
		}
		if err := s.settle(ctx, tx, b, c, to); err != nil {
			return err
		}
		b.Notify(transitionEvents(c, cmd.cmd)...)
		return nil
	})
	if err != nil {
		if cmd.discard != nil && cmd.value != "" {
			cmd.discard(ctx, cmd.value)
		}
		s.audit.LogError("contract:"+c.ID, cmd.actorID, err)
		return nil, err
	}

	s.audit.LogTransition(c.ID, cmd.actorID, string(from), string(to))
	metrics.RecordTransition(string(cmd.cmd), string(to))
	s.log.WithFields(logrus.Fields{
		"contract_id": c.ID,
		"command":     cmd.cmd,
		"from":        from,
		"to":          to,
	}).Info("[CONTRACTS] transition applied")

	applyLocal(c, to, now, cmd.column, cmd.value)
	return c, nil
}

// settle moves escrowed funds when a contract reaches a terminal outcome.
func (s *ContractService) settle(ctx context.Context, tx *sql.Tx, b *Batch, c *models.Contract, to fsm.Status) error {
	switch to {
	case fsm.StatusRefused:
		_, err := s.ledger.ApplyTx(ctx, tx, b, Movement{
			UserID:     c.BuyerID,
			ContractID: &c.ID,
			Reference:  "refund:" + c.ID,
			Bucket:     models.BucketAvailable,
			EntryType:  models.EntryCredit,
			Amount:     c.Price,
			Event:      notify.FundsRefunded,
		})
		return err
	case fsm.StatusCompleted:
		_, err := s.ledger.ApplyTx(ctx, tx, b, Movement{
			UserID:     c.SellerID,
			ContractID: &c.ID,
			Reference:  "earning:" + c.ID,
			Bucket:     models.BucketPending,
			EntryType:  models.EntryCredit,
			Amount:     c.Price,
			Event:      notify.EarningsReceived,
		})
		return err
	}
	return nil
}

func applyLocal(c *models.Contract, to fsm.Status, at time.Time, column, value string) {
	c.Status = to
	c.UpdatedAt = at
	switch to {
	case fsm.StatusAccepted:
		c.AcceptedAt = &at
	case fsm.StatusDelivered:
		c.DeliveredAt = &at
	case fsm.StatusCompleted:
		c.CompletedAt = &at
	case fsm.StatusDisputed:
		c.DisputedAt = &at
	case fsm.StatusRefused:
		c.RefusedAt = &at
	case fsm.StatusArchived:
		c.ArchivedAt = &at
	}
	if value == "" {
		return
	}
	switch column {
	case "proof_key":
		c.ProofKey = &value
	case "refusal_reason":
		c.RefusalReason = &value
	case "dispute_reason":
		c.DisputeReason = &value
	case "resolution_note":
		c.ResolutionNote = &value
	}
}

func contractData(c *models.Contract) map[string]any {
	return map[string]any{
		"contract_id":  c.ID,
		"order_number": c.OrderNumber,
		"service":      c.Service,
		"price":        c.Price,
	}
}

func transitionEvents(c *models.Contract, cmd fsm.Command) []notify.Event {
	data := contractData(c)
	switch cmd {
	case fsm.CmdAccept:
		return []notify.Event{notify.NewEvent(notify.OrderAccepted, c.BuyerID, data)}
	case fsm.CmdRefuse:
		return []notify.Event{notify.NewEvent(notify.OrderRefused, c.BuyerID, data)}
	case fsm.CmdDeliver:
		return []notify.Event{notify.NewEvent(notify.OrderDelivered, c.BuyerID, data)}
	case fsm.CmdConfirm:
		return []notify.Event{notify.NewEvent(notify.ProposalCompleted, c.SellerID, data)}
	case fsm.CmdDispute:
		return []notify.Event{notify.NewEvent(notify.ProposalDisputed, c.SellerID, data)}
	case fsm.CmdUphold, fsm.CmdReject:
		outcome := "upheld"
		if cmd == fsm.CmdReject {
			outcome = "rejected"
		}
		buyer := map[string]any{"outcome": outcome}
		seller := map[string]any{"outcome": outcome}
		for k, v := range data {
			buyer[k], seller[k] = v, v
		}
		return []notify.Event{
			notify.NewEvent(notify.DisputeResolved, c.BuyerID, buyer),
			notify.NewEvent(notify.DisputeResolved, c.SellerID, seller),
		}
	case fsm.CmdExpireDelivery, fsm.CmdExpireValidation:
		return []notify.Event{
			notify.NewEvent(notify.ContractExpired, c.BuyerID, data),
			notify.NewEvent(notify.ContractExpired, c.SellerID, data),
		}
	}
	return nil
}

func (s *ContractService) Accept(ctx context.Context, sellerID, contractID string) (*models.Contract, error) {
	return s.execute(ctx, contractID, command{cmd: fsm.CmdAccept, actor: fsm.ActorSeller, actorID: sellerID})
}

// Refuse declines a pending contract and refunds the buyer.
func (s *ContractService) Refuse(ctx context.Context, sellerID, contractID, reason string) (*models.Contract, error) {
	return s.execute(ctx, contractID, command{
		cmd:     fsm.CmdRefuse,
		actor:   fsm.ActorSeller,
		actorID: sellerID,
		column:  "refusal_reason",
		value:   reason,
	})
}

// Deliver stores the proof image and marks the work as delivered.
func (s *ContractService) Deliver(ctx context.Context, sellerID, contractID string, proof []byte) (*models.Contract, error) {
	if len(proof) == 0 {
		return nil, ErrMissingProof
	}
	return s.execute(ctx, contractID, command{
		cmd:     fsm.CmdDeliver,
		actor:   fsm.ActorSeller,
		actorID: sellerID,
		column:  "proof_key",
		prepare: func(ctx context.Context, c *models.Contract) (string, error) {
			contentType, ext, err := storage.DetectImage(proof)
			if err != nil {
				return "", err
			}
			key := storage.ProofKey(c.ID, ext)
			if err := s.proofs.Put(ctx, key, contentType, proof); err != nil {
				return "", fmt.Errorf("store proof: %w", err)
			}
			return key, nil
		},
		discard: func(ctx context.Context, key string) {
			if err := s.proofs.Delete(ctx, key); err != nil {
				s.log.WithError(err).WithField("key", key).Warn("[CONTRACTS] failed to remove orphaned proof")
			}
		},
	})
}

// Confirm validates the delivery and credits the seller's pending balance.
func (s *ContractService) Confirm(ctx context.Context, buyerID, contractID string) (*models.Contract, error) {
	return s.execute(ctx, contractID, command{cmd: fsm.CmdConfirm, actor: fsm.ActorBuyer, actorID: buyerID})
}

// Dispute contests a delivery. Funds stay in escrow until an admin resolves it.
func (s *ContractService) Dispute(ctx context.Context, buyerID, contractID, reason string) (*models.Contract, error) {
	return s.execute(ctx, contractID, command{
		cmd:     fsm.CmdDispute,
		actor:   fsm.ActorBuyer,
		actorID: buyerID,
		column:  "dispute_reason",
		value:   reason,
	})
}

// ResolveDispute settles a disputed contract. Upholding refunds the buyer,
// rejecting pays the seller.
func (s *ContractService) ResolveDispute(ctx context.Context, adminID, contractID string, uphold bool, note string) (*models.Contract, error) {
	cmd := fsm.CmdReject
	if uphold {
		cmd = fsm.CmdUphold
	}
	return s.execute(ctx, contractID, command{
		cmd:     cmd,
		actor:   fsm.ActorAdmin,
		actorID: adminID,
		column:  "resolution_note",
		value:   note,
	})
}

// Archive hides a finished contract. Either party may archive.
func (s *ContractService) Archive(ctx context.Context, userID, contractID string) (*models.Contract, error) {
	return s.execute(ctx, contractID, command{cmd: fsm.CmdArchive, actorID: userID})
}

// Proof opens the delivery proof of a contract for one of its parties or an admin.
func (s *ContractService) Proof(ctx context.Context, userID string, role models.Role, contractID string) (io.ReadCloser, string, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, "", err
	}
	if partyOf(c, userID) == "" && role != models.RoleAdmin {
		return nil, "", ErrForbidden
	}
	if c.ProofKey == nil {
		return nil, "", fmt.Errorf("proof for contract %s: %w", contractID, ErrNotFound)
	}
	return s.proofs.Get(ctx, *c.ProofKey)
}

// ExpireOverdue applies the system expiry commands to every contract whose
// window has run out. Contracts that moved concurrently are skipped.
func (s *ContractService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE (status = 'accepted' AND accepted_at < $1)
		   OR (status = 'delivered' AND delivered_at < $2)
		ORDER BY updated_at
		LIMIT $3`,
		now.Add(-s.windows.Delivery), now.Add(-s.windows.Validation), expiryBatchSize)
	if err != nil {
		return 0, err
	}
	overdue, err := collectContracts(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	expired, failed := 0, 0
	for i := range overdue {
		c := &overdue[i]
		if !s.windows.Expired(now, c.Status, c.AcceptedAt, c.DeliveredAt) {
			continue
		}
		cmd, ok := fsm.ExpiryCommand(c.Status)
		if !ok {
			continue
		}
		_, err := s.execute(ctx, c.ID, command{cmd: cmd, actor: fsm.ActorSystem, actorID: "system"})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrStaleState), errors.Is(err, ErrInvalidTransition):
			s.log.WithField("contract_id", c.ID).Debug("[CONTRACTS] expiry skipped, contract moved")
		default:
			s.log.WithError(err).WithField("contract_id", c.ID).Error("[CONTRACTS] failed to expire contract")
			failed++
		}
	}
	if failed > 0 {
		return expired, fmt.Errorf("%d of %d overdue contracts failed to expire", failed, len(overdue))
	}
	return expired, nil
}
