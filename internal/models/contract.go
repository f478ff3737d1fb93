package models

import (
	"time"

	"github.com/engagemarket/backend/internal/fsm"
)

// ServiceType is the kind of engagement sold on the marketplace.
type ServiceType string

const (
	ServiceFollow      ServiceType = "follow"
	ServiceLike        ServiceType = "like"
	ServiceComment     ServiceType = "comment"
	ServiceRepostStory ServiceType = "repost_story"
)

// Services lists every service type in display order.
var Services = []ServiceType{ServiceLike, ServiceComment, ServiceRepostStory, ServiceFollow}

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceFollow, ServiceLike, ServiceComment, ServiceRepostStory:
		return true
	}
	return false
}

// Contract is one purchased engagement service. Buyers see it as an order,
// sellers as a proposal.
type Contract struct {
	ID             string      `json:"id" db:"id"`
	OrderNumber    int64       `json:"order_number" db:"order_number"`
	BuyerID        string      `json:"buyer_id" db:"buyer_id"`
	SellerID       string      `json:"seller_id" db:"seller_id"`
	Service        ServiceType `json:"service" db:"service"`
	Target         string      `json:"target" db:"target"`
	Price          int64       `json:"price" db:"price"` // in cents
	Status         fsm.Status  `json:"status" db:"status"`
	SubscriptionID *string     `json:"subscription_id,omitempty" db:"subscription_id"`
	ProofKey       *string     `json:"proof_key,omitempty" db:"proof_key"`
	RefusalReason  *string     `json:"refusal_reason,omitempty" db:"refusal_reason"`
	DisputeReason  *string     `json:"dispute_reason,omitempty" db:"dispute_reason"`
	ResolutionNote *string     `json:"resolution_note,omitempty" db:"resolution_note"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty" db:"accepted_at"`
	DeliveredAt    *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	DisputedAt     *time.Time  `json:"disputed_at,omitempty" db:"disputed_at"`
	RefusedAt      *time.Time  `json:"refused_at,omitempty" db:"refused_at"`
	ArchivedAt     *time.Time  `json:"archived_at,omitempty" db:"archived_at"`
}

// CartItem is one line of a checkout.
type CartItem struct {
	SellerID       string      `json:"seller_id" validate:"required,uuid"`
	Service        ServiceType `json:"service" validate:"required,oneof=follow like comment repost_story"`
	Target         string      `json:"target" validate:"required,max=2000"`
	Price          int64       `json:"price" validate:"required,gt=0,max=100000000"`
	SubscriptionID *string     `json:"-"`
}

// ContractView is the role-scoped projection returned to the UI.
type ContractView struct {
	Contract
	Status    string        `json:"status"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
	Remaining int64         `json:"remaining_seconds"`
	Expired   bool          `json:"expired"`
	Actions   []fsm.Command `json:"actions"`
}

// orderStatus maps the unified status onto the buyer vocabulary.
func orderStatus(s fsm.Status) string {
	if s == fsm.StatusAccepted {
		return "in_progress"
	}
	return string(s)
}

func (c *Contract) view(now time.Time, w fsm.Windows, actor fsm.Actor, status string) ContractView {
	v := ContractView{
		Contract: *c,
		Status:   status,
		Expired:  w.Expired(now, c.Status, c.AcceptedAt, c.DeliveredAt),
		Actions:  fsm.AvailableCommands(c.Status, actor),
	}
	if deadline, ok := w.Deadline(c.Status, c.AcceptedAt, c.DeliveredAt); ok {
		v.Deadline = &deadline
		v.Remaining = int64(w.Remaining(now, c.Status, c.AcceptedAt, c.DeliveredAt) / time.Second)
	}
	return v
}

// OrderView projects the contract for its buyer.
func (c *Contract) OrderView(now time.Time, w fsm.Windows) ContractView {
	return c.view(now, w, fsm.ActorBuyer, orderStatus(c.Status))
}

// ProposalView projects the contract for its seller.
func (c *Contract) ProposalView(now time.Time, w fsm.Windows) ContractView {
	return c.view(now, w, fsm.ActorSeller, string(c.Status))
}

// ViewFor picks the projection for userID. Admins see the seller side.
func (c *Contract) ViewFor(userID string, role Role, now time.Time, w fsm.Windows) (ContractView, bool) {
	switch {
	case c.BuyerID == userID:
		return c.OrderView(now, w), true
	case c.SellerID == userID || role == RoleAdmin:
		return c.ProposalView(now, w), true
	}
	return ContractView{}, false
}
