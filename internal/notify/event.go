package notify

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	FundsDebited       EventType = "funds_debited"
	FundsAdded         EventType = "funds_added"
	FundsRefunded      EventType = "funds_refunded"
	EarningsReceived   EventType = "earnings_received"
	FundsTransferred   EventType = "funds_transferred"
	WithdrawalCreated  EventType = "withdrawal_requested"
	ProposalReceived   EventType = "proposal_received"
	OrderAccepted      EventType = "order_accepted"
	OrderRefused       EventType = "order_refused"
	OrderDelivered     EventType = "order_delivered"
	ProposalCompleted  EventType = "proposal_completed"
	ProposalDisputed   EventType = "proposal_disputed"
	DisputeResolved    EventType = "dispute_resolved"
	ContractExpired    EventType = "contract_expired"
	SubscriptionPaused EventType = "subscription_paused"
	SubscriptionRenew  EventType = "subscription_renewed"
)

// Event is a user-facing notification.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	RecipientID string         `json:"recipient_id"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func NewEvent(t EventType, recipientID string, data map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		RecipientID: recipientID,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
}
