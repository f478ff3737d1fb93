package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

const (
	BillingMonthly = "monthly"
	BillingPerPost = "per_post"
)

// BillingFor returns how a recurring service is billed: follows monthly,
// everything else once per new post.
func BillingFor(s ServiceType) string {
	if s == ServiceFollow {
		return BillingMonthly
	}
	return BillingPerPost
}

// Subscription is a recurring engagement contract.
type Subscription struct {
	ID           string             `json:"id" db:"id"`
	BuyerID      string             `json:"buyer_id" db:"buyer_id"`
	SellerID     string             `json:"seller_id" db:"seller_id"`
	Service      ServiceType        `json:"service" db:"service"`
	Target       string             `json:"target" db:"target"`
	Price        int64              `json:"price" db:"price"` // in cents
	Billing      string             `json:"billing" db:"billing"`
	Status       SubscriptionStatus `json:"status" db:"status"`
	NextRenewal  *time.Time         `json:"next_renewal,omitempty" db:"next_renewal"`
	AutoRecharge bool               `json:"auto_recharge" db:"auto_recharge"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}
