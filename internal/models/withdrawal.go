package models

import "time"

const WithdrawalRequested = "requested"

// Withdrawal records a payout request and its commission/VAT split, in cents.
type Withdrawal struct {
	ID                  string    `json:"id" db:"id"`
	UserID              string    `json:"user_id" db:"user_id"`
	Gross               int64     `json:"gross" db:"gross"`
	Commission          int64     `json:"commission" db:"commission"`
	Net                 int64     `json:"net" db:"net"`
	VAT                 int64     `json:"vat" db:"vat"`
	WithdrawMethodLabel string    `json:"withdraw_method" db:"withdraw_method_label"`
	Status              string    `json:"status" db:"status"`
	InvoiceID           string    `json:"invoice_id" db:"invoice_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
