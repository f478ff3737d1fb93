package models

import (
	"time"
)

// Bucket names one of the two balances held in a wallet.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
)

// MaxAmount caps a single price, top-up or withdrawal, in cents (€1,000,000).
// Keep the max= validate tags in sync.
const MaxAmount int64 = 100_000_000

const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

type LedgerEntry struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	ContractID   *string   `json:"contract_id,omitempty" db:"contract_id"`
	Reference    string    `json:"reference" db:"reference"`
	Bucket       Bucket    `json:"bucket" db:"bucket"`
	EntryType    string    `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Amount       int64     `json:"amount" db:"amount"`         // in cents
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Wallet carries the ledger balances of a user.
type Wallet struct {
	UserID           string    `json:"user_id" db:"user_id"`
	AvailableBalance int64     `json:"available_balance" db:"available_balance"` // in cents
	PendingBalance   int64     `json:"pending_balance" db:"pending_balance"`     // in cents
	Version          int       `json:"-" db:"version"`                           // for optimistic locking
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
