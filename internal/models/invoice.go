package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type InvoiceKind string

const (
	InvoiceTopUp      InvoiceKind = "top_up"
	InvoiceWithdrawal InvoiceKind = "withdrawal"
)

// BillingSnapshot is a copy of a billing profile frozen at invoice time.
type BillingSnapshot struct {
	CompanyName string `json:"company_name"`
	VATNumber   string `json:"vat_number,omitempty"`
	Street      string `json:"street"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

func SnapshotOf(p *BillingProfile) BillingSnapshot {
	return BillingSnapshot{
		CompanyName: p.CompanyName,
		VATNumber:   p.VATNumber,
		Street:      p.Street,
		Postcode:    p.Postcode,
		City:        p.City,
		Country:     p.Country,
	}
}

// Value implements driver.Valuer for BillingSnapshot
func (s BillingSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for BillingSnapshot
func (s *BillingSnapshot) Scan(value any) error {
	if value == nil {
		*s = BillingSnapshot{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, s)
}

// Invoice is an immutable record of a settled money movement. Amounts are cents.
type Invoice struct {
	ID                 string          `json:"id" db:"id"`
	Number             string          `json:"number" db:"number"`
	UserID             string          `json:"user_id" db:"user_id"`
	Kind               InvoiceKind     `json:"kind" db:"kind"`
	AmountHT           int64           `json:"amount_ht" db:"amount_ht"`
	VAT                int64           `json:"vat" db:"vat"`
	AmountTTC          int64           `json:"amount_ttc" db:"amount_ttc"`
	Commission         int64           `json:"commission" db:"commission"`
	PaymentMethodLabel string          `json:"payment_method" db:"payment_method_label"`
	Billing            BillingSnapshot `json:"billing" db:"billing_snapshot"`
	IssuedAt           time.Time       `json:"issued_at" db:"issued_at"`
}
