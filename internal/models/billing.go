package models

import (
	"fmt"
	"time"
)

// BillingKind names one of the per-user record categories that carry a
// single default.
type BillingKind string

const (
	KindBillingProfile BillingKind = "billing_profile"
	KindPaymentMethod  BillingKind = "payment_method"
	KindWithdrawMethod BillingKind = "withdraw_method"
)

// Table returns the table storing records of this kind.
func (k BillingKind) Table() string {
	switch k {
	case KindBillingProfile:
		return "billing_profiles"
	case KindPaymentMethod:
		return "payment_methods"
	case KindWithdrawMethod:
		return "withdraw_methods"
	}
	return ""
}

type BillingProfile struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	CompanyName string    `json:"company_name" db:"company_name" validate:"required,max=200"`
	VATNumber   string    `json:"vat_number,omitempty" db:"vat_number" validate:"omitempty,max=32"`
	Street      string    `json:"street" db:"street" validate:"required,max=200"`
	Postcode    string    `json:"postcode" db:"postcode" validate:"required,max=16"`
	City        string    `json:"city" db:"city" validate:"required,max=100"`
	Country     string    `json:"country" db:"country" validate:"required,len=2"`
	IsDefault   bool      `json:"is_default" db:"is_default"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	MethodCard   = "card"
	MethodIBAN   = "iban"
	MethodPayPal = "paypal"
)

// PaymentMethod is used to pay top-ups. Only display details are stored.
type PaymentMethod struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type" validate:"required,oneof=card iban paypal"`
	Holder    string    `json:"holder" db:"holder" validate:"required,max=200"`
	Last4     string    `json:"last4,omitempty" db:"last4" validate:"omitempty,len=4,numeric"`
	Email     string    `json:"email,omitempty" db:"email" validate:"omitempty,email"`
	IsDefault bool      `json:"is_default" db:"is_default"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Label is the human readable form frozen onto invoices.
func (p *PaymentMethod) Label() string {
	return methodLabel(p.Type, p.Last4, p.Email)
}

// WithdrawMethod receives withdrawals.
type WithdrawMethod struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type" validate:"required,oneof=iban paypal"`
	Holder    string    `json:"holder" db:"holder" validate:"required,max=200"`
	Last4     string    `json:"last4,omitempty" db:"last4" validate:"omitempty,len=4,numeric"`
	Email     string    `json:"email,omitempty" db:"email" validate:"omitempty,email"`
	IsDefault bool      `json:"is_default" db:"is_default"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (m *WithdrawMethod) Label() string {
	return methodLabel(m.Type, m.Last4, m.Email)
}

func methodLabel(kind, last4, email string) string {
	switch kind {
	case MethodCard:
		return fmt.Sprintf("Card **** %s", last4)
	case MethodIBAN:
		return fmt.Sprintf("IBAN **** %s", last4)
	case MethodPayPal:
		return fmt.Sprintf("PayPal %s", email)
	}
	return kind
}
