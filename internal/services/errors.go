package services

import (
	"errors"

	"github.com/engagemarket/backend/internal/fsm"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidTransition = fsm.ErrInvalidTransition
	ErrStaleState        = fsm.ErrStaleState
	ErrMissingProof      = errors.New("delivery proof required")

	ErrNoBillingProfile = errors.New("no billing profile")
	ErrNoPaymentMethod  = errors.New("no payment method")
	ErrNoWithdrawMethod = errors.New("no withdraw method")

	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidCart  = errors.New("invalid cart")
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTarget is returned for a malformed handle or post URL list.
	ErrInvalidTarget = errors.New("invalid target")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrEmailTaken         = errors.New("email already registered")
)
