package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/engagemarket/backend/internal/fsm"
	"github.com/engagemarket/backend/internal/logging"
	"github.com/engagemarket/backend/internal/pricing"
	"github.com/engagemarket/backend/internal/storage"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable machine readable code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	writeError(w, statusCode, ErrorResponse{Error: message, Details: details(validationErr)})
}

func details(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
	}
	return out
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// checked in order, the first match wins
var errorMappings = []errorMapping{
	{ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ErrStaleState, http.StatusConflict, "stale_state"},
	{ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{ErrMissingProof, http.StatusBadRequest, "missing_proof"},
	{storage.ErrNotImage, http.StatusBadRequest, "invalid_proof"},
	{ErrNoBillingProfile, http.StatusPreconditionFailed, "no_billing_profile"},
	{ErrNoPaymentMethod, http.StatusPreconditionFailed, "no_payment_method"},
	{ErrNoWithdrawMethod, http.StatusPreconditionFailed, "no_withdraw_method"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{storage.ErrObjectNotFound, http.StatusNotFound, "not_found"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{fsm.ErrActorNotAllowed, http.StatusForbidden, "forbidden"},
	{ErrInvalidCart, http.StatusBadRequest, "invalid_cart"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrInvalidTarget, http.StatusBadRequest, "invalid_target"},
	{pricing.ErrNoBracketMatch, http.StatusBadRequest, "no_bracket_match"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
	{ErrEmailTaken, http.StatusConflict, "email_taken"},
}

// StatusFor maps a service error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// WriteError sends err as a JSON error body. Unknown errors are logged and
// reported without their message.
func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.For("http").WithError(err).Error("[HTTP] unhandled error")
		msg = "An Internal Error Occurred"
	}
	writeError(w, status, ErrorResponse{Error: msg, Code: code})
}
