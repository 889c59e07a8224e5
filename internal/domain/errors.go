package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrOrderNotCancellable = errors.New("order_not_cancellable")
	ErrInvariantViolation  = errors.New("invariant_violation")
	ErrUnknownInterval     = errors.New("unknown_interval")
	ErrSubscriberClosed    = errors.New("subscriber_closed")
)

// RejectionReason classifies why an incoming order was refused.
type RejectionReason string

const (
	RejectInvalidSide     RejectionReason = "invalid_side"
	RejectInvalidPrice    RejectionReason = "invalid_price"
	RejectInvalidQuantity RejectionReason = "invalid_quantity"
	RejectInvalidRequest  RejectionReason = "invalid_request"
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Reason  RejectionReason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Reject builds a ValidationError for the given reason.
func Reject(reason RejectionReason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}
