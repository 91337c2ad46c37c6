package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input such as a non-positive amount.
	ErrValidation = errors.New("validation failed")
	// ErrIneligible indicates a credit eligibility rule rejected the request.
	ErrIneligible = errors.New("ineligible")
	// ErrInsufficientFunds indicates the available balance cannot cover the operation.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrStateConflict indicates the record is not in a state that allows the action.
	ErrStateConflict = errors.New("state conflict")
	// ErrIntegrity indicates a paired financial write could not be completed.
	ErrIntegrity = errors.New("ledger integrity failure")
	// ErrForbidden indicates the actor lacks the role for the action.
	ErrForbidden = errors.New("forbidden")
)

// IneligibleError names the eligibility rule that failed.
type IneligibleError struct {
	Rule   string
	Detail string
}

func (e *IneligibleError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ineligible: %s", e.Rule)
	}
	return fmt.Sprintf("ineligible: %s: %s", e.Rule, e.Detail)
}

// Is lets errors.Is(err, ErrIneligible) match.
func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

// Ineligible builds an IneligibleError.
func Ineligible(rule, format string, args ...any) error {
	return &IneligibleError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// Validation wraps ErrValidation with a field specific message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrIneligible),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrIdempotencyConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
