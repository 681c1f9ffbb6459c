package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match one of these via errors.Is.
var (
	// ErrValidation is returned when the input fails domain validation.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound indicates that the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or concurrent-write conflict (HTTP 409).
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition means the requested status change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotOwner means a courier acted on an order it does not own.
	ErrNotOwner = errors.New("courier does not own the order")
	// ErrAlreadyAssigned means the order left pending before this request.
	ErrAlreadyAssigned = errors.New("order already assigned")
	// ErrOfferExpired means the offer was responded to after its TTL.
	ErrOfferExpired = errors.New("offer expired")
	// ErrCourierUnavailable means the courier cannot take an order right now.
	ErrCourierUnavailable = errors.New("courier unavailable")
	// ErrNetwork marks transport-level failures that are worth retrying.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized means the caller is not authenticated or not allowed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDuplicateRequest means an idempotency key was already processed.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrRequestInProgress means an earlier request with the same idempotency
	// key has not finished yet.
	ErrRequestInProgress = errors.New("request in progress")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid input: %s", e.Field)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports a status change outside the transition table.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotOwnerError is returned when CourierID does not own OrderID.
type NotOwnerError struct {
	OrderID   int64
	CourierID int64
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("courier %d does not own order %d", e.CourierID, e.OrderID)
}

// Is matches ErrNotOwner.
func (e *NotOwnerError) Is(target error) bool { return target == ErrNotOwner }

// AlreadyAssignedError carries the order and its current owner, if any.
type AlreadyAssignedError struct {
	OrderID   int64
	CourierID *int64
	Status    string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("order %d already assigned (status %s)", e.OrderID, e.Status)
}

// Is matches ErrAlreadyAssigned.
func (e *AlreadyAssignedError) Is(target error) bool { return target == ErrAlreadyAssigned }

// OfferExpiredError is returned for responses to an offer that is no longer live.
type OfferExpiredError struct {
	OrderID   int64
	CourierID int64
}

func (e *OfferExpiredError) Error() string {
	return fmt.Sprintf("offer of order %d to courier %d is no longer valid", e.OrderID, e.CourierID)
}

// Is matches ErrOfferExpired.
func (e *OfferExpiredError) Is(target error) bool { return target == ErrOfferExpired }

// NetworkError wraps a transport failure of operation Op.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: network error", e.Op)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// Network wraps err as a NetworkError.
func Network(op string, err error) error {
	return &NetworkError{Op: op, Err: err}
}
