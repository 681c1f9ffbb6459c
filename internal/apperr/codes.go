package apperr

import "errors"

// Wire codes shared by the REST API, the socket protocol and the courier client.
const (
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeInvalidTransition  = "invalid_transition"
	CodeNotOwner           = "not_owner"
	CodeAlreadyAssigned    = "already_assigned"
	CodeOfferExpired       = "offer_expired"
	CodeCourierUnavailable = "courier_unavailable"
	CodeUnauthorized       = "unauthorized"
	CodeDuplicateRequest   = "duplicate_request"
	CodeRequestInProgress  = "request_in_progress"
	CodeNetwork            = "network_error"
	CodeInternal           = "internal_error"
)

var codeTable = []struct {
	err  error
	code string
}{
	// order matters: more specific sentinels first
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrNotOwner, CodeNotOwner},
	{ErrAlreadyAssigned, CodeAlreadyAssigned},
	{ErrOfferExpired, CodeOfferExpired},
	{ErrCourierUnavailable, CodeCourierUnavailable},
	{ErrDuplicateRequest, CodeDuplicateRequest},
	{ErrRequestInProgress, CodeRequestInProgress},
	{ErrValidation, CodeValidation},
	{ErrNotFound, CodeNotFound},
	{ErrConflict, CodeConflict},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrNetwork, CodeNetwork},
}

// Code returns the wire code for err, CodeInternal for unknown errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode maps a wire code back to its sentinel. Unknown codes yield nil.
func FromCode(code string) error {
	for _, c := range codeTable {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// IsTerminal reports whether retrying the same request can never succeed.
func IsTerminal(err error) bool {
	for _, target := range []error{
		ErrInvalidTransition,
		ErrNotOwner,
		ErrAlreadyAssigned,
		ErrOfferExpired,
		ErrValidation,
		ErrNotFound,
		ErrDuplicateRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
