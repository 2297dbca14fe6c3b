package service

import (
	"errors"
	"fmt"
)

// Error kinds.  Every error returned by the services wraps exactly one of
// them, so callers switch with errors.Is.
var (
	ErrCapacityExceeded     = errors.New("capacity_exceeded")
	ErrTrustScoreBlocked    = errors.New("trust_score_blocked")
	ErrDuplicateReservation = errors.New("duplicate_reservation")
	ErrForbidden            = errors.New("forbidden")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
	ErrGatewayRejected      = errors.New("gateway_rejected")
	ErrAlreadyProcessed     = errors.New("already_processed")
	ErrAmountMismatch       = errors.New("amount_mismatch")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrAlreadyRedeemed      = errors.New("already_redeemed")
	ErrNotFound             = errors.New("not_found")
	ErrInvalidInput         = errors.New("invalid_input")
	ErrMenuUnavailable      = errors.New("menu_unavailable")
)

var kinds = []error{
	ErrCapacityExceeded, ErrTrustScoreBlocked, ErrDuplicateReservation, ErrForbidden,
	ErrGatewayUnavailable, ErrGatewayRejected, ErrAlreadyProcessed, ErrAmountMismatch,
	ErrInvalidTransition, ErrAlreadyRedeemed, ErrNotFound, ErrInvalidInput, ErrMenuUnavailable,
}

// Error pairs a kind with a human-readable message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind wrapped by err, or nil for unexpected errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the human-readable part of a service error.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Msg
	}
	return "internal error"
}
