// Package gateway adapts external payment gateways to the four calls the
// reconciliation service needs: authorize, confirm, inquire and reverse.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Status is the gateway's authoritative view of an authority.
type Status string

const (
	// StatusInBank means the payer has not finished at the gateway yet.
	StatusInBank Status = "IN_BANK"
	// StatusPaid means funds were captured but not yet confirmed (verified).
	StatusPaid Status = "PAID"
	// StatusVerified means the merchant confirmed the capture; funds settle.
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
	StatusReversed Status = "REVERSED"
)

// Captured reports whether the payer's funds were taken.
func (s Status) Captured() bool { return s == StatusPaid || s == StatusVerified }

// Pending reports whether the payer may still complete the payment.
func (s Status) Pending() bool { return s == StatusInBank }

// AuthorizeRequest asks the gateway for a new authority.
type AuthorizeRequest struct {
	Amount      int64
	CallbackURL string
	Description string
	OrderID     string
}

// Authorization is the gateway's answer to an authorize call.
type Authorization struct {
	Authority   string
	RedirectURL string
}

// Confirmation is the result of a successful confirm call.
type Confirmation struct {
	RefID string
	// AlreadyVerified is set when the gateway had confirmed this authority
	// before; the call is idempotent.
	AlreadyVerified bool
}

// Inquiry is the result of an inquire call.
type Inquiry struct {
	Status Status
}

// Gateway is implemented by every payment gateway adapter.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	Confirm(ctx context.Context, authority string, amount int64) (Confirmation, error)
	Inquire(ctx context.Context, authority string) (Inquiry, error)
	Reverse(ctx context.Context, authority string) error
}

// ErrUnavailable marks transient failures: timeouts, transport errors,
// 5xx answers and an open circuit.  The call may be retried.
var ErrUnavailable = errors.New("payment gateway unavailable")

// RejectedError is a definitive refusal by the gateway.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment gateway rejected the request: code=%d %s", e.Code, e.Message)
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
