package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for development and tests.  It keeps
// the same state machine as the real gateway: IN_BANK -> PAID (payer
// finished) -> VERIFIED (merchant confirmed), with FAILED and REVERSED as
// exits.  With AutoCapture every authority starts out PAID.
type Sandbox struct {
	mu          sync.Mutex
	payments    map[string]*sandboxPayment
	autoCapture bool
	redirectURL string
	unavailable atomic.Bool
	refSeq      atomic.Int64
	calls       atomic.Int64
}

type sandboxPayment struct {
	amount int64
	status Status
	refID  string
}

// NewSandbox returns an empty sandbox.  redirectURL is prefixed to the
// authority to build the payer redirect.
func NewSandbox(autoCapture bool, redirectURL string) *Sandbox {
	return &Sandbox{
		payments:    make(map[string]*sandboxPayment),
		autoCapture: autoCapture,
		redirectURL: redirectURL,
	}
}

// SetUnavailable makes every call fail with ErrUnavailable until reset.
func (s *Sandbox) SetUnavailable(v bool) { s.unavailable.Store(v) }

// Calls returns the number of calls received, including failed ones.
func (s *Sandbox) Calls() int64 { return s.calls.Load() }

// Capture simulates the payer completing the payment.
func (s *Sandbox) Capture(authority string) { s.set(authority, StatusPaid) }

// Decline simulates the payer abandoning or failing the payment.
func (s *Sandbox) Decline(authority string) { s.set(authority, StatusFailed) }

// SetStatus forces the gateway-side status of an authority.
func (s *Sandbox) SetStatus(authority string, st Status) { s.set(authority, st) }

// StatusOf returns the gateway-side status of an authority.
func (s *Sandbox) StatusOf(authority string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[authority]; ok {
		return p.status
	}
	return ""
}

func (s *Sandbox) set(authority string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[authority]; ok {
		p.status = st
	}
}

func (s *Sandbox) enter(op string) error {
	s.calls.Add(1)
	if s.unavailable.Load() {
		return unavailable(op, fmt.Errorf("sandbox offline"))
	}
	return nil
}

func (s *Sandbox) Authorize(_ context.Context, r AuthorizeRequest) (Authorization, error) {
	if err := s.enter("authorize"); err != nil {
		return Authorization{}, err
	}
	if r.Amount <= 0 {
		return Authorization{}, &RejectedError{Code: -9, Message: "amount must be positive"}
	}
	authority := "S" + uuid.NewString()
	st := StatusInBank
	if s.autoCapture {
		st = StatusPaid
	}
	s.mu.Lock()
	s.payments[authority] = &sandboxPayment{amount: r.Amount, status: st}
	s.mu.Unlock()
	return Authorization{Authority: authority, RedirectURL: s.redirectURL + authority}, nil
}

func (s *Sandbox) Confirm(_ context.Context, authority string, amount int64) (Confirmation, error) {
	if err := s.enter("confirm"); err != nil {
		return Confirmation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[authority]
	if !ok {
		return Confirmation{}, &RejectedError{Code: -54, Message: "invalid authority"}
	}
	switch {
	case p.status == StatusVerified:
		return Confirmation{RefID: p.refID, AlreadyVerified: true}, nil
	case p.status != StatusPaid:
		return Confirmation{}, &RejectedError{Code: -51, Message: "payment not successful"}
	case p.amount != amount:
		return Confirmation{}, &RejectedError{Code: -50, Message: "amount mismatch"}
	}
	p.status = StatusVerified
	p.refID = fmt.Sprintf("%d", 100000+s.refSeq.Add(1))
	return Confirmation{RefID: p.refID}, nil
}

func (s *Sandbox) Inquire(_ context.Context, authority string) (Inquiry, error) {
	if err := s.enter("inquire"); err != nil {
		return Inquiry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[authority]
	if !ok {
		return Inquiry{}, &RejectedError{Code: -54, Message: "invalid authority"}
	}
	return Inquiry{Status: p.status}, nil
}

func (s *Sandbox) Reverse(_ context.Context, authority string) error {
	if err := s.enter("reverse"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[authority]
	if !ok {
		return &RejectedError{Code: -54, Message: "invalid authority"}
	}
	switch p.status {
	case StatusPaid, StatusVerified:
		p.status = StatusReversed
		return nil
	case StatusReversed:
		return nil
	}
	return &RejectedError{Code: -63, Message: "nothing to reverse"}
}
