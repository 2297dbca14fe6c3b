package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/meal-reservation/internal/gateway"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
)

// Inquiry actions.
const (
	ActionNone     = "none"
	ActionPending  = "pending"
	ActionSettled  = "settled"
	ActionFailed   = "failed"
	ActionAdvanced = "advanced"
	ActionReversed = "reversed"
	ActionReview   = "needs_review"
)

var errReservationGone = errors.New("reservation no longer awaiting payment")

// PaymentService drives payments through the gateway and keeps the
// reservation lifecycle in step with them.
type PaymentService struct {
	*core
	gw          gateway.Gateway
	orders      *ReservationService
	delivery    *DeliveryService
	callbackURL string
}

// PaymentRequest starts a payment for a reservation.
type PaymentRequest struct {
	StudentID     uint64
	ReservationID uint64
	Amount        int64
	CallbackURL   string
}

// PaymentRedirect tells the client where to send the payer.
type PaymentRedirect struct {
	Payment     model.Payment `json:"payment"`
	Authority   string        `json:"authority"`
	RedirectURL string        `json:"redirect_url"`
}

// VerifyResult is the outcome of a payment callback.
type VerifyResult struct {
	Payment          model.Payment      `json:"payment"`
	Reservation      *model.Reservation `json:"reservation,omitempty"`
	AlreadyProcessed bool               `json:"already_processed"`
}

// InquiryResult is the outcome of a reconciliation.  Reversed is set when
// the inquiry returned funds to the payer.
type InquiryResult struct {
	GatewayStatus gateway.Status     `json:"gateway_status"`
	Action        string             `json:"action"`
	Message       string             `json:"message"`
	Reversed      bool               `json:"reversed"`
	Payment       model.Payment      `json:"payment"`
	Reservation   *model.Reservation `json:"reservation,omitempty"`
}

var inquiryMessages = map[string]string{
	ActionNone:     "payment is already reconciled",
	ActionPending:  "payment has not completed at the gateway yet",
	ActionSettled:  "captured payment settled and reservation confirmed",
	ActionFailed:   "gateway did not capture the payment; payment failed",
	ActionAdvanced: "paid reservation advanced to waiting",
	ActionReversed: "payment reversed at the gateway",
	ActionReview:   "payment needs manual review",
}

// Request creates a pending payment and obtains a gateway authority for
// it.  The amount must equal the reservation price.  When the gateway is
// unreachable the payment stays pending and the reservation waits for the
// payment timeout.
func (p *PaymentService) Request(ctx context.Context, req PaymentRequest) (PaymentRedirect, error) {
	var pay model.Payment
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		res, err := p.reservations.GetTx(ctx, tx, req.ReservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "reservation %d not found", req.ReservationID)
		}
		if err != nil {
			return err
		}
		if res.StudentID != req.StudentID {
			return newError(ErrForbidden, "not your reservation")
		}
		if res.Status != model.StatusPendingPayment {
			return newError(ErrInvalidTransition, "reservation is %s, not awaiting payment", res.Status)
		}
		if req.Amount != res.Price {
			return newError(ErrAmountMismatch, "amount %d does not match price %d", req.Amount, res.Price)
		}
		now := p.now()
		pay = model.Payment{
			ReservationID: res.ID,
			UserID:        req.StudentID,
			Amount:        res.Price,
			Status:        model.PaymentPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return p.payments.CreateTx(ctx, tx, &pay)
	})
	if err != nil {
		return PaymentRedirect{}, err
	}

	callback := req.CallbackURL
	if callback == "" {
		callback = p.callbackURL
	}
	auth, err := p.gw.Authorize(ctx, gateway.AuthorizeRequest{
		Amount:      pay.Amount,
		CallbackURL: callback,
		Description: fmt.Sprintf("Meal reservation #%d", pay.ReservationID),
		OrderID:     strconv.FormatUint(pay.ID, 10),
	})
	if err != nil {
		if gateway.IsRejected(err) {
			if ferr := p.failPayment(ctx, pay, err.Error()); ferr != nil {
				return PaymentRedirect{}, ferr
			}
		} else {
			p.log.Warnf("authorize payment=%d: %v", pay.ID, err)
		}
		return PaymentRedirect{}, gatewayError(err)
	}
	if err := p.payments.SetAuthority(ctx, pay.ID, auth.Authority, p.now()); err != nil {
		return PaymentRedirect{}, err
	}
	pay.Authority = &auth.Authority
	p.log.Infof("payment=%d reservation=%d authority=%s amount=%d", pay.ID, pay.ReservationID, auth.Authority, pay.Amount)
	return PaymentRedirect{Payment: pay, Authority: auth.Authority, RedirectURL: auth.RedirectURL}, nil
}

// Verify handles the payer's return from the gateway.  A payment that is
// already paid is reported with AlreadyProcessed and changes nothing, so
// duplicate callbacks transition the reservation once.
func (p *PaymentService) Verify(ctx context.Context, authority, status string) (VerifyResult, error) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return VerifyResult{}, newError(ErrInvalidInput, "authority is required")
	}
	pay, err := p.payments.GetByAuthority(ctx, authority)
	if errors.Is(err, repository.ErrNotFound) {
		return VerifyResult{}, newError(ErrNotFound, "unknown authority")
	}
	if err != nil {
		return VerifyResult{}, err
	}

	switch pay.Status {
	case model.PaymentPaid:
		return p.result(ctx, pay.ID, true), nil
	case model.PaymentFailed, model.PaymentRefunded:
		return VerifyResult{Payment: pay}, newError(ErrGatewayRejected, "payment is already %s", pay.Status)
	}
	if pay.NeedsReview {
		return VerifyResult{Payment: pay}, newError(ErrAmountMismatch, "payment is held for manual review")
	}
	if !strings.EqualFold(strings.TrimSpace(status), "OK") {
		if _, err := p.failAndCancel(ctx, pay, "payment was cancelled or declined"); err != nil {
			return VerifyResult{}, err
		}
		return p.result(ctx, pay.ID, false), newError(ErrGatewayRejected, "payment was not completed")
	}
	return p.confirm(ctx, pay)
}

// confirm verifies a captured payment with the gateway and settles it.
func (p *PaymentService) confirm(ctx context.Context, pay model.Payment) (VerifyResult, error) {
	res, err := p.reservations.GetByID(ctx, pay.ReservationID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return VerifyResult{}, err
	}
	if err != nil || res.Status != model.StatusPendingPayment {
		// Unconfirmed captures are returned to the payer by the gateway.
		if err := p.failPayment(ctx, pay, errReservationGone.Error()); err != nil {
			return VerifyResult{}, err
		}
		out := p.result(ctx, pay.ID, false)
		if out.Payment.Status == model.PaymentPaid {
			// A concurrent callback or inquiry settled it first.
			out.AlreadyProcessed = true
			return out, nil
		}
		return out, newError(ErrInvalidTransition, "reservation %d is no longer awaiting payment", pay.ReservationID)
	}
	if pay.Amount != res.Price {
		msg := fmt.Sprintf("amount %d does not match price %d", pay.Amount, res.Price)
		if err := p.payments.FlagReview(ctx, pay.ID, msg, p.now()); err != nil {
			return VerifyResult{}, err
		}
		p.log.Warnf("payment=%d flagged for review: %s", pay.ID, msg)
		return p.result(ctx, pay.ID, false), newError(ErrAmountMismatch, "%s", msg)
	}

	conf, err := p.gw.Confirm(ctx, *pay.Authority, pay.Amount)
	if err != nil {
		if gateway.IsRejected(err) {
			if _, ferr := p.failAndCancel(ctx, pay, err.Error()); ferr != nil {
				return VerifyResult{}, ferr
			}
			return p.result(ctx, pay.ID, false), gatewayError(err)
		}
		p.log.Warnf("confirm payment=%d: %v", pay.ID, err)
		return VerifyResult{Payment: pay}, gatewayError(err)
	}
	return p.settle(ctx, pay, conf.RefID)
}

// settle marks the payment paid and moves the reservation to waiting in
// one transaction.  If the reservation stopped awaiting payment in the
// meantime the captured funds are reversed.
func (p *PaymentService) settle(ctx context.Context, pay model.Payment, refID string) (VerifyResult, error) {
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		ok, err := p.payments.MarkPaidTx(ctx, tx, pay.ID, refID, p.now())
		if err != nil {
			return err
		}
		if !ok {
			return errCASMiss
		}
		issued, err := p.delivery.IssueTx(ctx, tx, pay.ReservationID)
		if err != nil {
			return err
		}
		if !issued {
			return errReservationGone
		}
		return nil
	})
	switch {
	case errors.Is(err, errCASMiss):
		cur, err := p.payments.GetByID(ctx, pay.ID)
		if err != nil {
			return VerifyResult{}, err
		}
		switch {
		case cur.Status == model.PaymentPaid:
			return p.result(ctx, cur.ID, true), nil
		case cur.Status == model.PaymentFailed:
			// Cancelled or expired while the gateway verified the funds.
			return p.reverse(ctx, cur)
		case cur.NeedsReview:
			return p.result(ctx, cur.ID, false), newError(ErrAmountMismatch, "payment is held for manual review")
		}
		return VerifyResult{Payment: cur}, newError(ErrGatewayRejected, "payment is %s", cur.Status)
	case errors.Is(err, errReservationGone):
		return p.reverse(ctx, pay)
	case err != nil:
		return VerifyResult{}, err
	}

	out := p.result(ctx, pay.ID, false)
	p.log.Infof("payment=%d paid ref=%s reservation=%d", pay.ID, refID, pay.ReservationID)
	if out.Reservation != nil {
		ev := p.event(queue.ReservationConfirmed, *out.Reservation, model.SystemActor)
		ev.PaymentID = pay.ID
		ev.Amount = pay.Amount
		p.publish(ctx, ev)
	}
	return out, nil
}

// reverse returns captured funds of a payment whose reservation can no
// longer be confirmed.  A failed reversal leaves the payment for review.
func (p *PaymentService) reverse(ctx context.Context, pay model.Payment) (VerifyResult, error) {
	reversed, err := p.refund(ctx, pay, errReservationGone.Error())
	if err != nil {
		return VerifyResult{}, err
	}
	if !reversed {
		return p.result(ctx, pay.ID, false), newError(ErrInvalidTransition, "reservation is no longer awaiting payment; payment held for review")
	}
	return p.result(ctx, pay.ID, false), newError(ErrInvalidTransition, "reservation is no longer awaiting payment; payment reversed")
}

// refund reverses pay at the gateway and records it as refunded.  When the
// gateway refuses, the payment is flagged for review and refund reports
// false.
func (p *PaymentService) refund(ctx context.Context, pay model.Payment, reason string) (bool, error) {
	if err := p.gw.Reverse(ctx, *pay.Authority); err != nil {
		msg := "reverse failed: " + err.Error()
		if ferr := p.payments.FlagReview(ctx, pay.ID, msg, p.now()); ferr != nil {
			return false, ferr
		}
		p.log.Errorf("payment=%d: %s", pay.ID, msg)
		return false, nil
	}
	var refunded bool
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		refunded, err = p.payments.MarkRefundedTx(ctx, tx, pay.ID, reason, p.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if refunded {
		p.log.Warnf("payment=%d reversed: %s", pay.ID, reason)
		p.publishRefund(ctx, pay, reason)
	}
	return true, nil
}

// reclaim returns funds the gateway still holds for a failed payment.
func (p *PaymentService) reclaim(ctx context.Context, pay model.Payment, st gateway.Status) (string, bool, error) {
	if !st.Captured() || pay.Authority == nil {
		return ActionNone, false, nil
	}
	reversed, err := p.refund(ctx, pay, "captured after payment "+string(pay.Status))
	if err != nil {
		return ActionNone, false, err
	}
	if !reversed {
		return ActionReview, false, nil
	}
	return ActionReversed, true, nil
}

// Inquire reconciles a payment with the gateway's view of its authority.
// Captured but unrecorded payments are settled, declined ones are failed
// and, with checkReversal, payments the gateway no longer holds as
// verified are unwound.
func (p *PaymentService) Inquire(ctx context.Context, authority string, checkReversal bool) (InquiryResult, error) {
	pay, err := p.payments.GetByAuthority(ctx, strings.TrimSpace(authority))
	if errors.Is(err, repository.ErrNotFound) {
		return InquiryResult{}, newError(ErrNotFound, "unknown authority")
	}
	if err != nil {
		return InquiryResult{}, err
	}
	inq, err := p.gw.Inquire(ctx, *pay.Authority)
	if err != nil {
		return InquiryResult{Payment: pay}, gatewayError(err)
	}

	out := InquiryResult{GatewayStatus: inq.Status, Action: ActionNone}
	switch pay.Status {
	case model.PaymentPending:
		switch {
		case pay.NeedsReview:
			out.Action = ActionReview
		case inq.Status.Captured():
			vr, err := p.confirm(ctx, pay)
			switch {
			case err == nil && vr.AlreadyProcessed:
				out.Action = ActionNone
			case err == nil:
				out.Action = ActionSettled
			case vr.Payment.Status == model.PaymentFailed:
				out.Action, out.Reversed, err = p.reclaim(ctx, vr.Payment, inq.Status)
				if err != nil {
					return InquiryResult{}, err
				}
			default:
				return p.inquiryResult(ctx, out, pay.ID), err
			}
		case inq.Status == gateway.StatusFailed || inq.Status == gateway.StatusReversed:
			if _, err := p.failAndCancel(ctx, pay, "gateway reports "+string(inq.Status)); err != nil {
				return InquiryResult{}, err
			}
			out.Action = ActionFailed
		default:
			out.Action = ActionPending
		}
	case model.PaymentPaid:
		if checkReversal && inq.Status != gateway.StatusVerified {
			out.Action, err = p.unwind(ctx, pay, inq.Status)
			out.Reversed = out.Action != ActionNone
		} else {
			out.Action, err = p.heal(ctx, pay)
		}
		if err != nil {
			return InquiryResult{}, err
		}
	case model.PaymentFailed:
		out.Action, out.Reversed, err = p.reclaim(ctx, pay, inq.Status)
		if err != nil {
			return InquiryResult{}, err
		}
	}
	return p.inquiryResult(ctx, out, pay.ID), nil
}

// heal advances a reservation still awaiting payment although its payment
// is recorded as paid.
func (p *PaymentService) heal(ctx context.Context, pay model.Payment) (string, error) {
	var issued bool
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		issued, err = p.delivery.IssueTx(ctx, tx, pay.ReservationID)
		return err
	})
	if err != nil || !issued {
		return ActionNone, err
	}
	p.log.Infof("payment=%d: advanced reservation=%d", pay.ID, pay.ReservationID)
	if res, err := p.reservations.GetByID(ctx, pay.ReservationID); err == nil {
		p.publish(ctx, p.event(queue.ReservationConfirmed, res, model.SystemActor))
	}
	return ActionAdvanced, nil
}

// unwind refunds a paid payment the gateway reports as not verified.  A
// reservation the kitchen has not started is cancelled; later ones are
// flagged for review.
func (p *PaymentService) unwind(ctx context.Context, pay model.Payment, st gateway.Status) (string, error) {
	if st == gateway.StatusPaid {
		if err := p.gw.Reverse(ctx, *pay.Authority); err != nil {
			return ActionNone, gatewayError(err)
		}
	}
	reason := "gateway reports " + string(st)
	var (
		res                      model.Reservation
		refunded, cancelled, rev bool
	)
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		refunded, err = p.payments.MarkRefundedTx(ctx, tx, pay.ID, reason, p.now())
		if err != nil || !refunded {
			return err
		}
		res, err = p.reservations.GetTx(ctx, tx, pay.ReservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		switch res.Status {
		case model.StatusPendingPayment, model.StatusWaiting:
			cancelled = true
			return p.orders.cancelTx(ctx, tx, res)
		default:
			rev = true
			return p.payments.FlagReviewTx(ctx, tx, pay.ID, fmt.Sprintf("reversed after reservation reached %s", res.Status), p.now())
		}
	})
	if err != nil || !refunded {
		return ActionNone, err
	}
	p.log.Warnf("payment=%d reversed: %s", pay.ID, reason)
	p.publishRefund(ctx, pay, reason)
	if cancelled {
		p.publish(ctx, p.event(queue.ReservationCancelled, res, model.SystemActor))
	}
	if rev {
		return ActionReview, nil
	}
	return ActionReversed, nil
}

// Expire cancels a reservation whose payment window has passed.  Its
// pending payments are failed.  Reservations with a payment under review
// are left alone.
func (p *PaymentService) Expire(ctx context.Context, reservationID uint64) (bool, error) {
	var res model.Reservation
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		res, err = p.reservations.GetTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != model.StatusPendingPayment {
			return errCASMiss
		}
		review, err := p.payments.HasReviewTx(ctx, tx, res.ID)
		if err != nil {
			return err
		}
		if review {
			return errCASMiss
		}
		if _, err := p.payments.FailPendingTx(ctx, tx, res.ID, "payment timeout", p.now()); err != nil {
			return err
		}
		return p.orders.cancelTx(ctx, tx, res)
	})
	if errors.Is(err, errCASMiss) || errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ev := p.event(queue.ReservationCancelled, res, model.SystemActor)
	ev.Detail = "payment timeout"
	p.publish(ctx, ev)
	return true, nil
}

// failPayment marks pay failed without touching its reservation.
func (p *PaymentService) failPayment(ctx context.Context, pay model.Payment, msg string) error {
	return repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		_, err := p.payments.MarkFailedTx(ctx, tx, pay.ID, msg, p.now())
		return err
	})
}

// failAndCancel fails pay and cancels its reservation unless another
// payment of the reservation may still complete.
func (p *PaymentService) failAndCancel(ctx context.Context, pay model.Payment, msg string) (bool, error) {
	var (
		res       model.Reservation
		cancelled bool
	)
	err := repository.InTx(ctx, p.db, func(tx *sql.Tx) error {
		now := p.now()
		ok, err := p.payments.MarkFailedTx(ctx, tx, pay.ID, msg, now)
		if err != nil || !ok {
			return err
		}
		res, err = p.reservations.GetTx(ctx, tx, pay.ReservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status != model.StatusPendingPayment {
			return nil
		}
		live, err := p.payments.HasLiveTx(ctx, tx, res.ID, pay.ID)
		if err != nil || live {
			return err
		}
		if _, err := p.payments.FailPendingTx(ctx, tx, res.ID, msg, now); err != nil {
			return err
		}
		cancelled = true
		return p.orders.cancelTx(ctx, tx, res)
	})
	if err != nil {
		return false, err
	}
	p.log.Infof("payment=%d failed: %s", pay.ID, msg)
	if cancelled {
		ev := p.event(queue.ReservationCancelled, res, model.SystemActor)
		ev.PaymentID = pay.ID
		ev.Detail = msg
		p.publish(ctx, ev)
	}
	return cancelled, nil
}

func (p *PaymentService) result(ctx context.Context, paymentID uint64, already bool) VerifyResult {
	out := VerifyResult{AlreadyProcessed: already}
	if pay, err := p.payments.GetByID(ctx, paymentID); err == nil {
		out.Payment = pay
		if res, err := p.reservations.GetByID(ctx, pay.ReservationID); err == nil {
			out.Reservation = &res
		}
	}
	return out
}

func (p *PaymentService) inquiryResult(ctx context.Context, out InquiryResult, paymentID uint64) InquiryResult {
	vr := p.result(ctx, paymentID, false)
	out.Payment = vr.Payment
	out.Reservation = vr.Reservation
	out.Message = inquiryMessages[out.Action]
	return out
}

func (p *PaymentService) publishRefund(ctx context.Context, pay model.Payment, reason string) {
	ev := queue.NewEvent(queue.PaymentRefunded, p.now())
	ev.ReservationID = pay.ReservationID
	ev.StudentID = pay.UserID
	ev.PaymentID = pay.ID
	ev.Amount = pay.Amount
	ev.Detail = reason
	p.publish(ctx, ev)
}

func gatewayError(err error) error {
	if gateway.IsRejected(err) {
		return wrapError(ErrGatewayRejected, err, "payment gateway rejected the request")
	}
	return wrapError(ErrGatewayUnavailable, err, "payment gateway is unavailable, try again later")
}
