package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meal-reservation/internal/gateway"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/testutil"
)

func TestPaymentHappyPath(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)

	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	assert.NotEmpty(t, redirect.Authority)
	assert.Equal(t, "https://sandbox.test/StartPay/"+redirect.Authority, redirect.RedirectURL)
	assert.Equal(t, model.PaymentPending, redirect.Payment.Status)

	h.gw.Capture(redirect.Authority)
	out, err := h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.NoError(t, err)
	assert.False(t, out.AlreadyProcessed)
	assert.Equal(t, model.PaymentPaid, out.Payment.Status)
	require.NotNil(t, out.Payment.RefID)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, model.StatusWaiting, out.Reservation.Status)
	require.NotNil(t, out.Reservation.DeliveryCode)
	assert.Equal(t, gateway.StatusVerified, h.gw.StatusOf(redirect.Authority))
	assert.Contains(t, h.events.types(), queue.ReservationConfirmed)
}

func TestVerifyTwiceTransitionsOnce(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect := h.pay(t, res)

	first, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	calls := h.gw.Calls()

	out, err := h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)
	assert.Equal(t, calls, h.gw.Calls(), "a settled payment is not confirmed again")

	second, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, *first.DeliveryCode, *second.DeliveryCode)

	confirmed := 0
	for _, typ := range h.events.types() {
		if typ == queue.ReservationConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)

	_, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 2, ReservationID: res.ID, Amount: res.Price})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price - 1})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	_, err = h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: 9999, Amount: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, testutil.Count(t, h.db, `SELECT COUNT(*) FROM payments`))

	h.pay(t, res)
	_, err = h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	assert.ErrorIs(t, err, ErrInvalidTransition, "paid reservations take no new payment")
}

func TestFailedPaymentReleasesCapacity(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{SlotCapacity: 1})
	ctx := context.Background()
	res := h.order(t, 1)

	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Decline(redirect.Authority)

	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "NOK")
	require.ErrorIs(t, err, ErrGatewayRejected)

	assert.Equal(t, 0, h.slotReserved(t))
	assert.Equal(t, 0, h.dayReserved(t))
	pay, err := h.svc.Payments.payments.GetByAuthority(ctx, redirect.Authority)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, pay.Status, "the payment is kept for audit")

	// The freed unit can be taken again.
	h.order(t, 2)

	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	assert.ErrorIs(t, err, ErrGatewayRejected, "a failed payment stays failed")
}

func TestFailedPaymentKeepsReservationWithLivePayment(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)

	first, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	second, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)

	_, err = h.svc.Payments.Verify(ctx, first.Authority, "NOK")
	require.ErrorIs(t, err, ErrGatewayRejected)
	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, got.Status)

	h.gw.Capture(second.Authority)
	out, err := h.svc.Payments.Verify(ctx, second.Authority, "OK")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, out.Reservation.Status)
}

func TestVerifyGatewayUnavailableLeavesPending(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Capture(redirect.Authority)

	h.gw.SetUnavailable(true)
	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, got.Status)
	pay, err := h.svc.Payments.payments.GetByAuthority(ctx, redirect.Authority)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, pay.Status)

	h.gw.SetUnavailable(false)
	out, err := h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, out.Reservation.Status)
}

func TestRequestGatewayUnavailable(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)

	h.gw.SetUnavailable(true)
	_, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	assert.Equal(t, 1, testutil.Count(t, h.db, `SELECT COUNT(*) FROM payments WHERE status = 'pending' AND authority IS NULL`))
	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, got.Status)
}

func TestVerifyAmountMismatchFlagsReview(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Capture(redirect.Authority)

	_, err = h.db.Exec(`UPDATE reservations SET price = price + 1000 WHERE id = ?`, res.ID)
	require.NoError(t, err)

	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.ErrorIs(t, err, ErrAmountMismatch)
	pay, err := h.svc.Payments.payments.GetByAuthority(ctx, redirect.Authority)
	require.NoError(t, err)
	assert.True(t, pay.NeedsReview)
	assert.Equal(t, model.PaymentPending, pay.Status)
	assert.Equal(t, gateway.StatusPaid, h.gw.StatusOf(redirect.Authority), "flagged payments are not confirmed")

	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestInquireSelfHeals(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)

	out, err := h.svc.Payments.Inquire(ctx, redirect.Authority, false)
	require.NoError(t, err)
	assert.Equal(t, ActionPending, out.Action)
	assert.Equal(t, gateway.StatusInBank, out.GatewayStatus)

	// The payer finished but the callback never arrived.
	h.gw.Capture(redirect.Authority)
	out, err = h.svc.Payments.Inquire(ctx, redirect.Authority, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSettled, out.Action)
	assert.Equal(t, model.PaymentPaid, out.Payment.Status)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, model.StatusWaiting, out.Reservation.Status)

	out, err = h.svc.Payments.Inquire(ctx, redirect.Authority, false)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)
}

func TestInquireAdvancesPaidReservation(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect := h.pay(t, res)

	// Simulate a reservation left behind its payment.
	_, err := h.db.Exec(`UPDATE reservations SET status = 'pending_payment', delivery_code = NULL WHERE id = ?`, res.ID)
	require.NoError(t, err)

	out, err := h.svc.Payments.Inquire(ctx, redirect.Authority, false)
	require.NoError(t, err)
	assert.Equal(t, ActionAdvanced, out.Action)
	assert.Equal(t, model.StatusWaiting, out.Reservation.Status)
	assert.NotNil(t, out.Reservation.DeliveryCode)
}

func TestInquireDeclined(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Decline(redirect.Authority)

	out, err := h.svc.Payments.Inquire(ctx, redirect.Authority, false)
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, out.Action)
	assert.Equal(t, model.PaymentFailed, out.Payment.Status)
	assert.Nil(t, out.Reservation)
	assert.Equal(t, 0, h.slotReserved(t))
}

func TestInquireUnwindsReversal(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect := h.pay(t, res)

	out, err := h.svc.Payments.Inquire(ctx, redirect.Authority, true)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action, "verified payments are left alone")

	h.gw.SetStatus(redirect.Authority, gateway.StatusReversed)
	out, err = h.svc.Payments.Inquire(ctx, redirect.Authority, true)
	require.NoError(t, err)
	assert.Equal(t, ActionReversed, out.Action)
	assert.True(t, out.Reversed)
	assert.Equal(t, "payment reversed at the gateway", out.Message)
	assert.Equal(t, model.PaymentRefunded, out.Payment.Status)
	assert.Nil(t, out.Reservation, "a waiting reservation is cancelled")
	assert.Equal(t, 0, h.slotReserved(t))
	assert.Contains(t, h.events.types(), queue.PaymentRefunded)
}

func TestInquireReversalAfterPreparingNeedsReview(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect := h.pay(t, res)
	_, err := h.svc.Reservations.UpdateStatus(ctx, chef, res.ID, model.StatusPreparing)
	require.NoError(t, err)

	h.gw.SetStatus(redirect.Authority, gateway.StatusReversed)
	out, err := h.svc.Payments.Inquire(ctx, redirect.Authority, true)
	require.NoError(t, err)
	assert.Equal(t, ActionReview, out.Action)
	assert.True(t, out.Reversed, "the payer is refunded even though the kitchen started")
	assert.True(t, out.Payment.NeedsReview)
	require.NotNil(t, out.Reservation)
	assert.Equal(t, model.StatusPreparing, out.Reservation.Status)
}

func TestVerifyAfterReservationExpired(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)

	expired, err := h.svc.Payments.Expire(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, expired)

	h.gw.Capture(redirect.Authority)
	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	assert.ErrorIs(t, err, ErrGatewayRejected, "the timeout already failed the payment")
	assert.Equal(t, gateway.StatusPaid, h.gw.StatusOf(redirect.Authority), "unconfirmed funds go back to the payer")
}

func TestSettleReversesWhenReservationVanished(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Capture(redirect.Authority)
	_, err = h.gw.Confirm(ctx, redirect.Authority, res.Price)
	require.NoError(t, err)

	pay, err := h.svc.Payments.payments.GetByAuthority(ctx, redirect.Authority)
	require.NoError(t, err)
	_, err = h.db.Exec(`DELETE FROM reservations WHERE id = ?`, res.ID)
	require.NoError(t, err)

	_, err = h.svc.Payments.settle(ctx, pay, "100001")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, gateway.StatusReversed, h.gw.StatusOf(redirect.Authority))
	pay, err = h.svc.Payments.payments.GetByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, pay.Status)
}
