package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/testutil"
)

func TestSweepExpiresUnpaid(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	stale := h.order(t, 1)
	_, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: stale.ID, Amount: stale.Price})
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	fresh := h.order(t, 2)

	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep, "nothing is past the timeout yet")

	h.clock.Advance(6 * time.Minute)
	rep, err = h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired)

	_, err = h.svc.Reservations.Get(ctx, admin, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.Reservations.Get(ctx, admin, fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.slotReserved(t))
	assert.Equal(t, 1, testutil.Count(t, h.db, `SELECT COUNT(*) FROM payments WHERE status = 'failed'`))
}

func TestSweepReconcilesCapturedPayment(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)
	h.gw.Capture(redirect.Authority)

	h.clock.Advance(time.Hour)
	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reconciled)
	assert.Zero(t, rep.Expired)

	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, got.Status)
}

func TestSweepSkipsWhileGatewayDown(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	_, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.NoError(t, err)

	h.gw.SetUnavailable(true)
	h.clock.Advance(time.Hour)
	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)

	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, got.Status)
}

func TestSweepExpiresWithoutAuthority(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	res := h.order(t, 1)
	h.gw.SetUnavailable(true)
	_, err := h.svc.Payments.Request(ctx, PaymentRequest{StudentID: 1, ReservationID: res.ID, Amount: res.Price})
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	h.clock.Advance(time.Hour)
	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired, "a payment that never reached the gateway can not complete")
	assert.Equal(t, 0, h.slotReserved(t))
}

func TestSweepNoShows(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	ctx := context.Background()
	missed := h.ready(t, 1)
	collected := h.ready(t, 2)
	_, err := h.svc.Delivery.Redeem(ctx, receiver, *collected.DeliveryCode)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.NoShows)

	h.clock.Advance(90 * time.Minute)
	rep, err = h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NoShows)

	got, err := h.svc.Reservations.Get(ctx, admin, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotPickedUp, got.Status)
	st, _, err := h.svc.Trust.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, st.TrustScore)

	rep, err = h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.NoShows)
	st, _, err = h.svc.Trust.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, st.TrustScore)
}

func TestSweepNoShowDisabled(t *testing.T) {
	h := newHarness(t, testutil.MenuSpec{})
	h.svc.Sweeper.policy.NoShowEnabled = false
	ctx := context.Background()
	res := h.ready(t, 1)

	h.clock.Advance(24 * time.Hour)
	rep, err := h.svc.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.NoShows)
	got, err := h.svc.Reservations.Get(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReadyToPickup, got.Status)
}
