package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/model"
)

// Sweeper applies the time-based rules: unpaid reservations past the
// payment timeout are reconciled with the gateway and then cancelled,
// and ready orders past the no-show cutoff are marked not_picked_up.
type Sweeper struct {
	*core
	pay    *PaymentService
	orders *ReservationService
	policy config.PolicyConfig
}

// SweepReport counts what a sweep did.
type SweepReport struct {
	Reconciled int `json:"reconciled"`
	Expired    int `json:"expired"`
	NoShows    int `json:"no_shows"`
	Skipped    int `json:"skipped"`
}

// RunOnce performs a single sweep.  Per-reservation failures are logged
// and counted as skipped; only listing errors abort the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.now()

	stale, err := s.reservations.ListStale(ctx, model.StatusPendingPayment, now.Add(-s.policy.PaymentTimeout), s.policy.SweepBatch)
	if err != nil {
		return rep, err
	}
	for _, res := range stale {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		s.expire(ctx, res, &rep)
	}

	if !s.policy.NoShowEnabled {
		return rep, nil
	}
	overdue, err := s.reservations.ListStale(ctx, model.StatusReadyToPickup, now.Add(-s.policy.NoShowCutoff), s.policy.SweepBatch)
	if err != nil {
		return rep, err
	}
	for _, res := range overdue {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		_, err := s.orders.UpdateStatus(ctx, model.SystemActor, res.ID, model.StatusNotPickedUp)
		switch {
		case err == nil:
			rep.NoShows++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
			// redeemed or marked by staff since listing
		default:
			rep.Skipped++
			s.log.Errorf("sweep no-show reservation=%d: %v", res.ID, err)
		}
	}
	return rep, nil
}

// expire asks the gateway about every pending payment of res before
// cancelling it, so that a payer who completed payment is not cancelled.
// While the gateway is unreachable the reservation is left for the next
// sweep.
func (s *Sweeper) expire(ctx context.Context, res model.Reservation, rep *SweepReport) {
	payments, err := s.payments.ListByReservation(ctx, res.ID)
	if err != nil {
		rep.Skipped++
		s.log.Errorf("sweep reservation=%d: %v", res.ID, err)
		return
	}
	for _, p := range payments {
		if p.Status != model.PaymentPending || p.Authority == nil {
			continue
		}
		if p.NeedsReview {
			rep.Skipped++
			return
		}
		out, err := s.pay.Inquire(ctx, *p.Authority, false)
		if errors.Is(err, ErrGatewayUnavailable) {
			rep.Skipped++
			s.log.Warnf("sweep reservation=%d: gateway unavailable, retrying later", res.ID)
			return
		}
		if err != nil {
			s.log.Warnf("sweep reservation=%d payment=%d: %v", res.ID, p.ID, err)
		}
		if out.Action == ActionSettled {
			rep.Reconciled++
			return
		}
	}

	expired, err := s.pay.Expire(ctx, res.ID)
	if err != nil {
		rep.Skipped++
		s.log.Errorf("sweep expire reservation=%d: %v", res.ID, err)
		return
	}
	if expired {
		rep.Expired++
		s.log.Infof("reservation=%d expired unpaid", res.ID)
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := s.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorf("sweep: %v", err)
				continue
			}
			if rep != (SweepReport{}) {
				s.log.Infof("sweep: reconciled=%d expired=%d no_shows=%d skipped=%d",
					rep.Reconciled, rep.Expired, rep.NoShows, rep.Skipped)
			}
		}
	}
}
