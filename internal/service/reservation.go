package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
)

// ReservationService places, cancels and advances reservations.
type ReservationService struct {
	*core
	allocator *Allocator
	trustSvc  *TrustService
	delivery  *DeliveryService
	policy    config.PolicyConfig
}

// OrderRequest describes a new reservation.
type OrderRequest struct {
	StudentID  uint64
	MenuItemID uint64
	TimeSlotID uint64
	Date       string
	HasVoucher bool
}

// PlaceOrder creates a reservation.  Admission, duplicate detection,
// capacity and the insert share one transaction, so a rejected order
// leaves no capacity behind.  A reservation whose voucher covers the
// whole price skips payment and starts in waiting.
func (s *ReservationService) PlaceOrder(ctx context.Context, req OrderRequest) (model.Reservation, error) {
	if req.StudentID == 0 {
		return model.Reservation{}, newError(ErrInvalidInput, "student is required")
	}
	if _, err := parseDate(req.Date); err != nil {
		return model.Reservation{}, err
	}

	var res model.Reservation
	err := repository.InTxRetry(ctx, s.db, 3, func(tx *sql.Tx) error {
		now := s.now()
		if err := s.students.EnsureTx(ctx, tx, req.StudentID, now); err != nil {
			return err
		}
		st, err := s.students.GetTx(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		if st.TrustScore < 0 {
			return newError(ErrTrustScoreBlocked, "trust score %d is below zero", st.TrustScore)
		}

		item, err := s.allocator.OfferTx(ctx, tx, req.MenuItemID, req.Date)
		if err != nil {
			return err
		}
		dup, err := s.reservations.ExistsForMealTx(ctx, tx, req.StudentID, req.Date, item.MealType)
		if err != nil {
			return err
		}
		if dup {
			return newError(ErrDuplicateReservation, "already reserved %s on %s", item.MealType, req.Date)
		}
		if err := s.allocator.ReserveTx(ctx, tx, item, req.TimeSlotID, req.Date); err != nil {
			return err
		}

		food, err := s.catalog.FoodTx(ctx, tx, item.FoodID)
		if err != nil {
			return err
		}
		price := food.Price
		if req.HasVoucher {
			voucher, err := s.catalog.VoucherPriceTx(ctx, tx)
			if err != nil {
				return err
			}
			price = max(0, price-voucher)
		}

		res = model.Reservation{
			StudentID:    req.StudentID,
			MenuItemID:   item.ID,
			TimeSlotID:   req.TimeSlotID,
			ReservedDate: req.Date,
			MealType:     item.MealType,
			HasVoucher:   req.HasVoucher,
			Price:        price,
			Status:       model.StatusPendingPayment,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.reservations.CreateTx(ctx, tx, &res); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return newError(ErrDuplicateReservation, "already reserved %s on %s", item.MealType, req.Date)
			}
			return err
		}
		if price == 0 {
			if _, err := s.delivery.IssueTx(ctx, tx, res.ID); err != nil {
				return err
			}
		}
		res, err = s.reservations.GetTx(ctx, tx, res.ID)
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}

	s.log.Infof("reservation=%d student=%d item=%d date=%s price=%d status=%s",
		res.ID, res.StudentID, res.MenuItemID, res.ReservedDate, res.Price, res.Status)
	actor := model.Actor{ID: req.StudentID, Role: model.RoleStudent}
	ev := s.event(queue.ReservationCreated, res, actor)
	ev.Amount = res.Price
	s.publish(ctx, ev)
	if res.Status == model.StatusWaiting {
		s.publish(ctx, s.event(queue.ReservationConfirmed, res, model.SystemActor))
	}
	return res, nil
}

// Get returns a reservation.  Students only see their own.
func (s *ReservationService) Get(ctx context.Context, actor model.Actor, id uint64) (model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Reservation{}, newError(ErrNotFound, "reservation %d not found", id)
	}
	if err != nil {
		return model.Reservation{}, err
	}
	if actor.Role == model.RoleStudent && res.StudentID != actor.ID {
		return model.Reservation{}, newError(ErrForbidden, "not your reservation")
	}
	return res, nil
}

// ListMine returns a student's reservations.
func (s *ReservationService) ListMine(ctx context.Context, studentID uint64) ([]model.Reservation, error) {
	return s.reservations.ListByStudent(ctx, studentID)
}

// KitchenQueue lists the paid reservations of a day for kitchen staff.
func (s *ReservationService) KitchenQueue(ctx context.Context, f repository.KitchenFilter) ([]model.Reservation, error) {
	if _, err := parseDate(f.Date); err != nil {
		return nil, err
	}
	return s.reservations.ListForKitchen(ctx, f)
}

// Cancel withdraws a student's unpaid reservation.  Pending payments are
// failed and the capacity is returned.
func (s *ReservationService) Cancel(ctx context.Context, actor model.Actor, id uint64) error {
	var res model.Reservation
	err := repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		res, err = s.reservations.GetTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "reservation %d not found", id)
		}
		if err != nil {
			return err
		}
		if actor.Role != model.RoleAdmin && res.StudentID != actor.ID {
			return newError(ErrForbidden, "not your reservation")
		}
		if res.Status != model.StatusPendingPayment {
			return newError(ErrInvalidTransition, "only unpaid reservations can be cancelled, this one is %s", res.Status)
		}
		if _, err := s.payments.FailPendingTx(ctx, tx, res.ID, "reservation cancelled", s.now()); err != nil {
			return err
		}
		return s.cancelTx(ctx, tx, res)
	})
	if errors.Is(err, errCASMiss) {
		return newError(ErrInvalidTransition, "reservation %d changed while cancelling, it is no longer unpaid", id)
	}
	if err != nil {
		return err
	}
	s.log.Infof("reservation=%d cancelled by %s:%d", res.ID, actor.Role, actor.ID)
	s.publish(ctx, s.event(queue.ReservationCancelled, res, actor))
	return nil
}

// cancelTx deletes res, expected to still be in res.Status, and returns
// its capacity.  Payments are kept for audit.
func (s *ReservationService) cancelTx(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	ok, err := s.reservations.DeleteTx(ctx, tx, res.ID, res.Status)
	if err != nil {
		return err
	}
	if !ok {
		return errCASMiss
	}
	return s.allocator.ReleaseTx(ctx, tx, res)
}

// UpdateStatus applies a staff transition.  The target must follow the
// current status in the lifecycle and the actor's role must be allowed
// to perform it.  Marking an order not_picked_up debits the student's
// trust score in the same transaction.
func (s *ReservationService) UpdateStatus(ctx context.Context, actor model.Actor, id uint64, to model.ReservationStatus) (model.Reservation, error) {
	if to == model.StatusPickedUp {
		return model.Reservation{}, newError(ErrInvalidTransition, "picked_up is reached by redeeming the delivery code")
	}

	var (
		res       model.Reservation
		penalized bool
	)
	err := repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		res, err = s.reservations.GetTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "reservation %d not found", id)
		}
		if err != nil {
			return err
		}
		if !model.CanTransition(res.Status, to) {
			return newError(ErrInvalidTransition, "can not move from %s to %s", res.Status, to)
		}
		if !model.RoleMayTransition(actor.Role, res.Status, to) {
			return newError(ErrForbidden, "role %s can not move from %s to %s", actor.Role, res.Status, to)
		}
		ok, err := s.reservations.TransitionTx(ctx, tx, id, res.Status, to, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrInvalidTransition, "reservation %d changed concurrently", id)
		}
		if to == model.StatusNotPickedUp {
			penalized, err = s.trustSvc.PenalizeTx(ctx, tx, res.StudentID, res.ID, s.policy.NoShowPenalty, actor)
			if err != nil {
				return err
			}
		}
		res, err = s.reservations.GetTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}

	s.log.Infof("reservation=%d -> %s by %s:%d", res.ID, res.Status, actor.Role, actor.ID)
	s.publish(ctx, s.event(queue.ReservationStatusChanged, res, actor))
	if penalized {
		s.trustSvc.publishTrust(ctx, res.StudentID, -s.policy.NoShowPenalty, ReasonNoShow, actor)
	}
	return res, nil
}
