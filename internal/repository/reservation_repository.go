package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table.  Status
// changes are conditional on the current status so that concurrent
// writers can not both apply a transition.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `id, student_id, menu_item_id, time_slot_id, reserved_date, meal_type, has_voucher, price,
	status, delivery_code, version, ready_at, picked_up_at, created_at, updated_at`

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		res            model.Reservation
		meal, status   string
		code           sql.NullString
		ready, pickedUp sql.NullTime
	)
	err := row.Scan(&res.ID, &res.StudentID, &res.MenuItemID, &res.TimeSlotID, &res.ReservedDate, &meal,
		&res.HasVoucher, &res.Price, &status, &code, &res.Version, &ready, &pickedUp, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	res.MealType = model.MealType(meal)
	res.Status = model.ReservationStatus(status)
	if code.Valid {
		c := code.String
		res.DeliveryCode = &c
	}
	if ready.Valid {
		t := ready.Time.UTC()
		res.ReadyAt = &t
	}
	if pickedUp.Valid {
		t := pickedUp.Time.UTC()
		res.PickedUpAt = &t
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CreateTx inserts res and fills in its ID.  A second reservation for the
// same (student, date, meal) violates the unique key and yields
// ErrDuplicate.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(student_id, menu_item_id, time_slot_id, reserved_date, meal_type, has_voucher, price, status,
		 delivery_code, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	var code any
	if res.DeliveryCode != nil {
		code = *res.DeliveryCode
	}
	result, err := tx.ExecContext(ctx, q, res.StudentID, res.MenuItemID, res.TimeSlotID, res.ReservedDate,
		string(res.MealType), res.HasVoucher, res.Price, string(res.Status), code, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// ExistsForMealTx reports whether the student already holds a reservation
// for the meal on date.
func (r *ReservationRepo) ExistsForMealTx(ctx context.Context, tx *sql.Tx, studentID uint64, date string, meal model.MealType) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE student_id = ? AND reserved_date = ? AND meal_type = ?`,
		studentID, date, string(meal)).Scan(&n)
	return n > 0, err
}

// GetTx loads a reservation inside tx.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id))
	return res, notFound(err)
}

// GetByID loads a reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id))
	return res, notFound(err)
}

// GetByDeliveryCodeTx loads the reservation holding code.
func (r *ReservationRepo) GetByDeliveryCodeTx(ctx context.Context, tx *sql.Tx, code string) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE delivery_code = ?`, code))
	return res, notFound(err)
}

// ListByStudent returns a student's reservations, newest date first.
func (r *ReservationRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE student_id = ? ORDER BY reserved_date DESC, id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// KitchenFilter narrows the kitchen queue.  Empty fields match everything.
type KitchenFilter struct {
	Date   string
	Meal   model.MealType
	Status model.ReservationStatus
}

// ListForKitchen returns paid reservations of a day ordered by pickup
// window, for the kitchen and the pickup counter.
func (r *ReservationRepo) ListForKitchen(ctx context.Context, f KitchenFilter) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations WHERE reserved_date = ? AND status <> ?`
	args := []any{f.Date, string(model.StatusPendingPayment)}
	if f.Meal != "" {
		q += ` AND meal_type = ?`
		args = append(args, string(f.Meal))
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY time_slot_id, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// TransitionTx moves a reservation from -> to if it is still in from.  It
// stamps ready_at and picked_up_at for the matching targets.  The boolean
// is false when the reservation was missing or in another status.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.ReservationStatus, now time.Time) (bool, error) {
	q := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ?`
	args := []any{string(to), now}
	switch to {
	case model.StatusReadyToPickup:
		q += `, ready_at = ?`
		args = append(args, now)
	case model.StatusPickedUp:
		q += `, picked_up_at = ?`
		args = append(args, now)
	}
	q += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ConfirmTx moves a reservation from pending_payment to waiting and
// assigns its delivery code.  A code collision yields ErrDuplicate.
func (r *ReservationRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, code string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, delivery_code = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusWaiting), code, now, id, string(model.StatusPendingPayment))
	if err != nil {
		if isDuplicate(err) {
			return false, ErrDuplicate
		}
		return false, err
	}
	return affected(res)
}

// DeleteTx removes a reservation that is still in status.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND status = ?`, id, string(status))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ListStale returns up to limit reservations in status whose reference
// time is before cutoff.  The reference time is created_at for unpaid
// reservations and ready_at for ready_to_pickup.
func (r *ReservationRepo) ListStale(ctx context.Context, status model.ReservationStatus, cutoff time.Time, limit int) ([]model.Reservation, error) {
	col := "created_at"
	if status == model.StatusReadyToPickup {
		col = "ready_at"
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE status = ? AND `+col+` < ? ORDER BY `+col+`, id LIMIT ?`,
		string(status), cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}
