package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// CapacityRepo maintains the durable reservation counters: one row per
// (time slot, date) in slot_counters and one per (menu item, date) in
// day_counters.  Every change is a single conditional statement so that
// concurrent allocations can not overshoot a capacity.
type CapacityRepo struct {
	db *sql.DB
}

// NewCapacityRepo returns a new CapacityRepo bound to the given database.
func NewCapacityRepo(db *sql.DB) *CapacityRepo { return &CapacityRepo{db: db} }

type counter struct {
	table, key string
}

var (
	slotCounter = counter{"slot_counters", "time_slot_id"}
	dayCounter  = counter{"day_counters", "menu_item_id"}
)

// IncrementSlotTx takes one unit of a time slot on date.  It returns false
// when the slot already holds capacity reservations.
func (r *CapacityRepo) IncrementSlotTx(ctx context.Context, tx *sql.Tx, slotID uint64, date string, capacity int) (bool, error) {
	return r.increment(ctx, tx, slotCounter, slotID, date, capacity)
}

// IncrementDayTx takes one unit of a menu item's daily capacity on date.
func (r *CapacityRepo) IncrementDayTx(ctx context.Context, tx *sql.Tx, itemID uint64, date string, capacity int) (bool, error) {
	return r.increment(ctx, tx, dayCounter, itemID, date, capacity)
}

// DecrementSlotTx returns one unit of a time slot.  It never goes below zero.
func (r *CapacityRepo) DecrementSlotTx(ctx context.Context, tx *sql.Tx, slotID uint64, date string) error {
	return r.decrement(ctx, tx, slotCounter, slotID, date)
}

// DecrementDayTx returns one unit of a menu item's daily capacity.
func (r *CapacityRepo) DecrementDayTx(ctx context.Context, tx *sql.Tx, itemID uint64, date string) error {
	return r.decrement(ctx, tx, dayCounter, itemID, date)
}

// increment bumps the counter only while it is below capacity.  A missing
// row is created with reserved = 1; when a concurrent transaction created
// it first the insert fails on the primary key and the conditional update
// is retried against the now existing row.
func (r *CapacityRepo) increment(ctx context.Context, tx *sql.Tx, c counter, id uint64, date string, capacity int) (bool, error) {
	if capacity <= 0 {
		return false, nil
	}
	update := fmt.Sprintf(`UPDATE %s SET reserved = reserved + 1 WHERE %s = ? AND reserved_date = ? AND reserved < ?`, c.table, c.key)
	res, err := tx.ExecContext(ctx, update, id, date, capacity)
	if err != nil {
		return false, err
	}
	if ok, err := affected(res); err != nil || ok {
		return ok, err
	}

	insert := fmt.Sprintf(`INSERT INTO %s (%s, reserved_date, reserved) VALUES (?, ?, 1)`, c.table, c.key)
	if _, err := tx.ExecContext(ctx, insert, id, date); err == nil {
		return true, nil
	} else if !isDuplicate(err) {
		return false, err
	}

	res, err = tx.ExecContext(ctx, update, id, date, capacity)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *CapacityRepo) decrement(ctx context.Context, tx *sql.Tx, c counter, id uint64, date string) error {
	q := fmt.Sprintf(`UPDATE %s SET reserved = reserved - 1 WHERE %s = ? AND reserved_date = ? AND reserved > 0`, c.table, c.key)
	_, err := tx.ExecContext(ctx, q, id, date)
	return err
}

// SlotUsage returns the reserved count per slot id on date.  Slots with no
// counter row are absent from the map.
func (r *CapacityRepo) SlotUsage(ctx context.Context, date string, slotIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	args := []any{date}
	for _, id := range slotIDs {
		args = append(args, id)
	}
	q := fmt.Sprintf(`SELECT time_slot_id, reserved FROM slot_counters WHERE reserved_date = ? AND time_slot_id IN (%s)`, placeholders(len(slotIDs)))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id uint64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// DayUsage returns the reserved count of a menu item on date.
func (r *CapacityRepo) DayUsage(ctx context.Context, date string, itemID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT reserved FROM day_counters WHERE menu_item_id = ? AND reserved_date = ?`, itemID, date,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
