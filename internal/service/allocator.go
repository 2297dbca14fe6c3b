package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/repository"
)

// Allocator guards per-slot and per-day capacity.  A unit is taken inside
// the caller's transaction so that it is returned automatically when the
// reservation insert that follows fails.
type Allocator struct {
	*core
}

// OfferTx loads a menu item and checks it can be ordered for date.
func (a *Allocator) OfferTx(ctx context.Context, tx *sql.Tx, menuItemID uint64, date string) (model.MenuItem, error) {
	day, err := parseDate(date)
	if err != nil {
		return model.MenuItem{}, err
	}
	item, err := a.catalog.MenuItemTx(ctx, tx, menuItemID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.MenuItem{}, newError(ErrNotFound, "menu item %d not found", menuItemID)
	}
	if err != nil {
		return model.MenuItem{}, err
	}
	if !item.IsAvailable {
		return model.MenuItem{}, newError(ErrMenuUnavailable, "menu item %d is not available", item.ID)
	}
	if !offeredOn(item, date, int(day.Weekday())) {
		return model.MenuItem{}, newError(ErrMenuUnavailable, "menu item %d is not offered on %s", item.ID, date)
	}
	return item, nil
}

func offeredOn(item model.MenuItem, date string, weekday int) bool {
	if item.MenuDate != nil {
		return *item.MenuDate == date
	}
	return item.Weekday != nil && *item.Weekday == weekday
}

// ReserveTx takes one unit of the slot and one of the item's daily
// capacity on date.  Both counters are bumped by conditional statements,
// so with N units left at most N concurrent callers succeed.
func (a *Allocator) ReserveTx(ctx context.Context, tx *sql.Tx, item model.MenuItem, slotID uint64, date string) error {
	slot, err := a.catalog.TimeSlotTx(ctx, tx, slotID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && slot.MenuItemID != item.ID) {
		return newError(ErrInvalidInput, "time slot %d does not belong to menu item %d", slotID, item.ID)
	}
	if err != nil {
		return err
	}

	ok, err := a.capacity.IncrementSlotTx(ctx, tx, slot.ID, date, item.TimeSlotCapacity)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrCapacityExceeded, "time slot %s-%s is full", slot.StartTime, slot.EndTime)
	}
	ok, err = a.capacity.IncrementDayTx(ctx, tx, item.ID, date, item.DailyCapacity)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrCapacityExceeded, "daily capacity of menu item %d is reached", item.ID)
	}
	return nil
}

// ReleaseTx returns the units held by res.
func (a *Allocator) ReleaseTx(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	if err := a.capacity.DecrementSlotTx(ctx, tx, res.TimeSlotID, res.ReservedDate); err != nil {
		return err
	}
	return a.capacity.DecrementDayTx(ctx, tx, res.MenuItemID, res.ReservedDate)
}

// SlotAvailability is a pickup window with its remaining units.
type SlotAvailability struct {
	model.TimeSlot
	Reserved  int `json:"reserved"`
	Remaining int `json:"remaining"`
}

// MenuAvailability is one orderable menu item on a date.
type MenuAvailability struct {
	MenuItemID     uint64             `json:"menu_item_id"`
	FoodID         uint64             `json:"food_id"`
	FoodName       string             `json:"food_name"`
	Price          int64              `json:"price"`
	MealType       model.MealType     `json:"meal_type"`
	IsAvailable    bool               `json:"is_available"`
	DailyCapacity  int                `json:"daily_capacity"`
	DailyRemaining int                `json:"daily_remaining"`
	Slots          []SlotAvailability `json:"slots"`
}

// Availability lists the menu of date with remaining capacity.  A slot's
// remaining count is also bounded by the item's remaining daily capacity.
func (a *Allocator) Availability(ctx context.Context, date string, meal model.MealType) ([]MenuAvailability, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	entries, err := a.catalog.MenuFor(ctx, date, int(day.Weekday()), meal)
	if err != nil {
		return nil, err
	}

	out := make([]MenuAvailability, 0, len(entries))
	for _, e := range entries {
		used, err := a.capacity.DayUsage(ctx, date, e.Item.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(e.Slots))
		for _, s := range e.Slots {
			ids = append(ids, s.ID)
		}
		usage, err := a.capacity.SlotUsage(ctx, date, ids)
		if err != nil {
			return nil, err
		}

		m := MenuAvailability{
			MenuItemID:     e.Item.ID,
			FoodID:         e.Item.FoodID,
			FoodName:       e.FoodName,
			Price:          e.FoodPrice,
			MealType:       e.Item.MealType,
			IsAvailable:    e.Item.IsAvailable,
			DailyCapacity:  e.Item.DailyCapacity,
			DailyRemaining: max(0, e.Item.DailyCapacity-used),
			Slots:          make([]SlotAvailability, 0, len(e.Slots)),
		}
		for _, s := range e.Slots {
			n := usage[s.ID]
			left := min(max(0, e.Item.TimeSlotCapacity-n), m.DailyRemaining)
			if !m.IsAvailable {
				left = 0
			}
			m.Slots = append(m.Slots, SlotAvailability{TimeSlot: s, Reserved: n, Remaining: left})
		}
		out = append(out, m)
	}
	return out, nil
}
