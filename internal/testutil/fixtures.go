package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// Date is the calendar date used by fixtures.  2030-01-07 is a Monday.
const Date = "2030-01-07"

// MenuSpec describes a dated menu item to seed.
type MenuSpec struct {
	FoodName      string
	FoodPrice     int64
	Date          string
	Meal          model.MealType
	Slots         int
	SlotCapacity  int
	DailyCapacity int
}

// Menu holds the ids created by SeedMenu.
type Menu struct {
	FoodID     uint64
	MenuItemID uint64
	SlotIDs    []uint64
	Date       string
	Meal       model.MealType
}

// SeedMenu inserts a food, a dated menu item and its time slots.  Zero
// fields in spec get usable defaults.
func SeedMenu(t *testing.T, db *sql.DB, spec MenuSpec) Menu {
	t.Helper()
	if spec.FoodName == "" {
		spec.FoodName = "Chelo Kabab"
	}
	if spec.Date == "" {
		spec.Date = Date
	}
	if spec.Meal == "" {
		spec.Meal = model.MealLunch
	}
	if spec.Slots == 0 {
		spec.Slots = 1
	}
	if spec.SlotCapacity == 0 {
		spec.SlotCapacity = 10
	}
	if spec.DailyCapacity == 0 {
		spec.DailyCapacity = spec.Slots * spec.SlotCapacity
	}

	m := Menu{Date: spec.Date, Meal: spec.Meal}
	m.FoodID = insert(t, db, `INSERT INTO foods (name, price) VALUES (?, ?)`, spec.FoodName, spec.FoodPrice)
	m.MenuItemID = insert(t, db,
		`INSERT INTO menu_items (food_id, menu_date, meal_type, time_slot_count, time_slot_capacity, daily_capacity, is_available)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		m.FoodID, spec.Date, string(spec.Meal), spec.Slots, spec.SlotCapacity, spec.DailyCapacity)
	for i := 0; i < spec.Slots; i++ {
		start := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * 30 * time.Minute)
		id := insert(t, db, `INSERT INTO time_slots (menu_item_id, start_time, end_time) VALUES (?, ?, ?)`,
			m.MenuItemID, start.Format("15:04"), start.Add(30*time.Minute).Format("15:04"))
		m.SlotIDs = append(m.SlotIDs, id)
	}
	return m
}

// SeedStudent inserts a student with the given trust score.
func SeedStudent(t *testing.T, db *sql.DB, id uint64, score int) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := db.Exec(`INSERT INTO students (id, name, trust_score, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "student", score, now, now); err != nil {
		t.Fatalf("seed student: %v", err)
	}
}

// SetVoucherPrice overrides the global voucher price.
func SetVoucherPrice(t *testing.T, db *sql.DB, price int64) {
	t.Helper()
	if _, err := db.Exec(`UPDATE voucher_settings SET price = ? WHERE id = 1`, price); err != nil {
		t.Fatalf("set voucher: %v", err)
	}
}

// Count runs a COUNT(*) style query and returns the single integer result.
func Count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func insert(t *testing.T, db *sql.DB, query string, args ...any) uint64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return uint64(id)
}
