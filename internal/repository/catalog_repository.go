package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// CatalogRepo reads the menu catalog and owns the two admin switches this
// service exposes: menu item availability and the global voucher price.
// Food and menu CRUD belong to the catalog service.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a new CatalogRepo bound to the given database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

const menuItemCols = `id, food_id, menu_date, weekday, meal_type, time_slot_count, time_slot_capacity, daily_capacity, is_available`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMenuItem(row rowScanner, extra ...any) (model.MenuItem, error) {
	var (
		mi      model.MenuItem
		date    sql.NullString
		weekday sql.NullInt64
		meal    string
	)
	dest := []any{&mi.ID, &mi.FoodID, &date, &weekday, &meal, &mi.TimeSlotCount, &mi.TimeSlotCapacity, &mi.DailyCapacity, &mi.IsAvailable}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.MenuItem{}, err
	}
	if date.Valid {
		d := date.String
		mi.MenuDate = &d
	}
	if weekday.Valid {
		w := int(weekday.Int64)
		mi.Weekday = &w
	}
	mi.MealType = model.MealType(meal)
	return mi, nil
}

// MenuItemTx loads a menu item inside tx.
func (r *CatalogRepo) MenuItemTx(ctx context.Context, tx *sql.Tx, id uint64) (model.MenuItem, error) {
	mi, err := scanMenuItem(tx.QueryRowContext(ctx, `SELECT `+menuItemCols+` FROM menu_items WHERE id = ?`, id))
	return mi, notFound(err)
}

// TimeSlotTx loads a time slot inside tx.
func (r *CatalogRepo) TimeSlotTx(ctx context.Context, tx *sql.Tx, id uint64) (model.TimeSlot, error) {
	var ts model.TimeSlot
	err := tx.QueryRowContext(ctx,
		`SELECT id, menu_item_id, start_time, end_time FROM time_slots WHERE id = ?`, id,
	).Scan(&ts.ID, &ts.MenuItemID, &ts.StartTime, &ts.EndTime)
	return ts, notFound(err)
}

// FoodTx loads a food inside tx.
func (r *CatalogRepo) FoodTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Food, error) {
	var (
		f   model.Food
		cat sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `SELECT id, name, price, category_id FROM foods WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.Price, &cat)
	if err != nil {
		return model.Food{}, notFound(err)
	}
	if cat.Valid {
		c := uint64(cat.Int64)
		f.CategoryID = &c
	}
	return f, nil
}

// VoucherPriceTx reads the global voucher price inside tx so a concurrent
// price change can not split a reservation's pricing.
func (r *CatalogRepo) VoucherPriceTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var p int64
	err := tx.QueryRowContext(ctx, `SELECT price FROM voucher_settings WHERE id = 1`).Scan(&p)
	return p, notFound(err)
}

// VoucherPrice reads the global voucher price.
func (r *CatalogRepo) VoucherPrice(ctx context.Context) (int64, error) {
	var p int64
	err := r.db.QueryRowContext(ctx, `SELECT price FROM voucher_settings WHERE id = 1`).Scan(&p)
	return p, notFound(err)
}

// SetVoucherPrice replaces the global voucher price.  Existing reservations
// keep the price computed when they were placed.
func (r *CatalogRepo) SetVoucherPrice(ctx context.Context, price int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE voucher_settings SET price = ? WHERE id = 1`, price)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		_, err = r.db.ExecContext(ctx, `INSERT INTO voucher_settings (id, price) VALUES (1, ?)`, price)
	}
	return err
}

// SetAvailability toggles is_available on a menu item.
func (r *CatalogRepo) SetAvailability(ctx context.Context, id uint64, available bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE menu_items SET is_available = ? WHERE id = ?`, available, id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MenuEntry is a menu item joined with its food and time slots.
type MenuEntry struct {
	Item      model.MenuItem
	FoodName  string
	FoodPrice int64
	Slots     []model.TimeSlot
}

// MenuFor lists the menu items offered on date: items dated that day plus
// weekday templates matching its weekday.  An empty meal lists all meals.
func (r *CatalogRepo) MenuFor(ctx context.Context, date string, weekday int, meal model.MealType) ([]MenuEntry, error) {
	q := `SELECT mi.id, mi.food_id, mi.menu_date, mi.weekday, mi.meal_type, mi.time_slot_count,
	             mi.time_slot_capacity, mi.daily_capacity, mi.is_available, f.name, f.price
	      FROM menu_items mi
	      JOIN foods f ON f.id = mi.food_id
	      WHERE (mi.menu_date = ? OR (mi.menu_date IS NULL AND mi.weekday = ?))`
	args := []any{date, weekday}
	if meal != "" {
		q += ` AND mi.meal_type = ?`
		args = append(args, string(meal))
	}
	q += ` ORDER BY mi.meal_type, mi.id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]MenuEntry, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var e MenuEntry
		e.Item, err = scanMenuItem(rows, &e.FoodName, &e.FoodPrice)
		if err != nil {
			return nil, err
		}
		e.Slots = []model.TimeSlot{}
		index[e.Item.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]any, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Item.ID)
	}
	slotQ := fmt.Sprintf(`SELECT id, menu_item_id, start_time, end_time FROM time_slots
	                      WHERE menu_item_id IN (%s) ORDER BY start_time, id`, placeholders(len(ids)))
	srows, err := r.db.QueryContext(ctx, slotQ, ids...)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var ts model.TimeSlot
		if err := srows.Scan(&ts.ID, &ts.MenuItemID, &ts.StartTime, &ts.EndTime); err != nil {
			return nil, err
		}
		i := index[ts.MenuItemID]
		entries[i].Slots = append(entries[i].Slots, ts)
	}
	return entries, srows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
