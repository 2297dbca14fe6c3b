package model

// Food is a dish in the catalog.  Price is in rials.
type Food struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	CategoryID *uint64 `json:"category_id,omitempty"`
}

// MenuItem offers a food for one meal, either on a concrete MenuDate or on
// every matching Weekday (0 = Sunday).  DailyCapacity is checked in
// addition to the per-slot TimeSlotCapacity; it is not derived from it.
//
// Fields:
//  ID               – primary key identifier.
//  FoodID           – food being served.
//  MenuDate         – concrete date (YYYY-MM-DD) or nil for a template.
//  Weekday          – weekday template or nil for a dated item.
//  MealType         – meal of the day.
//  TimeSlotCount    – number of pickup windows.
//  TimeSlotCapacity – maximum reservations per window per date.
//  DailyCapacity    – maximum reservations across windows per date.
//  IsAvailable      – admin switch; false rejects new reservations.
type MenuItem struct {
	ID               uint64   `json:"id"`
	FoodID           uint64   `json:"food_id"`
	MenuDate         *string  `json:"menu_date,omitempty"`
	Weekday          *int     `json:"weekday,omitempty"`
	MealType         MealType `json:"meal_type"`
	TimeSlotCount    int      `json:"time_slot_count"`
	TimeSlotCapacity int      `json:"time_slot_capacity"`
	DailyCapacity    int      `json:"daily_capacity"`
	IsAvailable      bool     `json:"is_available"`
}

// TimeSlot is a pickup window of a menu item.  Times are "HH:MM".
type TimeSlot struct {
	ID         uint64 `json:"id"`
	MenuItemID uint64 `json:"menu_item_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}
