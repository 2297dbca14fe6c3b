package model

import "time"

// DateLayout is the format of reservation and menu dates.
const DateLayout = "2006-01-02"

// Reservation is a student's order for one meal on one date in one time
// slot.  At most one exists per (StudentID, ReservedDate, MealType).
//
// Fields:
//  ID           – primary key identifier.
//  StudentID    – student who placed the order.
//  MenuItemID   – menu item being ordered.
//  TimeSlotID   – pickup window within the menu item.
//  ReservedDate – calendar date of the meal (YYYY-MM-DD).
//  MealType     – meal of the day, copied from the menu item.
//  HasVoucher   – whether the student applied the meal voucher.
//  Price        – amount owed in rials after the voucher.
//  Status       – lifecycle state.
//  DeliveryCode – pickup code, issued when the order enters waiting.
//  Version      – bumped on every status change.
//  ReadyAt      – when the kitchen marked it ready_to_pickup.
//  PickedUpAt   – when the receiver redeemed it.
type Reservation struct {
	ID           uint64            `json:"id"`
	StudentID    uint64            `json:"student_id"`
	MenuItemID   uint64            `json:"menu_item_id"`
	TimeSlotID   uint64            `json:"time_slot_id"`
	ReservedDate string            `json:"reserved_date"`
	MealType     MealType          `json:"meal_type"`
	HasVoucher   bool              `json:"has_voucher"`
	Price        int64             `json:"price"`
	Status       ReservationStatus `json:"status"`
	DeliveryCode *string           `json:"delivery_code,omitempty"`
	Version      int               `json:"version"`
	ReadyAt      *time.Time        `json:"ready_at,omitempty"`
	PickedUpAt   *time.Time        `json:"picked_up_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Payment is one gateway round trip for a reservation.  Authority is the
// gateway's identifier and is unique once assigned.
//
// Fields:
//  ID            – primary key identifier.
//  ReservationID – reservation being paid for; kept after cancellation.
//  UserID        – payer.
//  Amount        – amount requested from the gateway in rials.
//  Authority     – gateway authority, nil until authorize succeeds.
//  RefID         – gateway reference id once confirmed.
//  Status        – pending, paid, failed or refunded.
//  ErrorMessage  – last gateway error text.
//  NeedsReview   – set when the payment must not be auto-settled.
type Payment struct {
	ID            uint64        `json:"id"`
	ReservationID uint64        `json:"reservation_id"`
	UserID        uint64        `json:"user_id"`
	Amount        int64         `json:"amount"`
	Authority     *string       `json:"authority,omitempty"`
	RefID         *string       `json:"ref_id,omitempty"`
	Status        PaymentStatus `json:"status"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
	NeedsReview   bool          `json:"needs_review"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
