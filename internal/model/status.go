package model

// ReservationStatus is the lifecycle state of a reservation.  The set is
// closed: values outside the constants below are rejected by Parse.
type ReservationStatus string

const (
	StatusPendingPayment ReservationStatus = "pending_payment"
	StatusWaiting        ReservationStatus = "waiting"
	StatusPreparing      ReservationStatus = "preparing"
	StatusReadyToPickup  ReservationStatus = "ready_to_pickup"
	StatusPickedUp       ReservationStatus = "picked_up"
	StatusNotPickedUp    ReservationStatus = "not_picked_up"
)

var reservationStatuses = map[ReservationStatus]bool{
	StatusPendingPayment: true,
	StatusWaiting:        true,
	StatusPreparing:      true,
	StatusReadyToPickup:  true,
	StatusPickedUp:       true,
	StatusNotPickedUp:    true,
}

// ParseReservationStatus validates s against the closed status set.
func ParseReservationStatus(s string) (ReservationStatus, bool) {
	st := ReservationStatus(s)
	return st, reservationStatuses[st]
}

// Terminal reports whether no further transition can leave st.
func (st ReservationStatus) Terminal() bool {
	return st == StatusPickedUp || st == StatusNotPickedUp
}

// Paid reports whether the reservation has left the payment phase.
func (st ReservationStatus) Paid() bool {
	return reservationStatuses[st] && st != StatusPendingPayment
}

// PaymentStatus is the state of a single gateway payment attempt.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Live reports whether the payment can still settle or has settled.
func (st PaymentStatus) Live() bool {
	return st == PaymentPending || st == PaymentPaid
}

// MealType identifies a meal of the day.  A student may hold at most one
// reservation per (date, meal type).
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// ParseMealType validates s against the known meal types.
func ParseMealType(s string) (MealType, bool) {
	switch m := MealType(s); m {
	case MealBreakfast, MealLunch, MealDinner:
		return m, true
	}
	return "", false
}

// transition describes one edge of the reservation state machine and the
// roles allowed to drive it.
type transition struct {
	from, to ReservationStatus
}

var transitionRoles = map[transition][]Role{
	{StatusPendingPayment, StatusWaiting}:      {RoleSystem},
	{StatusWaiting, StatusPreparing}:           {RoleChef, RoleAdmin},
	{StatusPreparing, StatusReadyToPickup}:     {RoleChef, RoleAdmin},
	{StatusReadyToPickup, StatusPickedUp}:      {RoleReceiver, RoleAdmin},
	{StatusReadyToPickup, StatusNotPickedUp}:   {RoleReceiver, RoleAdmin, RoleSystem},
}

// CanTransition reports whether from -> to is an edge of the state machine,
// regardless of who drives it.
func CanTransition(from, to ReservationStatus) bool {
	_, ok := transitionRoles[transition{from, to}]
	return ok
}

// RoleMayTransition reports whether role is allowed to move a reservation
// from -> to.  It is false for edges that do not exist.
func RoleMayTransition(role Role, from, to ReservationStatus) bool {
	for _, r := range transitionRoles[transition{from, to}] {
		if r == role {
			return true
		}
	}
	return false
}
