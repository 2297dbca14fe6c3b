package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleMayTransition(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		from, to ReservationStatus
		want     bool
	}{
		{"chef starts preparing", RoleChef, StatusWaiting, StatusPreparing, true},
		{"chef marks ready", RoleChef, StatusPreparing, StatusReadyToPickup, true},
		{"admin marks ready", RoleAdmin, StatusPreparing, StatusReadyToPickup, true},
		{"receiver can not start preparing", RoleReceiver, StatusWaiting, StatusPreparing, false},
		{"student can not advance", RoleStudent, StatusWaiting, StatusPreparing, false},
		{"chef can not skip preparing", RoleChef, StatusWaiting, StatusReadyToPickup, false},
		{"receiver marks no-show", RoleReceiver, StatusReadyToPickup, StatusNotPickedUp, true},
		{"system marks no-show", RoleSystem, StatusReadyToPickup, StatusNotPickedUp, true},
		{"chef can not mark no-show", RoleChef, StatusReadyToPickup, StatusNotPickedUp, false},
		{"only system confirms payment", RoleAdmin, StatusPendingPayment, StatusWaiting, false},
		{"system confirms payment", RoleSystem, StatusPendingPayment, StatusWaiting, true},
		{"terminal state is final", RoleAdmin, StatusPickedUp, StatusNotPickedUp, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleMayTransition(tt.role, tt.from, tt.to))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusReadyToPickup, StatusPickedUp))
	assert.False(t, CanTransition(StatusPreparing, StatusWaiting))
	assert.False(t, CanTransition(StatusNotPickedUp, StatusPickedUp))
}

func TestParseHelpers(t *testing.T) {
	st, ok := ParseReservationStatus("ready_to_pickup")
	assert.True(t, ok)
	assert.Equal(t, StatusReadyToPickup, st)

	_, ok = ParseReservationStatus("cancelled")
	assert.False(t, ok, "cancellation deletes the row and is not a status")

	r, ok := ParseRole(" chef ")
	assert.True(t, ok)
	assert.Equal(t, RoleChef, r)

	_, ok = ParseRole("SYSTEM")
	assert.False(t, ok)

	m, ok := ParseMealType("lunch")
	assert.True(t, ok)
	assert.Equal(t, MealLunch, m)

	assert.True(t, StatusWaiting.Paid())
	assert.False(t, StatusPendingPayment.Paid())
	assert.True(t, StatusNotPickedUp.Terminal())
	assert.True(t, PaymentPending.Live())
	assert.False(t, PaymentRefunded.Live())
}
