// Package queue carries reservation lifecycle events over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// QueueName is the durable queue all events are routed to.
const QueueName = "reservation.events"

// Event types.
const (
	ReservationCreated       = "reservation.created"
	ReservationConfirmed     = "reservation.confirmed"
	ReservationStatusChanged = "reservation.status_changed"
	ReservationCancelled     = "reservation.cancelled"
	PaymentRefunded          = "payment.refunded"
	TrustChanged             = "trust.changed"
)

// Event is the message body published for every lifecycle change.  It
// carries enough for consumers to log or notify without querying the
// primary database.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	ReservationID uint64    `json:"reservation_id,omitempty"`
	StudentID     uint64    `json:"student_id,omitempty"`
	PaymentID     uint64    `json:"payment_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Delta         int       `json:"delta,omitempty"`
	ActorID       uint64    `json:"actor_id,omitempty"`
	ActorRole     string    `json:"actor_role,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// NewEvent returns an event of typ with a fresh id.
func NewEvent(typ string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}
