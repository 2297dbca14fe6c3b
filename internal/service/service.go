// Package service implements reservation, payment, delivery and trust
// workflows on top of the repositories.  Every state change runs in one
// database transaction; events are published after commit.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/gateway"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

// Publisher receives lifecycle events.  queue.Broker and queue.Discard
// implement it.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Deps are the collaborators shared by all services.
type Deps struct {
	DB          *sql.DB
	Gateway     gateway.Gateway
	Events      Publisher
	QR          *utils.QRSigner
	Policy      config.PolicyConfig
	CallbackURL string
	Logger      *log.Logger
	Clock       func() time.Time
}

// Services groups the wired services.
type Services struct {
	Allocator    *Allocator
	Reservations *ReservationService
	Payments     *PaymentService
	Trust        *TrustService
	Delivery     *DeliveryService
	Sweeper      *Sweeper
}

// core holds the repositories and ambient dependencies each service embeds.
type core struct {
	db           *sql.DB
	catalog      *repository.CatalogRepo
	capacity     *repository.CapacityRepo
	reservations *repository.ReservationRepo
	payments     *repository.PaymentRepo
	students     *repository.StudentRepo
	trust        *repository.TrustRepo
	events       Publisher
	now          func() time.Time
	log          *log.Logger
}

// New wires every service against d.
func New(d Deps) *Services {
	c := &core{
		db:           d.DB,
		catalog:      repository.NewCatalogRepo(d.DB),
		capacity:     repository.NewCapacityRepo(d.DB),
		reservations: repository.NewReservationRepo(d.DB),
		payments:     repository.NewPaymentRepo(d.DB),
		students:     repository.NewStudentRepo(d.DB),
		trust:        repository.NewTrustRepo(d.DB),
		events:       d.Events,
		now:          d.Clock,
		log:          d.Logger,
	}
	if c.events == nil {
		c.events = queue.Discard{}
	}
	if c.now == nil {
		c.now = systemClock
	}
	if c.log == nil {
		c.log = log.New("service")
	}

	policy := d.Policy
	if policy.PaymentTimeout <= 0 {
		policy.PaymentTimeout = 15 * time.Minute
	}
	if policy.NoShowCutoff <= 0 {
		policy.NoShowCutoff = 2 * time.Hour
	}
	if policy.NoShowPenalty < 1 {
		policy.NoShowPenalty = 1
	}
	if policy.SweepBatch < 1 {
		policy.SweepBatch = 100
	}

	s := &Services{}
	s.Allocator = &Allocator{core: c}
	s.Trust = &TrustService{core: c}
	s.Delivery = &DeliveryService{core: c, qr: d.QR}
	s.Reservations = &ReservationService{core: c, allocator: s.Allocator, trustSvc: s.Trust, delivery: s.Delivery, policy: policy}
	s.Payments = &PaymentService{core: c, gw: d.Gateway, orders: s.Reservations, delivery: s.Delivery, callbackURL: d.CallbackURL}
	s.Sweeper = &Sweeper{core: c, pay: s.Payments, orders: s.Reservations, policy: policy}
	return s
}

func systemClock() time.Time { return time.Now().UTC().Truncate(time.Second) }

// publish sends ev after the request's transaction has committed.  A
// failed publish is logged and never fails the operation.
func (c *core) publish(ctx context.Context, ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warnf("publish %s reservation=%d: %v", ev.Type, ev.ReservationID, err)
	}
}

func (c *core) event(typ string, res model.Reservation, actor model.Actor) queue.Event {
	ev := queue.NewEvent(typ, c.now())
	ev.ReservationID = res.ID
	ev.StudentID = res.StudentID
	ev.Status = string(res.Status)
	ev.ActorID = actor.ID
	ev.ActorRole = string(actor.Role)
	return ev
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, newError(ErrInvalidInput, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func actorRef(a model.Actor) *uint64 {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}
