package service

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/gateway"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/testutil"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

var (
	chef     = model.Actor{ID: 900, Role: model.RoleChef}
	receiver = model.Actor{ID: 901, Role: model.RoleReceiver}
	admin    = model.Actor{ID: 902, Role: model.RoleAdmin}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	db     *sql.DB
	svc    *Services
	gw     *gateway.Sandbox
	clock  *fakeClock
	events *recorder
	menu   testutil.Menu
}

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

// harnessOptions varies the store and the gateway seen by the services.
// wrap may decorate the sandbox; it runs before the services exist, so
// decorators reach them through h at call time.
type harnessOptions struct {
	open func(t *testing.T) *sql.DB
	wrap func(h *harness, sb *gateway.Sandbox) gateway.Gateway
}

func newHarness(t *testing.T, spec testutil.MenuSpec) *harness {
	t.Helper()
	return newHarnessWith(t, spec, harnessOptions{})
}

func newHarnessWith(t *testing.T, spec testutil.MenuSpec, opts harnessOptions) *harness {
	t.Helper()
	if opts.open == nil {
		opts.open = testutil.NewDB
	}
	db := opts.open(t)
	qr, err := utils.NewQRSigner("test-qr-secret")
	require.NoError(t, err)

	h := &harness{
		db:     db,
		gw:     gateway.NewSandbox(false, "https://sandbox.test/StartPay/"),
		clock:  &fakeClock{t: time.Date(2030, 1, 6, 10, 0, 0, 0, time.UTC)},
		events: &recorder{},
	}
	var gw gateway.Gateway = h.gw
	if opts.wrap != nil {
		gw = opts.wrap(h, h.gw)
	}
	h.svc = New(Deps{
		DB:      db,
		Gateway: gw,
		Events:  h.events,
		QR:      qr,
		Policy: config.PolicyConfig{
			PaymentTimeout: 15 * time.Minute,
			NoShowEnabled:  true,
			NoShowCutoff:   2 * time.Hour,
			NoShowPenalty:  1,
			SweepBatch:     100,
		},
		CallbackURL: "http://localhost:8080/v1/payments/verify",
		Logger:      quietLogger(),
		Clock:       h.clock.Now,
	})
	if spec.FoodPrice == 0 {
		spec.FoodPrice = 120000
	}
	h.menu = testutil.SeedMenu(t, db, spec)
	return h
}

func (h *harness) order(t *testing.T, studentID uint64) model.Reservation {
	t.Helper()
	res, err := h.svc.Reservations.PlaceOrder(context.Background(), OrderRequest{
		StudentID:  studentID,
		MenuItemID: h.menu.MenuItemID,
		TimeSlotID: h.menu.SlotIDs[0],
		Date:       h.menu.Date,
	})
	require.NoError(t, err)
	return res
}

// pay runs a reservation through request, capture and verify.
func (h *harness) pay(t *testing.T, res model.Reservation) PaymentRedirect {
	t.Helper()
	ctx := context.Background()
	redirect, err := h.svc.Payments.Request(ctx, PaymentRequest{
		StudentID:     res.StudentID,
		ReservationID: res.ID,
		Amount:        res.Price,
	})
	require.NoError(t, err)
	h.gw.Capture(redirect.Authority)
	_, err = h.svc.Payments.Verify(ctx, redirect.Authority, "OK")
	require.NoError(t, err)
	return redirect
}

// ready returns a paid reservation the kitchen marked ready_to_pickup.
func (h *harness) ready(t *testing.T, studentID uint64) model.Reservation {
	t.Helper()
	ctx := context.Background()
	res := h.order(t, studentID)
	h.pay(t, res)
	_, err := h.svc.Reservations.UpdateStatus(ctx, chef, res.ID, model.StatusPreparing)
	require.NoError(t, err)
	res, err = h.svc.Reservations.UpdateStatus(ctx, chef, res.ID, model.StatusReadyToPickup)
	require.NoError(t, err)
	return res
}

func (h *harness) slotReserved(t *testing.T) int {
	t.Helper()
	return testutil.Count(t, h.db, `SELECT COALESCE(SUM(reserved), 0) FROM slot_counters WHERE time_slot_id = ? AND reserved_date = ?`,
		h.menu.SlotIDs[0], h.menu.Date)
}

func (h *harness) dayReserved(t *testing.T) int {
	t.Helper()
	return testutil.Count(t, h.db, `SELECT COALESCE(SUM(reserved), 0) FROM day_counters WHERE menu_item_id = ? AND reserved_date = ?`,
		h.menu.MenuItemID, h.menu.Date)
}

// request opens a payment for res and returns its authority.
func (h *harness) request(t *testing.T, res model.Reservation) string {
	t.Helper()
	redirect, err := h.svc.Payments.Request(context.Background(), PaymentRequest{
		StudentID:     res.StudentID,
		ReservationID: res.ID,
		Amount:        res.Price,
	})
	require.NoError(t, err)
	return redirect.Authority
}

// eachBackend runs fn against every test store.
func eachBackend(t *testing.T, fn func(t *testing.T, open func(t *testing.T) *sql.DB)) {
	for _, b := range testutil.Backends {
		b := b
		t.Run(b.Name, func(t *testing.T) { fn(t, b.Open) })
	}
}
