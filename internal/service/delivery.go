package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
	"github.com/iliyamo/meal-reservation/internal/utils"
)

const codeAttempts = 5

// errCASMiss aborts a transaction whose conditional update matched no
// row.  The caller reloads outside the transaction to classify it.
var errCASMiss = errors.New("state changed concurrently")

// DeliveryService issues pickup codes and redeems them at the counter.
type DeliveryService struct {
	*core
	qr *utils.QRSigner
}

// IssueTx moves a reservation from pending_payment to waiting and gives
// it a fresh delivery code.  It reports false when the reservation is
// gone or no longer awaiting payment.
func (d *DeliveryService) IssueTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (bool, error) {
	now := d.now()
	for i := 0; i < codeAttempts; i++ {
		code, err := utils.NewDeliveryCode()
		if err != nil {
			return false, err
		}
		ok, err := d.reservations.ConfirmTx(ctx, tx, reservationID, code, now)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		return ok, err
	}
	return false, fmt.Errorf("no unique delivery code after %d attempts", codeAttempts)
}

// QRPayload returns the signed payload encoded in the pickup QR code.
func (d *DeliveryService) QRPayload(res model.Reservation) (string, error) {
	if res.DeliveryCode == nil {
		return "", newError(ErrInvalidTransition, "reservation %d has no delivery code yet", res.ID)
	}
	return d.qr.Payload(res.ID, *res.DeliveryCode), nil
}

// QRCode renders the pickup QR code of the student's reservation as PNG.
func (d *DeliveryService) QRCode(ctx context.Context, actor model.Actor, reservationID uint64, size int) ([]byte, error) {
	res, err := d.reservations.GetByID(ctx, reservationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, "reservation %d not found", reservationID)
	}
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleStudent && res.StudentID != actor.ID {
		return nil, newError(ErrForbidden, "not your reservation")
	}
	payload, err := d.QRPayload(res)
	if err != nil {
		return nil, err
	}
	if size < 128 || size > 1024 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// Redeem hands a ready order over at the pickup counter.  input is either
// a typed delivery code or a scanned QR payload.  Exactly one of several
// concurrent redeems of the same code succeeds; the others get
// ErrAlreadyRedeemed.
func (d *DeliveryService) Redeem(ctx context.Context, actor model.Actor, input string) (model.Reservation, error) {
	if !model.RoleMayTransition(actor.Role, model.StatusReadyToPickup, model.StatusPickedUp) {
		return model.Reservation{}, newError(ErrForbidden, "role %s can not hand over orders", actor.Role)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Reservation{}, newError(ErrInvalidInput, "delivery code is required")
	}

	var (
		code   string
		wantID uint64
	)
	if utils.IsQRPayload(input) {
		id, c, err := d.qr.Parse(input)
		if err != nil {
			return model.Reservation{}, wrapError(ErrInvalidInput, err, "invalid QR code")
		}
		wantID, code = id, c
	} else {
		code = utils.NormalizeDeliveryCode(input)
	}

	var res model.Reservation
	err := repository.InTx(ctx, d.db, func(tx *sql.Tx) error {
		var err error
		res, err = d.reservations.GetByDeliveryCodeTx(ctx, tx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, "unknown delivery code")
		}
		if err != nil {
			return err
		}
		if wantID != 0 && res.ID != wantID {
			return newError(ErrInvalidInput, "invalid QR code")
		}
		ok, err := d.reservations.TransitionTx(ctx, tx, res.ID, model.StatusReadyToPickup, model.StatusPickedUp, d.now())
		if err != nil {
			return err
		}
		if !ok {
			return errCASMiss
		}
		res, err = d.reservations.GetTx(ctx, tx, res.ID)
		return err
	})
	if errors.Is(err, errCASMiss) {
		cur, gerr := d.reservations.GetByID(ctx, res.ID)
		if gerr != nil {
			return model.Reservation{}, gerr
		}
		if cur.Status == model.StatusPickedUp {
			return cur, newError(ErrAlreadyRedeemed, "order was already picked up")
		}
		return cur, newError(ErrInvalidTransition, "order is %s, not ready_to_pickup", cur.Status)
	}
	if err != nil {
		return model.Reservation{}, err
	}

	d.log.Infof("redeemed reservation=%d receiver=%d", res.ID, actor.ID)
	d.publish(ctx, d.event(queue.ReservationStatusChanged, res, actor))
	return res, nil
}
