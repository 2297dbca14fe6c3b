package repository

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// PaymentRepo provides access to the payments table.  Payments outlive
// their reservation so that every gateway round trip stays auditable.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentCols = `id, reservation_id, user_id, amount, authority, ref_id, status, error_message, needs_review, created_at, updated_at`

func scanPayment(row rowScanner) (model.Payment, error) {
	var (
		p                     model.Payment
		status                string
		authority, ref, errMsg sql.NullString
	)
	err := row.Scan(&p.ID, &p.ReservationID, &p.UserID, &p.Amount, &authority, &ref, &status, &errMsg,
		&p.NeedsReview, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, err
	}
	p.Status = model.PaymentStatus(status)
	p.Authority = nullString(authority)
	p.RefID = nullString(ref)
	p.ErrorMessage = nullString(errMsg)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// CreateTx inserts a pending payment and fills in its ID.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO payments (reservation_id, user_id, amount, status, needs_review, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ReservationID, p.UserID, p.Amount, string(p.Status), false, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID loads a payment.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
	return p, notFound(err)
}

// GetByAuthority loads the payment holding a gateway authority.
func (r *PaymentRepo) GetByAuthority(ctx context.Context, authority string) (model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE authority = ?`, authority))
	return p, notFound(err)
}

// GetTx reloads a payment inside tx.
func (r *PaymentRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
	return p, notFound(err)
}

// ListByReservation returns every payment attempt of a reservation, oldest first.
func (r *PaymentRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE reservation_id = ? ORDER BY id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetAuthority records the gateway authority of a pending payment.  It
// fails with ErrConflict when the payment already has one or is no longer
// pending, and with ErrDuplicate when another payment holds the authority.
func (r *PaymentRepo) SetAuthority(ctx context.Context, id uint64, authority string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET authority = ?, updated_at = ? WHERE id = ? AND status = ? AND authority IS NULL`,
		authority, now, id, string(model.PaymentPending))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// MarkPaidTx settles a pending payment that is not under review.
func (r *PaymentRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64, refID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, ref_id = ?, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = ? AND needs_review = ?`,
		string(model.PaymentPaid), refID, now, id, string(model.PaymentPending), false)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkFailedTx fails a pending payment.
func (r *PaymentRepo) MarkFailedTx(ctx context.Context, tx *sql.Tx, id uint64, msg string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.PaymentFailed), truncate(msg, 255), now, id, string(model.PaymentPending))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkRefundedTx moves a paid, pending or failed payment to refunded.  A
// failed payment is refunded when the gateway verified it after the
// reservation went away.
func (r *PaymentRepo) MarkRefundedTx(ctx context.Context, tx *sql.Tx, id uint64, msg string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status IN (?, ?, ?)`,
		string(model.PaymentRefunded), truncate(msg, 255), now, id,
		string(model.PaymentPaid), string(model.PaymentPending), string(model.PaymentFailed))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// FlagReview marks a payment as needing manual review.  Flagged payments
// are never settled automatically.
func (r *PaymentRepo) FlagReview(ctx context.Context, id uint64, msg string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET needs_review = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		true, truncate(msg, 255), now, id)
	return err
}

// FlagReviewTx is FlagReview inside tx.
func (r *PaymentRepo) FlagReviewTx(ctx context.Context, tx *sql.Tx, id uint64, msg string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET needs_review = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		true, truncate(msg, 255), now, id)
	return err
}

// HasLiveTx reports whether the reservation has a payment other than
// excludeID that may still complete: a paid one, or a pending one that
// reached the gateway.
func (r *PaymentRepo) HasLiveTx(ctx context.Context, tx *sql.Tx, reservationID, excludeID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE reservation_id = ? AND id <> ?
		 AND (status = ? OR (status = ? AND authority IS NOT NULL))`,
		reservationID, excludeID, string(model.PaymentPaid), string(model.PaymentPending)).Scan(&n)
	return n > 0, err
}

// FailPendingTx fails every pending payment of a reservation and returns
// how many were changed.
func (r *PaymentRepo) FailPendingTx(ctx context.Context, tx *sql.Tx, reservationID uint64, msg string, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, error_message = ?, updated_at = ? WHERE reservation_id = ? AND status = ?`,
		string(model.PaymentFailed), truncate(msg, 255), now, reservationID, string(model.PaymentPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasReviewTx reports whether any payment of the reservation is flagged
// for review.
func (r *PaymentRepo) HasReviewTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE reservation_id = ? AND needs_review = ?`,
		reservationID, true).Scan(&n)
	return n > 0, err
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
