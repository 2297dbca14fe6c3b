package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// TrustRepo appends to and reads the trust score ledger.
type TrustRepo struct {
	db *sql.DB
}

func NewTrustRepo(db *sql.DB) *TrustRepo { return &TrustRepo{db: db} }

// InsertEventTx appends ev.  A second penalty for the same reservation
// violates the unique reservation_id key and yields ErrDuplicate.
func (r *TrustRepo) InsertEventTx(ctx context.Context, tx *sql.Tx, ev *model.TrustEvent) error {
	var resID, actorID any
	if ev.ReservationID != nil {
		resID = *ev.ReservationID
	}
	if ev.ActorID != nil {
		actorID = *ev.ActorID
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO trust_score_events (student_id, reservation_id, delta, reason, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.StudentID, resID, ev.Delta, truncate(ev.Reason, 255), actorID, ev.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// ListByStudent returns a student's ledger, newest first.
func (r *TrustRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.TrustEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, reservation_id, delta, reason, actor_id, created_at
		 FROM trust_score_events WHERE student_id = ? ORDER BY id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TrustEvent, 0)
	for rows.Next() {
		var (
			ev             model.TrustEvent
			resID, actorID sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.StudentID, &resID, &ev.Delta, &ev.Reason, &actorID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if resID.Valid {
			v := uint64(resID.Int64)
			ev.ReservationID = &v
		}
		if actorID.Valid {
			v := uint64(actorID.Int64)
			ev.ActorID = &v
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
