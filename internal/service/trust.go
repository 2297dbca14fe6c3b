package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
)

// ReasonNoShow is recorded for automatic no-show penalties.
const ReasonNoShow = "no-show"

// TrustService maintains students' trust scores through the append-only
// trust_score_events ledger.
type TrustService struct {
	*core
}

// PenalizeTx debits points for a missed pickup of reservationID.  The
// ledger keys penalties by reservation, so a second call for the same
// reservation is a no-op and reports false.
func (t *TrustService) PenalizeTx(ctx context.Context, tx *sql.Tx, studentID, reservationID uint64, points int, actor model.Actor) (bool, error) {
	if points <= 0 {
		return false, newError(ErrInvalidInput, "penalty must be positive")
	}
	now := t.now()
	if err := t.students.EnsureTx(ctx, tx, studentID, now); err != nil {
		return false, err
	}
	ev := model.TrustEvent{
		StudentID:     studentID,
		ReservationID: &reservationID,
		Delta:         -points,
		Reason:        ReasonNoShow,
		ActorID:       actorRef(actor),
		CreatedAt:     now,
	}
	err := t.trust.InsertEventTx(ctx, tx, &ev)
	if errors.Is(err, repository.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := t.students.AdjustScoreTx(ctx, tx, studentID, -points, now); err != nil {
		return false, err
	}
	return true, nil
}

// Penalize is PenalizeTx in its own transaction.
func (t *TrustService) Penalize(ctx context.Context, studentID, reservationID uint64, points int, actor model.Actor) (bool, error) {
	var applied bool
	err := repository.InTx(ctx, t.db, func(tx *sql.Tx) error {
		var err error
		applied, err = t.PenalizeTx(ctx, tx, studentID, reservationID, points, actor)
		return err
	})
	if err == nil && applied {
		t.publishTrust(ctx, studentID, -points, ReasonNoShow, actor)
	}
	return applied, err
}

// Recover credits points to a student.  Only admins may recover and a
// reason is mandatory; it is kept in the ledger.
func (t *TrustService) Recover(ctx context.Context, actor model.Actor, studentID uint64, points int, reason string) (model.Student, error) {
	if actor.Role != model.RoleAdmin {
		return model.Student{}, newError(ErrForbidden, "only admins can recover trust points")
	}
	reason = strings.TrimSpace(reason)
	if points <= 0 {
		return model.Student{}, newError(ErrInvalidInput, "points must be positive")
	}
	if reason == "" {
		return model.Student{}, newError(ErrInvalidInput, "reason is required")
	}

	var st model.Student
	err := repository.InTx(ctx, t.db, func(tx *sql.Tx) error {
		now := t.now()
		if _, err := t.students.GetTx(ctx, tx, studentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newError(ErrNotFound, "student %d not found", studentID)
			}
			return err
		}
		ev := model.TrustEvent{StudentID: studentID, Delta: points, Reason: reason, ActorID: actorRef(actor), CreatedAt: now}
		if err := t.trust.InsertEventTx(ctx, tx, &ev); err != nil {
			return err
		}
		if err := t.students.AdjustScoreTx(ctx, tx, studentID, points, now); err != nil {
			return err
		}
		var err error
		st, err = t.students.GetTx(ctx, tx, studentID)
		return err
	})
	if err != nil {
		return model.Student{}, err
	}
	t.log.Infof("trust recover student=%d points=%d admin=%d score=%d reason=%q", studentID, points, actor.ID, st.TrustScore, reason)
	t.publishTrust(ctx, studentID, points, reason, actor)
	return st, nil
}

// History returns a student with its ledger, newest first.
func (t *TrustService) History(ctx context.Context, studentID uint64) (model.Student, []model.TrustEvent, error) {
	st, err := t.students.GetByID(ctx, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Student{}, nil, newError(ErrNotFound, "student %d not found", studentID)
	}
	if err != nil {
		return model.Student{}, nil, err
	}
	events, err := t.trust.ListByStudent(ctx, studentID)
	if err != nil {
		return model.Student{}, nil, err
	}
	return st, events, nil
}

func (t *TrustService) publishTrust(ctx context.Context, studentID uint64, delta int, reason string, actor model.Actor) {
	ev := queue.NewEvent(queue.TrustChanged, t.now())
	ev.StudentID = studentID
	ev.Delta = delta
	ev.Detail = reason
	ev.ActorID = actor.ID
	ev.ActorRole = string(actor.Role)
	t.publish(ctx, ev)
}
