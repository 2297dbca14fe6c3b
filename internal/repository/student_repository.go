package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/meal-reservation/internal/model"
)

// StudentRepo holds the per-student trust score.  Identity and profile
// data live in the identity service; rows here are created on a student's
// first reservation.
type StudentRepo struct{ DB *sql.DB }

func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{DB: db} }

const studentCols = `id, name, trust_score, created_at, updated_at`

func scanStudent(row rowScanner) (model.Student, error) {
	var s model.Student
	err := row.Scan(&s.ID, &s.Name, &s.TrustScore, &s.CreatedAt, &s.UpdatedAt)
	return s, notFound(err)
}

// GetByID fetches a student.
func (r *StudentRepo) GetByID(ctx context.Context, id uint64) (model.Student, error) {
	return scanStudent(r.DB.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = ?`, id))
}

// GetTx fetches a student inside tx.
func (r *StudentRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Student, error) {
	return scanStudent(tx.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = ?`, id))
}

// EnsureTx creates the student row with a zero score unless it exists.
func (r *StudentRepo) EnsureTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO students (id, name, trust_score, created_at, updated_at) VALUES (?, '', 0, ?, ?)`,
		id, now, now)
	if err != nil && !isDuplicate(err) {
		return err
	}
	return nil
}

// AdjustScoreTx adds delta to a student's trust score.
func (r *StudentRepo) AdjustScoreTx(ctx context.Context, tx *sql.Tx, id uint64, delta int, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE students SET trust_score = trust_score + ?, updated_at = ? WHERE id = ?`, delta, now, id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
