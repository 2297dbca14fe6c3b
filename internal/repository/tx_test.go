package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meal-reservation/internal/testutil"
)

func TestInTxRetryRerunsDeadlockVictims(t *testing.T) {
	db := testutil.NewDB(t)
	calls := 0
	err := InTxRetry(context.Background(), db, 3, func(tx *sql.Tx) error {
		calls++
		if calls == 1 {
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
		}
		_, err := tx.Exec(`INSERT INTO categories (name) VALUES (?)`, "stews")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, testutil.Count(t, db, `SELECT COUNT(*) FROM categories`))
}

func TestInTxRetryReturnsOtherErrorsAtOnce(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")
	calls := 0
	err := InTxRetry(context.Background(), db, 3, func(tx *sql.Tx) error {
		calls++
		if _, err := tx.Exec(`INSERT INTO categories (name) VALUES (?)`, "rice"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, testutil.Count(t, db, `SELECT COUNT(*) FROM categories`), "rolled back")
}

func TestInTxRetryGivesUp(t *testing.T) {
	db := testutil.NewDB(t)
	calls := 0
	err := InTxRetry(context.Background(), db, 2, func(tx *sql.Tx) error {
		calls++
		return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	})
	assert.True(t, IsDeadlock(err))
	assert.Equal(t, 2, calls)
}
