// Package testutil provides a throwaway SQLite store with the production
// schema shape, plus catalog fixtures, for service and handler tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSchema mirrors database.Schema in SQLite syntax.  Tables, columns,
// keys and references must stay in step with the MySQL DDL.
var SQLiteSchema = []string{
	`CREATE TABLE students (
		id          INTEGER NOT NULL PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		trust_score INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE TABLE trust_score_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id     INTEGER NOT NULL REFERENCES students(id),
		reservation_id INTEGER NULL UNIQUE,
		delta          INTEGER NOT NULL,
		reason         TEXT NOT NULL,
		actor_id       INTEGER NULL,
		created_at     DATETIME NOT NULL
	)`,
	`CREATE TABLE categories (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE foods (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		price       INTEGER NOT NULL,
		category_id INTEGER NULL REFERENCES categories(id)
	)`,
	`CREATE TABLE menu_items (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		food_id            INTEGER NOT NULL REFERENCES foods(id),
		menu_date          TEXT NULL,
		weekday            INTEGER NULL,
		meal_type          TEXT NOT NULL,
		time_slot_count    INTEGER NOT NULL,
		time_slot_capacity INTEGER NOT NULL,
		daily_capacity     INTEGER NOT NULL,
		is_available       BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE time_slots (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_item_id INTEGER NOT NULL REFERENCES menu_items(id),
		start_time   TEXT NOT NULL,
		end_time     TEXT NOT NULL
	)`,
	`CREATE TABLE voucher_settings (
		id    INTEGER NOT NULL PRIMARY KEY,
		price INTEGER NOT NULL
	)`,
	`INSERT INTO voucher_settings (id, price) VALUES (1, 0)`,
	`CREATE TABLE slot_counters (
		time_slot_id  INTEGER NOT NULL,
		reserved_date TEXT NOT NULL,
		reserved      INTEGER NOT NULL,
		PRIMARY KEY (time_slot_id, reserved_date)
	)`,
	`CREATE TABLE day_counters (
		menu_item_id  INTEGER NOT NULL,
		reserved_date TEXT NOT NULL,
		reserved      INTEGER NOT NULL,
		PRIMARY KEY (menu_item_id, reserved_date)
	)`,
	`CREATE TABLE reservations (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id    INTEGER NOT NULL REFERENCES students(id),
		menu_item_id  INTEGER NOT NULL REFERENCES menu_items(id),
		time_slot_id  INTEGER NOT NULL REFERENCES time_slots(id),
		reserved_date TEXT NOT NULL,
		meal_type     TEXT NOT NULL,
		has_voucher   BOOLEAN NOT NULL DEFAULT 0,
		price         INTEGER NOT NULL,
		status        TEXT NOT NULL,
		delivery_code TEXT NULL UNIQUE,
		version       INTEGER NOT NULL DEFAULT 0,
		ready_at      DATETIME NULL,
		picked_up_at  DATETIME NULL,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL,
		UNIQUE (student_id, reserved_date, meal_type)
	)`,
	`CREATE TABLE payments (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		reservation_id INTEGER NOT NULL,
		user_id        INTEGER NOT NULL,
		amount         INTEGER NOT NULL,
		authority      TEXT NULL UNIQUE,
		ref_id         TEXT NULL,
		status         TEXT NOT NULL,
		error_message  TEXT NULL,
		needs_review   BOOLEAN NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL
	)`,
}

// NewDB opens a file-backed SQLite database in t.TempDir() and applies the
// schema.  The pool holds several connections in WAL mode and every
// transaction begins IMMEDIATE, so concurrent writers queue on the
// database lock instead of failing on a read-to-write upgrade.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "meals.db")
	dsn := "file:" + dbPath + "?_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range SQLiteSchema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db
}
