package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/meal-reservation/internal/database"
)

// MySQLEnv names the DSN of a scratch MySQL database for tests.  Every
// table in it is dropped and recreated.
const MySQLEnv = "MEAL_TEST_MYSQL_DSN"

// Backend opens a fresh, migrated database for a test.
type Backend struct {
	Name string
	Open func(t *testing.T) *sql.DB
}

// Backends lists the stores concurrency tests run against.  The MySQL
// backend is skipped unless MySQLEnv is set.
var Backends = []Backend{
	{Name: "sqlite", Open: NewDB},
	{Name: "mysql", Open: NewMySQLDB},
}

// dropOrder lists tables children first.
var dropOrder = []string{
	"payments", "reservations", "day_counters", "slot_counters", "voucher_settings",
	"time_slots", "menu_items", "foods", "categories", "trust_score_events", "students",
}

// NewMySQLDB connects to the database named by MySQLEnv and applies the
// production schema to it from scratch.
func NewMySQLDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv(MySQLEnv)
	if dsn == "" {
		t.Skipf("%s not set", MySQLEnv)
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse %s: %v", MySQLEnv, err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	db.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range dropOrder {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
