package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		is_available BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		current_location TEXT NOT NULL DEFAULT '',
		earnings INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		delivery_address TEXT NOT NULL,
		restaurant_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		items TEXT NOT NULL,
		subtotal INTEGER NOT NULL,
		delivery_fee INTEGER NOT NULL,
		total INTEGER NOT NULL,
		driver_earnings INTEGER NOT NULL,
		status TEXT NOT NULL,
		driver_id TEXT REFERENCES drivers(id),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_driver_idx ON orders (status, driver_id)`,
	`CREATE INDEX IF NOT EXISTS orders_driver_idx ON orders (driver_id)`,
	`CREATE TABLE IF NOT EXISTS order_tracking (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL REFERENCES orders(id),
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_by_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_tracking_order_idx ON order_tracking (order_id, seq)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_type, recipient_id, is_read)`,
}

func sqliteUnique(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// NewSQLiteRepo opens (or creates) a SQLite database file. SQLite has a
// single writer, so the pool is capped at one connection.
func NewSQLiteRepo(ctx context.Context, path string) (*SQLRepo, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	r := newSQLRepo(db, dialect{name: "sqlite", schema: sqliteSchema, isUnique: sqliteUnique})
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}
