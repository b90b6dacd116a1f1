package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		is_available BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		current_location TEXT NOT NULL DEFAULT '',
		earnings BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
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
		subtotal BIGINT NOT NULL,
		delivery_fee BIGINT NOT NULL,
		total BIGINT NOT NULL,
		driver_earnings BIGINT NOT NULL,
		status TEXT NOT NULL,
		driver_id TEXT REFERENCES drivers(id),
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_driver_idx ON orders (status, driver_id)`,
	`CREATE INDEX IF NOT EXISTS orders_driver_idx ON orders (driver_id)`,
	`CREATE TABLE IF NOT EXISTS order_tracking (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL REFERENCES orders(id),
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_by_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_tracking_order_idx ON order_tracking (order_id, seq)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_type, recipient_id, is_read)`,
}

func postgresUnique(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == "23505"
}

func NewPostgresRepo(ctx context.Context, dsn string) (*SQLRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := newSQLRepo(db, dialect{name: "postgres", numbered: true, lockShared: " FOR SHARE", schema: postgresSchema, isUnique: postgresUnique})
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}
