// Package dbtest opens isolated in-memory sqlite databases carrying the marketcart
// schema for package tests.
package dbtest

import (
	"io"
	"log"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketcart-backend/pkg/db"
)

// schema mirrors pkg/migrate/migrations with sqlite column types.
const schema = `
CREATE TABLE sellers (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT 'US',
	address TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT 'UTC',
	same_day_pickup_allowed BOOLEAN NOT NULL DEFAULT 1,
	cutoff_time TEXT,
	commission_override TEXT,
	processor_account_id TEXT,
	payouts_enabled BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE products (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price_cents INTEGER NOT NULL,
	stock INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE services (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price_cents INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE cart_lines (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	product_id TEXT,
	service_id TEXT,
	quantity INTEGER NOT NULL,
	booking_date TEXT,
	booking_minute INTEGER,
	created_at DATETIME
);
CREATE TABLE weekly_schedules (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	weekday INTEGER NOT NULL,
	start_minute INTEGER,
	end_minute INTEGER,
	is_available BOOLEAN NOT NULL DEFAULT 1,
	updated_at DATETIME,
	UNIQUE (seller_id, weekday)
);
CREATE TABLE day_slots (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	slot_date TEXT NOT NULL,
	slot_minute INTEGER NOT NULL,
	created_at DATETIME,
	UNIQUE (seller_id, slot_date, slot_minute)
);
CREATE TABLE availability_blocks (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	block_date TEXT NOT NULL,
	start_minute INTEGER,
	end_minute INTEGER,
	kind TEXT NOT NULL DEFAULT 'seller',
	order_id TEXT,
	reason TEXT,
	created_at DATETIME
);
CREATE TABLE slot_locks (
	seller_id TEXT NOT NULL,
	slot_date TEXT NOT NULL,
	slot_minute INTEGER NOT NULL,
	customer_id TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	locked_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (seller_id, slot_date, slot_minute)
);
CREATE TABLE orders (
	id TEXT PRIMARY KEY,
	checkout_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'awaiting_payment',
	currency TEXT NOT NULL DEFAULT 'usd',
	subtotal_cents INTEGER NOT NULL,
	discount_code TEXT,
	discount_cents INTEGER NOT NULL DEFAULT 0,
	points_redeemed INTEGER NOT NULL DEFAULT 0,
	points_discount_cents INTEGER NOT NULL DEFAULT 0,
	total_cents INTEGER NOT NULL,
	pickup_date TEXT,
	pickup_minute INTEGER,
	client_type TEXT NOT NULL DEFAULT 'web',
	payment_reference TEXT,
	payment_reference_kind TEXT,
	paid_at DATETIME,
	ready_at DATETIME,
	picked_up_at DATETIME,
	pickup_scanned_at DATETIME,
	pickup_scanned_by TEXT,
	cancelled_at DATETIME,
	cancel_reason TEXT,
	commission_rate TEXT,
	seller_amount_cents INTEGER,
	commission_cents INTEGER,
	commission_frozen_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE order_line_items (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	cart_line_id TEXT,
	product_id TEXT NOT NULL,
	name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price_cents INTEGER NOT NULL,
	stock_decremented BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME
);
CREATE TABLE order_service_items (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	cart_line_id TEXT,
	service_id TEXT NOT NULL,
	name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price_cents INTEGER NOT NULL,
	booking_date TEXT NOT NULL,
	booking_minute INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	created_at DATETIME
);
CREATE TABLE discount_codes (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	value INTEGER NOT NULL,
	min_purchase_cents INTEGER NOT NULL DEFAULT 0,
	max_discount_cents INTEGER,
	usage_limit INTEGER,
	expires_at DATETIME,
	any_seller BOOLEAN NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME
);
CREATE TABLE discount_code_sellers (
	discount_code_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	PRIMARY KEY (discount_code_id, seller_id)
);
CREATE TABLE discount_code_usages (
	id TEXT PRIMARY KEY,
	discount_code_id TEXT NOT NULL,
	order_id TEXT NOT NULL UNIQUE,
	checkout_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	created_at DATETIME
);
CREATE TABLE points_accounts (
	customer_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME
);
CREATE TABLE points_redemptions (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE,
	checkout_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	points INTEGER NOT NULL,
	amount_cents INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'reserved',
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE payouts (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	currency TEXT NOT NULL,
	base_amount_cents INTEGER NOT NULL,
	base_currency TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	processor_reference TEXT,
	failure_reason TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	data TEXT,
	read_at DATETIME,
	created_at DATETIME
);
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);
`

// Open returns a fresh single-connection sqlite database with every table created.
// Callers must not touch the returned handle from inside a transaction on the same
// goroutine; the pool holds exactly one connection.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:marketcart_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a *db.Client for services that take one.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
