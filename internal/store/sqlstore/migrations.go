package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"billdesk/internal/store"
)

// Money and quantity columns are TEXT on SQLite: NUMERIC affinity would
// coerce decimal strings to REAL and lose digits.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sales (
		bill_id TEXT PRIMARY KEY,
		date_time DATETIME NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		car_number TEXT NOT NULL DEFAULT '',
		car_model TEXT NOT NULL DEFAULT '',
		car_km TEXT NOT NULL DEFAULT '',
		subtotal TEXT NOT NULL DEFAULT '0',
		discount_percent TEXT NOT NULL DEFAULT '0',
		net_total TEXT NOT NULL DEFAULT '0',
		paid BOOLEAN NOT NULL DEFAULT 0,
		is_edited BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date_time ON sales(date_time)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bill_id TEXT NOT NULL REFERENCES sales(bill_id) ON DELETE CASCADE,
		sr_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_bill_id ON sale_items(bill_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time DATETIME NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		tracked BOOLEAN NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT 'General'
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_id INTEGER NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		sr_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'General',
		tracked BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase_id ON purchase_items(purchase_id)`,
	`CREATE TABLE IF NOT EXISTS expenditures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time DATETIME NOT NULL,
		sr_no_daily INTEGER NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_name TEXT NOT NULL,
		item_key TEXT NOT NULL UNIQUE,
		quantity TEXT NOT NULL DEFAULT '0',
		last_updated DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_key TEXT NOT NULL,
		delta TEXT NOT NULL,
		quantity_after TEXT NOT NULL,
		source TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_movements_item_key ON inventory_movements(item_key)`,
	`CREATE TABLE IF NOT EXISTS service_reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bill_id TEXT NOT NULL,
		car_number TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		service_due_date DATETIME NOT NULL,
		is_notified BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS business_profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		owner_name TEXT NOT NULL DEFAULT '',
		logo_path TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '+91'
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'admin',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sales (
		bill_id TEXT PRIMARY KEY,
		date_time TIMESTAMPTZ NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		car_number TEXT NOT NULL DEFAULT '',
		car_model TEXT NOT NULL DEFAULT '',
		car_km TEXT NOT NULL DEFAULT '',
		subtotal NUMERIC NOT NULL DEFAULT 0,
		discount_percent NUMERIC NOT NULL DEFAULT 0,
		net_total NUMERIC NOT NULL DEFAULT 0,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date_time ON sales(date_time)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id BIGSERIAL PRIMARY KEY,
		bill_id TEXT NOT NULL REFERENCES sales(bill_id) ON DELETE CASCADE,
		sr_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		rate NUMERIC NOT NULL,
		amount NUMERIC NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_bill_id ON sale_items(bill_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGSERIAL PRIMARY KEY,
		date_time TIMESTAMPTZ NOT NULL,
		total_amount NUMERIC NOT NULL DEFAULT 0,
		tracked BOOLEAN NOT NULL DEFAULT FALSE,
		category TEXT NOT NULL DEFAULT 'General'
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id BIGSERIAL PRIMARY KEY,
		purchase_id BIGINT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		sr_no INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		rate NUMERIC NOT NULL,
		amount NUMERIC NOT NULL,
		category TEXT NOT NULL DEFAULT 'General',
		tracked BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase_id ON purchase_items(purchase_id)`,
	`CREATE TABLE IF NOT EXISTS expenditures (
		id BIGSERIAL PRIMARY KEY,
		date_time TIMESTAMPTZ NOT NULL,
		sr_no_daily INTEGER NOT NULL,
		description TEXT NOT NULL,
		amount NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id BIGSERIAL PRIMARY KEY,
		item_name TEXT NOT NULL,
		item_key TEXT NOT NULL UNIQUE,
		quantity NUMERIC NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		id BIGSERIAL PRIMARY KEY,
		item_key TEXT NOT NULL,
		delta NUMERIC NOT NULL,
		quantity_after NUMERIC NOT NULL,
		source TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_movements_item_key ON inventory_movements(item_key)`,
	`CREATE TABLE IF NOT EXISTS service_reminders (
		id BIGSERIAL PRIMARY KEY,
		bill_id TEXT NOT NULL,
		car_number TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		service_due_date TIMESTAMPTZ NOT NULL,
		is_notified BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS business_profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		owner_name TEXT NOT NULL DEFAULT '',
		logo_path TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '+91'
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'admin',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// migrate creates the schema for the connected dialect. Every statement is
// idempotent so it runs on each start.
func migrate(ctx context.Context, db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", store.ErrStorage, err)
		}
	}
	return nil
}
