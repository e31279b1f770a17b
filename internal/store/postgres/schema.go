package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'kasir', 'owner'))
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS technicians (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price BIGINT NOT NULL CHECK (price > 0),
		cost BIGINT NOT NULL CHECK (cost > 0),
		stock INTEGER NOT NULL CHECK (stock >= 0),
		supplier_id TEXT REFERENCES suppliers(id),
		entry_date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stale_flags (
		product_id TEXT PRIMARY KEY REFERENCES products(id),
		reference_date DATE NOT NULL,
		discount_percent INTEGER NOT NULL CHECK (discount_percent BETWEEN 0 AND 100)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL DEFAULT '',
		tx_count INTEGER NOT NULL DEFAULT 0 CHECK (tx_count >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		cashier_id TEXT NOT NULL,
		member_id TEXT REFERENCES members(id),
		subtotal BIGINT NOT NULL,
		tax BIGINT NOT NULL,
		discount BIGINT NOT NULL,
		total BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		sale_id TEXT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_price BIGINT NOT NULL,
		list_price BIGINT NOT NULL,
		PRIMARY KEY (sale_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL REFERENCES suppliers(id),
		total BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_lines (
		order_id TEXT NOT NULL REFERENCES purchase_orders(id),
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_cost BIGINT NOT NULL CHECK (unit_cost > 0),
		repriced_to BIGINT,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS service_tickets (
		id TEXT PRIMARY KEY,
		member_id TEXT REFERENCES members(id),
		cashier_id TEXT NOT NULL,
		technician_id TEXT NOT NULL,
		equipment TEXT NOT NULL,
		complaint TEXT NOT NULL,
		cost BIGINT CHECK (cost >= 0),
		status TEXT NOT NULL CHECK (status IN ('Proses', 'Selesai', 'Diambil')),
		intake_at TIMESTAMPTZ NOT NULL,
		completed_on DATE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_product ON sale_lines (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_service_tickets_status ON service_tickets (status, technician_id)`,
}

// Migrate creates the tables the store needs if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
