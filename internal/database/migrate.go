package database

import (
	"database/sql"
	"fmt"
)

// Migrate creates the ledger store schema if it does not exist. Statements
// are idempotent so the service can run them on every startup.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id UUID PRIMARY KEY,
			member_code TEXT NOT NULL,
			full_name TEXT NOT NULL,
			id_card TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			role TEXT NOT NULL DEFAULT 'member',
			version INT NOT NULL DEFAULT 1,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			member_id UUID NOT NULL REFERENCES members(id),
			type TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'approved', 'rejected')),
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			approved_by UUID,
			approved_at TIMESTAMPTZ,
			rejected_by UUID,
			rejected_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_member
			ON transactions (member_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status
			ON transactions (status, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS dividends (
			id SERIAL PRIMARY KEY,
			member_id UUID NOT NULL REFERENCES members(id),
			year INT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			total_saving BIGINT NOT NULL DEFAULT 0,
			distributed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			distributed_by UUID NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dividends_member ON dividends (member_id, year DESC)`,
		`CREATE TABLE IF NOT EXISTS fund_settings (
			id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			fiscal_year INT NOT NULL,
			rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			net_profit BIGINT NOT NULL DEFAULT 0,
			min_balance BIGINT NOT NULL DEFAULT 1000,
			min_months INT NOT NULL DEFAULT 12,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_by UUID
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id SERIAL PRIMARY KEY,
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL,
			actor_email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
