package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are stored as decimal strings in minor units (wei); they exceed
// the range of SQLite integers.
const schema = `
CREATE TABLE IF NOT EXISTS settlement_attempts (
    id TEXT PRIMARY KEY,
    receipt_id TEXT NOT NULL,
    leg_role TEXT NOT NULL,
    destination TEXT NOT NULL,
    amount TEXT NOT NULL,
    status TEXT NOT NULL,
    ledger_tx_id TEXT,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (receipt_id, leg_role)
);

CREATE TABLE IF NOT EXISTS settlement_results (
    receipt_id TEXT PRIMARY KEY,
    overall_status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_receipt_id ON settlement_attempts(receipt_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON settlement_attempts(status);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
