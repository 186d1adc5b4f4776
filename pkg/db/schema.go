package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS order_intents (
    id TEXT PRIMARY KEY,
    trading_date TEXT NOT NULL,
    session_id INTEGER NOT NULL,
    session_name TEXT NOT NULL,
    side TEXT NOT NULL,
    symbol TEXT NOT NULL,
    signal_price TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_order_intents_date_status ON order_intents(trading_date, status);

CREATE TABLE IF NOT EXISTS trade_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id TEXT NOT NULL,
    trading_date TEXT NOT NULL,
    kind TEXT NOT NULL,
    session_id INTEGER NOT NULL,
    side TEXT NOT NULL,
    price TEXT NOT NULL,
    reason TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_events_date ON trade_events(trading_date);

CREATE TABLE IF NOT EXISTS reference_levels (
    trading_date TEXT NOT NULL,
    session_id INTEGER NOT NULL,
    high TEXT NOT NULL,
    low TEXT NOT NULL,
    eligible_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (trading_date, session_id)
);
`

// ApplyMigrations creates tables and adds columns introduced after the
// first release.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Broker identifiers arrive once the bracket is filled.
	if err := ensureColumn(d.DB, "order_intents", "trade_id", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "order_intents", "entry_order_id", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "order_intents", "complex_order_id", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "order_intents", "fill_price", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "order_intents", "error", "TEXT"); err != nil {
		return err
	}
	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
