package sqlite

import "database/sql"

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trading_pairs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			venue      TEXT    NOT NULL,
			enabled    INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (symbol, venue)
		);

		CREATE TABLE IF NOT EXISTS ohlcv (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS levels (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			pair_id             INTEGER NOT NULL,
			symbol              TEXT    NOT NULL,
			price               REAL    NOT NULL,
			type                TEXT    NOT NULL,
			timeframe           TEXT    NOT NULL,
			historical_touches  INTEGER NOT NULL DEFAULT 0,
			live_test_count     INTEGER NOT NULL DEFAULT 0,
			score               REAL    NOT NULL DEFAULT 0,
			is_active           INTEGER NOT NULL DEFAULT 1,
			first_touch         INTEGER NOT NULL,
			last_touch          INTEGER NOT NULL,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL,
			meta                TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_levels_pair_active ON levels (pair_id, is_active);

		CREATE TABLE IF NOT EXISTS signals (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			pair_id                 INTEGER NOT NULL,
			symbol                  TEXT    NOT NULL,
			direction               TEXT    NOT NULL,
			level_price             REAL    NOT NULL,
			entry_price             REAL    NOT NULL,
			stop_loss               REAL    NOT NULL,
			ts                      INTEGER NOT NULL,
			trend_classification    TEXT    NOT NULL,
			level_type              TEXT    NOT NULL,
			timeframe               TEXT    NOT NULL,
			test_count              INTEGER NOT NULL DEFAULT 0,
			status                  TEXT    NOT NULL,
			exit_price              REAL,
			exit_timestamp          INTEGER,
			exit_reason             TEXT,
			max_favorable_move_pct  REAL    NOT NULL DEFAULT 0,
			max_adverse_move_pct    REAL    NOT NULL DEFAULT 0,
			first_touch_05pct_ts    INTEGER,
			first_touch_10pct_ts    INTEGER,
			first_touch_15pct_ts    INTEGER,
			result_fixed            REAL,
			result_fixed_at         INTEGER,
			elder_screens           TEXT,
			archived                INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_signals_pair_status ON signals (pair_id, status);

		CREATE TABLE IF NOT EXISTS signal_live_logs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id  INTEGER NOT NULL,
			event_type TEXT    NOT NULL,
			status     TEXT    NOT NULL,
			message    TEXT,
			details    TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_live_logs_signal ON signal_live_logs (signal_id);
	`)
	return err
}
