package outcomelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDuplicateEvent is returned by Append when an outcome with the same
// (timestamp, value) already exists in the session. Callers are expected to
// treat it as a no-op: ingestion is idempotent by design.
var ErrDuplicateEvent = errors.New("duplicate outcome event")

// Store is the append-only, session-partitioned history of round outcomes
// plus the settled-bet ledger. Backed by a single-connection sqlite database.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS sessions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  start_timestamp TEXT NOT NULL,
  end_timestamp TEXT,
  start_balance TEXT,
  end_balance TEXT,
  round_count INTEGER NOT NULL DEFAULT 0
);`,
		`
CREATE TABLE IF NOT EXISTS outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  value REAL NOT NULL,
  bettor_count INTEGER,
  timestamp TEXT NOT NULL,
  session_id INTEGER NOT NULL REFERENCES sessions(id)
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_outcomes_session_ts_value ON outcomes(session_id, timestamp, value);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_session_id ON outcomes(session_id, id DESC);`,
		`
CREATE TABLE IF NOT EXISTS bets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  strategy_name TEXT NOT NULL,
  amount TEXT NOT NULL,
  outcome TEXT NOT NULL CHECK(outcome IN ('win','loss')),
  multiplier REAL NOT NULL,
  profit_loss TEXT NOT NULL,
  session_id INTEGER NOT NULL REFERENCES sessions(id),
  timestamp TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_bets_session_id ON bets(session_id, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
