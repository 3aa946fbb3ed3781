package outcomelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/betbot/crasher/internal/domain"
)

// Append persists one round outcome into the session. Duplicate inserts
// (same timestamp and value within the session) return ErrDuplicateEvent and
// leave the log untouched; any other failure is a real persistence error.
func (s *Store) Append(ctx context.Context, sessionID int64, value float64, bettorCount *int, ts time.Time) (*domain.OutcomeEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO outcomes (value, bettor_count, timestamp, session_id)
VALUES (?, ?, ?, ?)
`, value, intOrNull(bettorCount), ts.UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}
	if n == 0 {
		return nil, ErrDuplicateEvent
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("outcome id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET round_count = round_count + 1 WHERE id=?`, sessionID,
	); err != nil {
		return nil, fmt.Errorf("bump round count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	return &domain.OutcomeEvent{
		ID:          id,
		Value:       value,
		BettorCount: bettorCount,
		Timestamp:   ts.UTC(),
		SessionID:   sessionID,
	}, nil
}

// RecentWindow returns the last n outcomes of the session, oldest first.
// Shorter history yields a shorter slice.
func (s *Store) RecentWindow(ctx context.Context, sessionID int64, n int) ([]domain.OutcomeEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, value, bettor_count, timestamp
FROM outcomes
WHERE session_id=?
ORDER BY id DESC LIMIT ?
`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent window: %w", err)
	}
	defer rows.Close()

	var out []domain.OutcomeEvent
	for rows.Next() {
		var (
			ev     domain.OutcomeEvent
			bc     sql.NullInt64
			tsText string
		)
		if err := rows.Scan(&ev.ID, &ev.Value, &bc, &tsText); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		ev.SessionID = sessionID
		if bc.Valid {
			v := int(bc.Int64)
			ev.BettorCount = &v
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, tsText); err != nil {
			return nil, fmt.Errorf("parse outcome ts: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}

	// rows arrive newest first; flip to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentValues is RecentWindow reduced to the raw multiplier values,
// oldest first. The trigger evaluation and the continuity resolver only
// need the numbers.
func (s *Store) RecentValues(ctx context.Context, sessionID int64, n int) ([]float64, error) {
	events, err := s.RecentWindow(ctx, sessionID, n)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(events))
	for i, ev := range events {
		values[i] = ev.Value
	}
	return values, nil
}

func intOrNull(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
