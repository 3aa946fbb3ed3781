package outcomelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateSession opens a new session with no end timestamp.
func (s *Store) CreateSession(ctx context.Context, start time.Time, startBalance *decimal.Decimal) (*domain.Session, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (start_timestamp, start_balance, round_count)
VALUES (?, ?, 0)
`, start.UTC().Format(time.RFC3339Nano), decimalOrNull(startBalance))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return &domain.Session{
		ID:             id,
		StartTimestamp: start.UTC(),
		StartBalance:   startBalance,
	}, nil
}

// CloseSession stamps the end timestamp and balance marker. Closing an
// already-closed session is a no-op.
func (s *Store) CloseSession(ctx context.Context, sessionID int64, end time.Time, endBalance *decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET end_timestamp=?, end_balance=?
WHERE id=? AND end_timestamp IS NULL
`, end.UTC().Format(time.RFC3339Nano), decimalOrNull(endBalance), sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// LastOpenSession returns the most recent session without an end timestamp,
// along with the timestamp of its latest stored outcome (nil when the session
// has no outcomes yet). Returns (nil, nil, nil) when no open session exists.
func (s *Store) LastOpenSession(ctx context.Context) (*domain.Session, *time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, start_timestamp, start_balance, round_count
FROM sessions
WHERE end_timestamp IS NULL
ORDER BY id DESC LIMIT 1
`)
	var (
		sess         domain.Session
		startTS      string
		startBalance sql.NullString
	)
	if err := row.Scan(&sess.ID, &startTS, &startBalance, &sess.RoundCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("query open session: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, startTS)
	if err != nil {
		return nil, nil, fmt.Errorf("parse session start: %w", err)
	}
	sess.StartTimestamp = ts
	if sess.StartBalance, err = parseNullDecimal(startBalance); err != nil {
		return nil, nil, fmt.Errorf("parse session balance: %w", err)
	}

	// 取最新落库回合的时间戳。注意不能用 MAX(timestamp)：RFC3339Nano 会
	// 省略小数末尾的 0，同一秒内小数位数不同时字符串序与时间序不一致，
	// 以 id 为准（与 RecentWindow 同一权威顺序）
	var lastTS *time.Time
	var lastTSStr string
	err = s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM outcomes WHERE session_id=? ORDER BY id DESC LIMIT 1`, sess.ID,
	).Scan(&lastTSStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// 会话还没有任何回合
	case err != nil:
		return nil, nil, fmt.Errorf("query last outcome ts: %w", err)
	default:
		t, err := time.Parse(time.RFC3339Nano, lastTSStr)
		if err != nil {
			return nil, nil, fmt.Errorf("parse last outcome ts: %w", err)
		}
		lastTS = &t
	}

	return &sess, lastTS, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, start_timestamp, end_timestamp, start_balance, end_balance, round_count
FROM sessions
ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			sess             domain.Session
			startTS          string
			endTS            sql.NullString
			startBal, endBal sql.NullString
		)
		if err := rows.Scan(&sess.ID, &startTS, &endTS, &startBal, &endBal, &sess.RoundCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.StartTimestamp, err = time.Parse(time.RFC3339Nano, startTS); err != nil {
			return nil, fmt.Errorf("parse session start: %w", err)
		}
		if endTS.Valid {
			t, err := time.Parse(time.RFC3339Nano, endTS.String)
			if err != nil {
				return nil, fmt.Errorf("parse session end: %w", err)
			}
			sess.EndTimestamp = &t
		}
		if sess.StartBalance, err = parseNullDecimal(startBal); err != nil {
			return nil, fmt.Errorf("parse start balance: %w", err)
		}
		if sess.EndBalance, err = parseNullDecimal(endBal); err != nil {
			return nil, fmt.Errorf("parse end balance: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func decimalOrNull(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
