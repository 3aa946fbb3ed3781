package outcomelog

import (
	"context"
	"fmt"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
)

// RecordBet appends one settled bet to the ledger.
func (s *Store) RecordBet(ctx context.Context, bet *domain.Bet) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO bets (strategy_name, amount, outcome, multiplier, profit_loss, session_id, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, bet.Strategy, bet.Amount.String(), string(bet.Outcome), bet.Multiplier,
		bet.ProfitLoss.String(), bet.SessionID, bet.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert bet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("bet id: %w", err)
	}
	return id, nil
}

// ListBets returns a session's most recent bets, newest first.
func (s *Store) ListBets(ctx context.Context, sessionID int64, limit int) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, strategy_name, amount, outcome, multiplier, profit_loss, timestamp
FROM bets
WHERE session_id=?
ORDER BY id DESC LIMIT ?
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var (
			bet         domain.Bet
			amount, pl  string
			outcome, ts string
		)
		if err := rows.Scan(&bet.ID, &bet.Strategy, &amount, &outcome, &bet.Multiplier, &pl, &ts); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		if bet.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse bet amount: %w", err)
		}
		if bet.ProfitLoss, err = decimal.NewFromString(pl); err != nil {
			return nil, fmt.Errorf("parse bet profit: %w", err)
		}
		if bet.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse bet timestamp: %w", err)
		}
		bet.Outcome = domain.BetOutcome(outcome)
		bet.SessionID = sessionID
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}
