package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Interfaces the core needs from external collaborators (feed, bet placement).
//
// NOTE: These are intentionally defined in a "neutral" package to avoid
// circular dependencies between the engine, the adapters and cmd wiring.

// OutcomeHandler consumes confirmed round outcomes, one at a time, in
// monotonically increasing timestamp order. Implemented by the engine.
type OutcomeHandler interface {
	OnOutcome(ctx context.Context, value float64, bettorCount *int, ts time.Time) error
}

// OutcomeSource is the live collaborator producing round outcomes.
type OutcomeSource interface {
	// RecentObservedWindow returns the most recently observed outcome values
	// (oldest first, typically <= 20). Used once at startup for session
	// continuity resolution.
	RecentObservedWindow(ctx context.Context) ([]float64, error)
	// Run pushes every confirmed round into the handler until ctx is done.
	Run(ctx context.Context, handler OutcomeHandler) error
}

// BetSink performs the physical wager placement. The resolution arrives later
// as a normal outcome pushed into the OutcomeHandler.
type BetSink interface {
	// RequestBet returns whether the placement was accepted. A rejection is
	// not fatal to the engine.
	RequestBet(ctx context.Context, amount decimal.Decimal) (accepted bool, err error)
}

// BalanceProvider exposes the external account balance snapshot, used for
// session start/end markers. May return (nil, nil) when unavailable.
type BalanceProvider interface {
	CurrentBalance(ctx context.Context) (*decimal.Decimal, error)
}
