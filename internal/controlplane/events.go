package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/betbot/crasher/internal/events"
)

// EventEntry is one row of the operator-facing event feed.
type EventEntry struct {
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLog keeps the most recent engine events in memory for /api/events.
// Implements ports.EngineEventHandler; delivery is serial so a plain mutex
// is enough.
type EventLog struct {
	mu      sync.Mutex
	entries []EventEntry
	cap     int
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventLog{cap: capacity}
}

func (l *EventLog) add(kind, detail string, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, EventEntry{Kind: kind, Detail: detail, Timestamp: ts})
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

// Entries returns a copy, oldest first.
func (l *EventLog) Entries() []EventEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *EventLog) OnRoundRecorded(_ context.Context, ev events.RoundRecordedEvent) {
	if ev.Duplicate {
		return
	}
	l.add("round", fmt.Sprintf("%.2fx", ev.Event.Value), ev.Timestamp)
}

func (l *EventLog) OnBetPlaced(_ context.Context, ev events.BetPlacedEvent) {
	l.add("bet_placed", fmt.Sprintf("%s %s", ev.Strategy, ev.Amount.String()), ev.Timestamp)
}

func (l *EventLog) OnBetRejected(_ context.Context, ev events.BetRejectedEvent) {
	l.add("bet_rejected", fmt.Sprintf("%s %s: %s", ev.Strategy, ev.Amount.String(), ev.Reason), ev.Timestamp)
}

func (l *EventLog) OnBetResolved(_ context.Context, ev events.BetResolvedEvent) {
	l.add("bet_resolved", fmt.Sprintf("%s %s %s (累计 %s)",
		ev.Bet.Strategy, ev.Bet.Outcome, ev.Bet.ProfitLoss.String(), ev.TotalProfitLoss.String()), ev.Timestamp)
}

func (l *EventLog) OnEngineHalted(_ context.Context, ev events.EngineHaltedEvent) {
	l.add("halted", ev.Reason, ev.Timestamp)
}

// Session lifecycle happens before the engine starts, so cmd wiring reports
// it directly instead of going through the engine's handler list.

func (l *EventLog) OnSessionStarted(ev events.SessionStartedEvent) {
	l.add("session_started", fmt.Sprintf("#%d 导入 %d 回合", ev.Session.ID, ev.Imported), ev.Timestamp)
}

func (l *EventLog) OnSessionResumed(ev events.SessionResumedEvent) {
	l.add("session_resumed", fmt.Sprintf("#%d 对齐 L=%d 补录 %d", ev.Session.ID, ev.MatchLength, ev.Backfilled), ev.Timestamp)
}

func (l *EventLog) OnCriticalError(ev events.CriticalErrorEvent) {
	l.add("critical", fmt.Sprintf("%s: %s", ev.Component, ev.Error), ev.Timestamp)
}
