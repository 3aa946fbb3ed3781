package ports

import (
	"context"

	"github.com/betbot/crasher/internal/events"
)

// EngineEventHandler handles engine lifecycle events (serial delivery).
type EngineEventHandler interface {
	OnRoundRecorded(ctx context.Context, ev events.RoundRecordedEvent)
	OnBetPlaced(ctx context.Context, ev events.BetPlacedEvent)
	OnBetRejected(ctx context.Context, ev events.BetRejectedEvent)
	OnBetResolved(ctx context.Context, ev events.BetResolvedEvent)
	OnEngineHalted(ctx context.Context, ev events.EngineHaltedEvent)
}

// NopEngineEventHandler 空实现：只关心部分事件的处理器可内嵌它
type NopEngineEventHandler struct{}

func (NopEngineEventHandler) OnRoundRecorded(context.Context, events.RoundRecordedEvent) {}
func (NopEngineEventHandler) OnBetPlaced(context.Context, events.BetPlacedEvent)         {}
func (NopEngineEventHandler) OnBetRejected(context.Context, events.BetRejectedEvent)     {}
func (NopEngineEventHandler) OnBetResolved(context.Context, events.BetResolvedEvent)     {}
func (NopEngineEventHandler) OnEngineHalted(context.Context, events.EngineHaltedEvent)   {}
