package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetOutcome 下注结果
type BetOutcome string

const (
	BetOutcomeWin  BetOutcome = "win"
	BetOutcomeLoss BetOutcome = "loss"
)

// Bet 一次已结算的下注记录
type Bet struct {
	ID         int64           `json:"id"`         // 自增主键
	Strategy   string          `json:"strategy"`   // 触发下注的策略名
	Amount     decimal.Decimal `json:"amount"`     // 下注金额
	Outcome    BetOutcome      `json:"outcome"`    // win / loss
	Multiplier float64         `json:"multiplier"` // 结算回合的倍数
	ProfitLoss decimal.Decimal `json:"profitLoss"` // 本次盈亏（赢为正，输为负）
	SessionID  int64           `json:"sessionId"`  // 所属会话
	Timestamp  time.Time       `json:"timestamp"`  // 结算时间
}
