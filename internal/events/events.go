package events

import (
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
)

// RoundRecordedEvent 回合结果已落库事件
type RoundRecordedEvent struct {
	Event     *domain.OutcomeEvent
	Duplicate bool // 是否为重复插入（幂等跳过）
	Timestamp time.Time
}

// BetPlacedEvent 下注请求已被接受事件
type BetPlacedEvent struct {
	Strategy  string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// BetRejectedEvent 下注请求被拒绝事件（策略回到空闲，不致命）
type BetRejectedEvent struct {
	Strategy  string
	Amount    decimal.Decimal
	Reason    string
	Timestamp time.Time
}

// BetResolvedEvent 下注已结算事件
type BetResolvedEvent struct {
	Bet               *domain.Bet
	ConsecutiveLosses int             // 结算后的连败次数
	NextStake         decimal.Decimal // 下一次下注金额
	TotalProfitLoss   decimal.Decimal // 全局累计盈亏
	Timestamp         time.Time
}

// SessionStartedEvent 新会话已创建事件
type SessionStartedEvent struct {
	Session   *domain.Session
	Imported  int // 批量导入的观测回合数
	Timestamp time.Time
}

// SessionResumedEvent 续接既有会话事件
type SessionResumedEvent struct {
	Session     *domain.Session
	MatchLength int // 对齐命中的长度（0 表示无需对齐）
	Backfilled  int // 补录的缺失回合数
	Timestamp   time.Time
}

// EngineHaltedEvent 停止条件触发事件（引擎停止评估新触发）
type EngineHaltedEvent struct {
	Reason          string
	TotalProfitLoss decimal.Decimal
	Timestamp       time.Time
}

// CriticalErrorEvent 严重错误事件（持久化失败等，触发进程退出）
type CriticalErrorEvent struct {
	Component string
	Error     string
	Timestamp time.Time
}
