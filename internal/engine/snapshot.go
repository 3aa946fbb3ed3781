package engine

import "github.com/shopspring/decimal"

// Snapshot 引擎状态快照（派生数据，不落库）
// 通过原子指针发布，状态查询方可并发读取而不打扰事件处理
type Snapshot struct {
	SessionID       int64           `json:"sessionId"`
	TotalProfitLoss decimal.Decimal `json:"totalProfitLoss"`
	ActiveStrategy  string          `json:"activeStrategy"` // 空串表示槽位空闲
	Halted          bool            `json:"halted"`
	HaltReason      string          `json:"haltReason,omitempty"`
	Stopped         bool            `json:"stopped"` // 控制面手动暂停
	RoundCount      int             `json:"roundCount"`
	Strategies      []StrategyView  `json:"strategies"`
}

// StrategyView 策略的只读视图
type StrategyView struct {
	Name                 string          `json:"name"`
	CurrentStake         decimal.Decimal `json:"currentStake"`
	ConsecutiveLosses    int             `json:"consecutiveLosses"`
	MaxConsecutiveLosses int             `json:"maxConsecutiveLosses"`
	CumulativeProfitLoss decimal.Decimal `json:"cumulativeProfitLoss"`
	AwaitingResult       bool            `json:"awaitingResult"`
}
