package domain

import "time"

// OutcomeEvent 一次已确认的回合结果（崩盘倍数）
// 由 OutcomeLog 在落库时创建，落库后不可变
type OutcomeEvent struct {
	ID          int64     `json:"id"`                    // 自增主键（单调递增）
	Value       float64   `json:"value"`                 // 回合倍数，>= 0
	BettorCount *int      `json:"bettorCount,omitempty"` // 本回合下注人数（可选，来自页面采集）
	Timestamp   time.Time `json:"timestamp"`             // 回合结束时间
	SessionID   int64     `json:"sessionId"`             // 所属会话
}
