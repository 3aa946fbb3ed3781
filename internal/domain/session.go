package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session 一段连续、无缺口的回合区间
// 同一时刻最多只有一个打开（EndTimestamp 为空）的会话
type Session struct {
	ID             int64            `json:"id"`                     // 自增主键
	StartTimestamp time.Time        `json:"startTimestamp"`         // 会话开始时间
	EndTimestamp   *time.Time       `json:"endTimestamp,omitempty"` // 会话结束时间（nil 表示仍打开）
	StartBalance   *decimal.Decimal `json:"startBalance,omitempty"` // 会话开始时的账户余额快照（可选）
	EndBalance     *decimal.Decimal `json:"endBalance,omitempty"`   // 会话结束时的账户余额快照（可选）
	RoundCount     int              `json:"roundCount"`             // 会话内已落库的回合数
}

// Open 会话是否仍处于打开状态
func (s *Session) Open() bool {
	return s.EndTimestamp == nil
}
