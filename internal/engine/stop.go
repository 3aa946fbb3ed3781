package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EvaluateStop 停止条件监视器：引擎快照的纯函数
// 全局累计亏损达到 maxLoss，或任一策略连败达到其上限，即判定停止。
// 停止后引擎不再评估新触发，但仍然落库回合并结算尚未出结果的下注
func EvaluateStop(snap *Snapshot, maxLoss decimal.Decimal) (reason string, halt bool) {
	if snap.TotalProfitLoss.LessThanOrEqual(maxLoss.Neg()) {
		return fmt.Sprintf("达到最大亏损 (%s)", snap.TotalProfitLoss.Neg().String()), true
	}
	for _, sv := range snap.Strategies {
		if sv.ConsecutiveLosses >= sv.MaxConsecutiveLosses {
			return fmt.Sprintf("策略 %s 达到最大连败次数 (%d)", sv.Name, sv.ConsecutiveLosses), true
		}
	}
	return "", false
}
