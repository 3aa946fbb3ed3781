package engine

import (
	"github.com/betbot/crasher/pkg/config"
	"github.com/shopspring/decimal"
)

// StrategyState 单个策略的配置 + 运行状态
// 配置字段加载后不可变；运行字段只通过引擎的状态转换演化
type StrategyState struct {
	// 配置（不可变）
	Name                 string
	BaseStake            decimal.Decimal
	TargetMultiplier     float64
	TriggerWindowSize    int
	TriggerThreshold     float64
	LossMultiplier       decimal.Decimal
	MaxConsecutiveLosses int

	// 运行状态
	CurrentStake         decimal.Decimal // 不变式: losses==0 时等于 BaseStake，否则 BaseStake*LossMultiplier^losses
	ConsecutiveLosses    int
	CumulativeProfitLoss decimal.Decimal
	AwaitingResult       bool
}

// NewStrategyState 从静态配置构建初始运行状态
func NewStrategyState(cfg config.StrategyConfig) *StrategyState {
	base := decimal.NewFromFloat(cfg.BaseStake)
	return &StrategyState{
		Name:                 cfg.Name,
		BaseStake:            base,
		TargetMultiplier:     cfg.TargetMultiplier,
		TriggerWindowSize:    cfg.TriggerWindowSize,
		TriggerThreshold:     cfg.TriggerThreshold,
		LossMultiplier:       decimal.NewFromFloat(cfg.LossMultiplier),
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		CurrentStake:         base,
	}
}

// StakeFor 马丁格尔倍投：连败 n 次后的下注金额 = BaseStake * LossMultiplier^n
func (s *StrategyState) StakeFor(losses int) decimal.Decimal {
	if losses == 0 {
		return s.BaseStake
	}
	return s.BaseStake.Mul(s.LossMultiplier.Pow(decimal.NewFromInt(int64(losses))))
}

// applyWin 赢：盈利 = 当前注 * (目标倍数 - 1)，连败清零、回到基础注
func (s *StrategyState) applyWin() decimal.Decimal {
	profit := s.CurrentStake.Mul(decimal.NewFromFloat(s.TargetMultiplier).Sub(decimal.NewFromInt(1)))
	s.CumulativeProfitLoss = s.CumulativeProfitLoss.Add(profit)
	s.ConsecutiveLosses = 0
	s.CurrentStake = s.BaseStake
	return profit
}

// applyLoss 输：亏损 = 当前注，连败 +1、按倍投规则抬注
func (s *StrategyState) applyLoss() decimal.Decimal {
	loss := s.CurrentStake.Neg()
	s.CumulativeProfitLoss = s.CumulativeProfitLoss.Add(loss)
	s.ConsecutiveLosses++
	s.CurrentStake = s.StakeFor(s.ConsecutiveLosses)
	return loss
}
