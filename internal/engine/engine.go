package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/outcomelog"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/pkg/config"
	"github.com/betbot/crasher/pkg/sigchan"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "engine")

// Engine 多策略仲裁引擎
//
// 逻辑上单线程：回合结果由采集端按真实时序逐个推入 OnOutcome，
// 所有状态转换（槽位占用/释放、注额更新、停止判定）在 mu 内原子完成。
// 状态查询走原子发布的快照副本，不与事件处理争锁
type Engine struct {
	mu sync.Mutex

	store   *outcomelog.Store
	betSink ports.BetSink

	session    *domain.Session
	strategies []*StrategyState // 配置声明顺序即仲裁顺序，结构构建后不再变化
	maxLoss    decimal.Decimal

	// 独占下注槽位：空串表示空闲
	// 只允许两种转换：触发命中时占用、结果结算时释放
	active string

	totalPL    decimal.Decimal
	halted     bool
	haltReason string
	stopped    bool // 控制面手动暂停（可恢复；halted 是锁存的）

	haltCh   *sigchan.Chan
	handlers []ports.EngineEventHandler

	published atomic.Pointer[Snapshot]
}

// New 构建引擎。strategies 的声明顺序决定触发仲裁顺序
func New(store *outcomelog.Store, betSink ports.BetSink, session *domain.Session, strategyCfgs []config.StrategyConfig, maxLoss float64) *Engine {
	e := &Engine{
		store:   store,
		betSink: betSink,
		session: session,
		maxLoss: decimal.NewFromFloat(maxLoss),
		haltCh:  sigchan.New(1),
		totalPL: decimal.Zero,
	}
	for _, cfg := range strategyCfgs {
		e.strategies = append(e.strategies, NewStrategyState(cfg))
	}
	e.published.Store(e.snapshotLocked())
	return e
}

// AddHandler 注册事件处理器（串行投递，须在事件流开始前注册）
func (e *Engine) AddHandler(h ports.EngineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// HaltSignal 停止条件触发时发出信号
func (e *Engine) HaltSignal() <-chan struct{} {
	return e.haltCh.C()
}

// OnOutcome 处理一个已确认的回合结果。实现 ports.OutcomeHandler
//
// 顺序：落库 → 结算等待中的策略 → 停止判定 → 触发评估（至多激活一个策略）。
// 持久化失败（非重复）是致命错误，向上传播由调用方终止进程
func (e *Engine) OnOutcome(ctx context.Context, value float64, bettorCount *int, ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, duplicate, err := e.appendOutcome(ctx, value, bettorCount, ts)
	if err != nil {
		return err
	}

	logParts := fmt.Sprintf("🎲 回合结束: %.2fx", value)
	if bettorCount != nil {
		logParts += fmt.Sprintf(" | 下注人数: %d", *bettorCount)
	}
	log.Info(logParts)

	e.emit(ctx, events.RoundRecordedEvent{Event: ev, Duplicate: duplicate, Timestamp: ts})

	// 先结算等待结果的策略（停止后也要结算，避免丢掉已下的注）
	if e.active != "" {
		if err := e.resolveActive(ctx, value, ts); err != nil {
			return err
		}
	}

	// 停止判定：每个回合评估一次，置位后不再评估新触发
	if !e.halted {
		if reason, halt := EvaluateStop(e.snapshotLocked(), e.maxLoss); halt {
			e.halted = true
			e.haltReason = reason
			log.Warnf("🛑 STOP: %s", reason)
			e.emit(ctx, events.EngineHaltedEvent{
				Reason:          reason,
				TotalProfitLoss: e.totalPL,
				Timestamp:       ts,
			})
			e.haltCh.Emit()
		}
	}

	// 槽位空闲且未停止时，按声明顺序评估触发
	if e.active == "" && !e.halted && !e.stopped {
		if err := e.evaluateTriggers(ctx, ts); err != nil {
			return err
		}
	}

	e.published.Store(e.snapshotLocked())
	return nil
}

// appendOutcome 落库一个回合，重复插入按幂等处理
func (e *Engine) appendOutcome(ctx context.Context, value float64, bettorCount *int, ts time.Time) (*domain.OutcomeEvent, bool, error) {
	ev, err := e.store.Append(ctx, e.session.ID, value, bettorCount, ts)
	if err != nil {
		if errors.Is(err, outcomelog.ErrDuplicateEvent) {
			// 设计要求的幂等：当作插入成功继续
			log.Debugf("重复回合 (%.2fx @ %s)，跳过落库", value, ts.Format(time.RFC3339))
			return &domain.OutcomeEvent{
				Value:       value,
				BettorCount: bettorCount,
				Timestamp:   ts.UTC(),
				SessionID:   e.session.ID,
			}, true, nil
		}
		return nil, false, fmt.Errorf("append outcome: %w", err)
	}
	e.session.RoundCount++
	return ev, false, nil
}

// resolveActive 结算占用槽位的策略，并释放槽位
func (e *Engine) resolveActive(ctx context.Context, value float64, ts time.Time) error {
	s := e.findStrategy(e.active)
	if s == nil || !s.AwaitingResult {
		// active 与 AwaitingResult 只在占用/释放两处同时变化，不该出现
		e.active = ""
		return nil
	}

	stake := s.CurrentStake
	var (
		outcome domain.BetOutcome
		pl      decimal.Decimal
	)
	if value >= s.TargetMultiplier {
		outcome = domain.BetOutcomeWin
		pl = s.applyWin()
	} else {
		outcome = domain.BetOutcomeLoss
		pl = s.applyLoss()
	}
	e.totalPL = e.totalPL.Add(pl)

	bet := &domain.Bet{
		Strategy:   s.Name,
		Amount:     stake,
		Outcome:    outcome,
		Multiplier: value,
		ProfitLoss: pl,
		SessionID:  e.session.ID,
		Timestamp:  ts,
	}
	id, err := e.store.RecordBet(ctx, bet)
	if err != nil {
		return fmt.Errorf("record bet: %w", err)
	}
	bet.ID = id

	// 释放槽位
	s.AwaitingResult = false
	e.active = ""

	if outcome == domain.BetOutcomeWin {
		log.Infof("✅ WIN! %.2fx | 策略 %s 盈利: +%s | 累计: %s", value, s.Name, pl.String(), e.totalPL.String())
	} else {
		log.Infof("❌ LOSS! %.2fx | 策略 %s 亏损: %s | 累计: %s", value, s.Name, pl.String(), e.totalPL.String())
		log.Infof("   连败: %d | 下次下注: %s", s.ConsecutiveLosses, s.CurrentStake.String())
	}

	e.emit(ctx, events.BetResolvedEvent{
		Bet:               bet,
		ConsecutiveLosses: s.ConsecutiveLosses,
		NextStake:         s.CurrentStake,
		TotalProfitLoss:   e.totalPL,
		Timestamp:         ts,
	})
	return nil
}

// evaluateTriggers 按声明顺序评估各策略的触发条件，命中即请求下注
// 每个回合至多激活一个策略；下注被拒绝时策略回到空闲，槽位不被占用
func (e *Engine) evaluateTriggers(ctx context.Context, ts time.Time) error {
	for _, s := range e.strategies {
		window, err := e.store.RecentValues(ctx, e.session.ID, s.TriggerWindowSize)
		if err != nil {
			return fmt.Errorf("query trigger window: %w", err)
		}
		// 必须恰好 K 个回合：历史不足时绝不触发
		if len(window) != s.TriggerWindowSize {
			continue
		}
		if !allBelow(window, s.TriggerThreshold) {
			continue
		}

		log.Infof("🎯 触发! 策略 %s 最近 %d 回合均低于 %.2fx: %v", s.Name, s.TriggerWindowSize, s.TriggerThreshold, window)

		stake := s.StakeFor(s.ConsecutiveLosses)
		accepted, err := e.betSink.RequestBet(ctx, stake)
		if err != nil || !accepted {
			reason := "下注端拒绝"
			if err != nil {
				reason = err.Error()
			}
			log.Warnf("⚠️ 下注失败（策略 %s, 金额 %s）: %s", s.Name, stake.String(), reason)
			e.emit(ctx, events.BetRejectedEvent{
				Strategy:  s.Name,
				Amount:    stake,
				Reason:    reason,
				Timestamp: ts,
			})
			// 本回合不再尝试其他策略
			return nil
		}

		// 占用槽位
		s.CurrentStake = stake
		s.AwaitingResult = true
		e.active = s.Name
		log.Infof("💰 下注: %s (策略 %s)", stake.String(), s.Name)
		e.emit(ctx, events.BetPlacedEvent{Strategy: s.Name, Amount: stake, Timestamp: ts})
		return nil
	}
	return nil
}

// Status 返回最近一次发布的快照（并发安全，只读）
func (e *Engine) Status() *Snapshot {
	return e.published.Load()
}

// Stop 控制面：暂停新触发评估（已下的注仍会结算）
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.published.Store(e.snapshotLocked())
	log.Info("⏸ 已暂停触发评估")
}

// Start 控制面：恢复触发评估（停止条件锁存的 halted 不会被清除）
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = false
	e.published.Store(e.snapshotLocked())
	log.Info("▶️ 已恢复触发评估")
}

// Shutdown 关闭打开的会话并打印会话总结
func (e *Engine) Shutdown(ctx context.Context, endBalance *decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	log.Info("============================================================")
	log.Info("📊 会话总结:")
	log.Infof("   累计盈亏: %s", e.totalPL.String())
	for _, s := range e.strategies {
		log.Infof("   策略 %s: 盈亏 %s | 连败 %d", s.Name, s.CumulativeProfitLoss.String(), s.ConsecutiveLosses)
	}
	log.Info("============================================================")

	if err := e.store.CloseSession(ctx, e.session.ID, time.Now(), endBalance); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (e *Engine) findStrategy(name string) *StrategyState {
	for _, s := range e.strategies {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// snapshotLocked 在持锁状态下构建快照
func (e *Engine) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		SessionID:       e.session.ID,
		TotalProfitLoss: e.totalPL,
		ActiveStrategy:  e.active,
		Halted:          e.halted,
		HaltReason:      e.haltReason,
		Stopped:         e.stopped,
		RoundCount:      e.session.RoundCount,
	}
	for _, s := range e.strategies {
		snap.Strategies = append(snap.Strategies, StrategyView{
			Name:                 s.Name,
			CurrentStake:         s.CurrentStake,
			ConsecutiveLosses:    s.ConsecutiveLosses,
			MaxConsecutiveLosses: s.MaxConsecutiveLosses,
			CumulativeProfitLoss: s.CumulativeProfitLoss,
			AwaitingResult:       s.AwaitingResult,
		})
	}
	return snap
}

func (e *Engine) emit(ctx context.Context, ev interface{}) {
	for _, h := range e.handlers {
		switch typed := ev.(type) {
		case events.RoundRecordedEvent:
			h.OnRoundRecorded(ctx, typed)
		case events.BetPlacedEvent:
			h.OnBetPlaced(ctx, typed)
		case events.BetRejectedEvent:
			h.OnBetRejected(ctx, typed)
		case events.BetResolvedEvent:
			h.OnBetResolved(ctx, typed)
		case events.EngineHaltedEvent:
			h.OnEngineHalted(ctx, typed)
		}
	}
}

func allBelow(values []float64, threshold float64) bool {
	for _, v := range values {
		if v >= threshold {
			return false
		}
	}
	return true
}
