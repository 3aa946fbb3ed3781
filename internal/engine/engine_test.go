package engine

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/outcomelog"
	"github.com/betbot/crasher/pkg/config"
)

// fakeSink 可编程的下注执行端
type fakeSink struct {
	accept   bool
	err      error
	requests []decimal.Decimal
}

func (f *fakeSink) RequestBet(_ context.Context, amount decimal.Decimal) (bool, error) {
	f.requests = append(f.requests, amount)
	return f.accept, f.err
}

type harness struct {
	eng  *Engine
	sink *fakeSink
	sess *domain.Session
	ts   time.Time
}

func newHarness(t *testing.T, strategies []config.StrategyConfig, maxLoss float64) *harness {
	t.Helper()
	store, err := outcomelog.Open(filepath.Join(t.TempDir(), "outcomes.db"))
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sess, err := store.CreateSession(context.Background(), time.Now(), nil)
	if err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{accept: true}
	return &harness{
		eng:  New(store, sink, sess, strategies, maxLoss),
		sink: sink,
		sess: sess,
		ts:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

// push 推入一个回合结果，时间戳自动递增
func (h *harness) push(t *testing.T, value float64) {
	t.Helper()
	h.ts = h.ts.Add(30 * time.Second)
	if err := h.eng.OnOutcome(context.Background(), value, nil, h.ts); err != nil {
		t.Fatalf("处理回合失败: %v", err)
	}
}

func oneStrategy(windowSize int, maxLosses int) []config.StrategyConfig {
	return []config.StrategyConfig{{
		Name:                 "martingale",
		BaseStake:            10,
		TargetMultiplier:     2.0,
		TriggerWindowSize:    windowSize,
		TriggerThreshold:     1.5,
		LossMultiplier:       2.0,
		MaxConsecutiveLosses: maxLosses,
	}}
}

// 触发需要恰好 K 个回合全部低于阈值：历史不足时绝不触发
func TestTriggerRequiresExactWindow(t *testing.T) {
	h := newHarness(t, oneStrategy(3, 10), 100000)

	h.push(t, 1.2)
	h.push(t, 1.3)
	if len(h.sink.requests) != 0 {
		t.Fatalf("只有 2 个回合，不应触发，实际请求 %d 次", len(h.sink.requests))
	}

	h.push(t, 1.1)
	if len(h.sink.requests) != 1 {
		t.Fatalf("3 个低回合应触发一次，实际 %d 次", len(h.sink.requests))
	}
	if got := h.eng.Status().ActiveStrategy; got != "martingale" {
		t.Fatalf("期望槽位被 martingale 占用，实际 %q", got)
	}
}

// 窗口内有任一回合达到阈值则不触发
func TestTriggerWindowMustBeAllBelow(t *testing.T) {
	h := newHarness(t, oneStrategy(3, 10), 100000)

	h.push(t, 1.2)
	h.push(t, 3.0) // 高回合打断
	h.push(t, 1.1)
	if len(h.sink.requests) != 0 {
		t.Fatalf("窗口含高回合不应触发，实际请求 %d 次", len(h.sink.requests))
	}
}

// 马丁格尔完整回路：输一次抬注，赢一次回到基础注
func TestMartingaleProgression(t *testing.T) {
	h := newHarness(t, oneStrategy(1, 10), 100000)

	h.push(t, 1.2) // 触发，下注 10
	if len(h.sink.requests) != 1 || !h.sink.requests[0].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("期望首注 10，实际 %v", h.sink.requests)
	}

	h.push(t, 1.3) // 1.3 < 2.0 输；同回合又是低回合，槽位已释放，再触发下注 20
	if len(h.sink.requests) != 2 || !h.sink.requests[1].Equal(decimal.NewFromInt(20)) {
		t.Fatalf("期望倍投 20，实际 %v", h.sink.requests)
	}

	h.push(t, 2.5) // 2.5 >= 2.0 赢，盈利 20
	snap := h.eng.Status()
	// -10 (输) + 20 (赢) = +10
	if !snap.TotalProfitLoss.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("期望累计盈亏 +10，实际 %s", snap.TotalProfitLoss)
	}
	sv := snap.Strategies[0]
	if sv.ConsecutiveLosses != 0 {
		t.Fatalf("赢后连败应清零，实际 %d", sv.ConsecutiveLosses)
	}
	if !sv.CurrentStake.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("赢后应回到基础注 10，实际 %s", sv.CurrentStake)
	}
	if snap.ActiveStrategy != "" {
		t.Fatalf("结算后槽位应释放，实际 %q", snap.ActiveStrategy)
	}
}

// 独占槽位：一个策略等待结果期间，其他策略不评估触发
func TestExclusiveBetSlot(t *testing.T) {
	strategies := append(oneStrategy(1, 10), config.StrategyConfig{
		Name:                 "second",
		BaseStake:            5,
		TargetMultiplier:     3.0,
		TriggerWindowSize:    1,
		TriggerThreshold:     1.5,
		LossMultiplier:       2.0,
		MaxConsecutiveLosses: 10,
	})
	h := newHarness(t, strategies, 100000)

	h.push(t, 1.2) // 两个策略都满足条件，只有声明在前的下注
	if len(h.sink.requests) != 1 {
		t.Fatalf("每个回合至多一次下注，实际 %d 次", len(h.sink.requests))
	}
	if got := h.eng.Status().ActiveStrategy; got != "martingale" {
		t.Fatalf("声明顺序在前的策略优先，实际 %q", got)
	}
}

// 下注被拒绝：槽位不被占用，本回合不再尝试其他策略
func TestBetRejectionLeavesSlotFree(t *testing.T) {
	h := newHarness(t, oneStrategy(1, 10), 100000)
	h.sink.accept = false

	h.push(t, 1.2)
	if len(h.sink.requests) != 1 {
		t.Fatalf("期望一次请求，实际 %d", len(h.sink.requests))
	}
	snap := h.eng.Status()
	if snap.ActiveStrategy != "" {
		t.Fatalf("拒绝后槽位应空闲，实际 %q", snap.ActiveStrategy)
	}
	if snap.Strategies[0].AwaitingResult {
		t.Fatal("拒绝后策略不应处于等待状态")
	}

	// 下一回合可以再次尝试
	h.sink.accept = true
	h.push(t, 1.1)
	if len(h.sink.requests) != 2 {
		t.Fatalf("恢复后应再次触发，实际 %d 次请求", len(h.sink.requests))
	}
}

// 连败达到上限：停止评估新触发，但回合照常落库
func TestHaltOnConsecutiveLosses(t *testing.T) {
	h := newHarness(t, oneStrategy(1, 2), 100000)

	h.push(t, 1.2) // bet 10
	h.push(t, 1.3) // 输 1 次，再 bet 20
	h.push(t, 1.1) // 输 2 次 → 停止，且不再下注
	snap := h.eng.Status()
	if !snap.Halted {
		t.Fatal("连败 2 次后应停止")
	}
	if len(h.sink.requests) != 2 {
		t.Fatalf("停止后不应再下注，实际 %d 次请求", len(h.sink.requests))
	}

	select {
	case <-h.eng.HaltSignal():
	default:
		t.Fatal("停止时应发出信号")
	}

	// 停止后回合照常记录
	h.push(t, 5.0)
	if got := h.eng.Status().RoundCount; got != 4 {
		t.Fatalf("停止后仍应记录回合，期望 4 实际 %d", got)
	}
	if len(h.sink.requests) != 2 {
		t.Fatal("停止是锁存的，不应再下注")
	}
}

// 累计亏损达到上限：先结算在途的下注，再停止
func TestHaltOnMaxLoss(t *testing.T) {
	h := newHarness(t, oneStrategy(1, 100), 15)

	h.push(t, 1.2) // bet 10
	h.push(t, 1.3) // 输 -10 > -15，继续；再 bet 20
	if len(h.sink.requests) != 2 {
		t.Fatalf("亏损未达上限应继续，实际 %d 次请求", len(h.sink.requests))
	}

	h.push(t, 1.1) // 输 -30 ≤ -15 → 停止，本回合不再触发
	snap := h.eng.Status()
	if !snap.Halted {
		t.Fatal("累计亏损达上限应停止")
	}
	if !snap.TotalProfitLoss.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("期望累计 -30，实际 %s", snap.TotalProfitLoss)
	}
	if len(h.sink.requests) != 2 {
		t.Fatalf("停止判定须先于触发评估，实际 %d 次请求", len(h.sink.requests))
	}
}

// 手动暂停/恢复：暂停只影响新触发
func TestManualStopStart(t *testing.T) {
	h := newHarness(t, oneStrategy(1, 100), 100000)

	h.eng.Stop()
	h.push(t, 1.2)
	if len(h.sink.requests) != 0 {
		t.Fatal("暂停时不应触发")
	}

	h.eng.Start()
	h.push(t, 1.1)
	if len(h.sink.requests) != 1 {
		t.Fatal("恢复后应正常触发")
	}
}

// 重复回合按幂等处理：不阻断流程，不重复计数
func TestDuplicateRoundIdempotent(t *testing.T) {
	h := newHarness(t, oneStrategy(5, 100), 100000)

	h.push(t, 2.5)
	ts := h.ts
	if err := h.eng.OnOutcome(context.Background(), 2.5, nil, ts); err != nil {
		t.Fatalf("重复回合不应报错: %v", err)
	}
	if got := h.eng.Status().RoundCount; got != 1 {
		t.Fatalf("重复回合不应计数，期望 1 实际 %d", got)
	}
}

// 倍投金额恒等于 BaseStake * LossMultiplier^n
func TestStakeForProperty(t *testing.T) {
	property := func(baseCents uint16, losses uint8) bool {
		if baseCents == 0 {
			return true
		}
		n := int(losses % 16) // 限制指数规模
		base := decimal.New(int64(baseCents), -2)
		s := &StrategyState{
			BaseStake:      base,
			LossMultiplier: decimal.NewFromInt(2),
		}
		got := s.StakeFor(n)
		want := base.Mul(decimal.NewFromFloat(math.Pow(2, float64(n))))
		return got.Equal(want)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Fatal(err)
	}
}
