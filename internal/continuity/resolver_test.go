package continuity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/betbot/crasher/internal/outcomelog"
)

func newTestStore(t *testing.T) *outcomelog.Store {
	t.Helper()
	store, err := outcomelog.Open(filepath.Join(t.TempDir(), "outcomes.db"))
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig() Config {
	return Config{
		MinMatchLength:        3,
		Tolerance:             0.01,
		MaxAlignWindow:        20,
		ImportUnmatchedWindow: true,
	}
}

// 续接主场景：持久化尾部与观测窗口开头对齐，缺口按线性插值补录，
// 最后一个缺失回合恒定打上 now
func TestResolveResume(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t0 := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sess, err := store.CreateSession(ctx, t0.Add(-5*time.Minute), nil)
	if err != nil {
		t.Fatal(err)
	}

	persisted := []float64{1.2, 3.4, 1.1, 5.6, 2.0}
	for i, v := range persisted {
		ts := t0.Add(-time.Duration(len(persisted)-1-i) * 30 * time.Second)
		if _, err := store.Append(ctx, sess.ID, v, nil, ts); err != nil {
			t.Fatal(err)
		}
	}

	now := t0.Add(60 * time.Second)
	r := NewResolver(store, testConfig())
	r.now = func() time.Time { return now }

	observed := []float64{3.4, 1.1, 5.6, 2.0, 7.8, 1.5}
	res, err := r.Resolve(ctx, observed, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Resumed {
		t.Fatal("期望续接既有会话")
	}
	if res.Session.ID != sess.ID {
		t.Fatalf("期望会话 #%d，实际 #%d", sess.ID, res.Session.ID)
	}
	if res.MatchLength != 4 || res.MatchPosition != 0 {
		t.Fatalf("期望 L=4 pos=0，实际 L=%d pos=%d", res.MatchLength, res.MatchPosition)
	}
	if res.Backfilled != 2 {
		t.Fatalf("期望补录 2 个回合，实际 %d", res.Backfilled)
	}

	// 缺口 (t0, now] 均分给 [7.8 1.5]：t0+30s 和 now
	events, err := store.RecentWindow(ctx, sess.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("期望 2 个补录回合，实际 %d", len(events))
	}
	if events[0].Value != 7.8 || events[1].Value != 1.5 {
		t.Fatalf("补录值错误: %v %v", events[0].Value, events[1].Value)
	}
	if !events[0].Timestamp.Equal(t0.Add(30 * time.Second)) {
		t.Fatalf("第一个补录时间戳期望 %v，实际 %v", t0.Add(30*time.Second), events[0].Timestamp)
	}
	if !events[1].Timestamp.Equal(now) {
		t.Fatalf("最后一个补录时间戳必须是 now %v，实际 %v", now, events[1].Timestamp)
	}
}

// 对不上时关闭旧会话、另起新会话并导入整个观测窗口
func TestResolveNoAlignmentStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t0 := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	old, err := store.CreateSession(ctx, t0.Add(-time.Hour), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range []float64{9.1, 9.2, 9.3, 9.4} {
		ts := t0.Add(-time.Hour + time.Duration(i)*30*time.Second)
		if _, err := store.Append(ctx, old.ID, v, nil, ts); err != nil {
			t.Fatal(err)
		}
	}

	r := NewResolver(store, testConfig())
	r.now = func() time.Time { return t0 }

	observed := []float64{1.1, 2.2, 3.3, 4.4, 5.5}
	res, err := r.Resolve(ctx, observed, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.Resumed {
		t.Fatal("对齐失败时不应续接")
	}
	if res.Session.ID == old.ID {
		t.Fatal("应新建会话而不是复用旧会话")
	}
	if res.Backfilled != len(observed) {
		t.Fatalf("期望导入 %d 个回合，实际 %d", len(observed), res.Backfilled)
	}

	// 旧会话必须被关闭，保持"至多一个打开会话"的不变式
	open, _, err := store.LastOpenSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if open == nil || open.ID != res.Session.ID {
		t.Fatalf("打开的会话应是新会话 #%d", res.Session.ID)
	}
}

// 关闭导入开关后，新会话从零开始
func TestResolveImportDisabled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cfg := testConfig()
	cfg.ImportUnmatchedWindow = false
	r := NewResolver(store, cfg)
	r.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) }

	res, err := r.Resolve(ctx, []float64{1.1, 2.2, 3.3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resumed || res.Backfilled != 0 {
		t.Fatalf("期望全新空会话，实际 resumed=%v backfilled=%d", res.Resumed, res.Backfilled)
	}
	if res.Session.RoundCount != 0 {
		t.Fatalf("期望 0 个回合，实际 %d", res.Session.RoundCount)
	}
}

// 全新库：新建会话并导入观测窗口，时间戳按默认回合间隔向过去合成
func TestResolveFreshDatabase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	r := NewResolver(store, testConfig())
	r.now = func() time.Time { return now }

	observed := []float64{2.5, 1.8, 4.2}
	res, err := r.Resolve(ctx, observed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resumed {
		t.Fatal("全新库不应续接")
	}
	if res.Backfilled != 3 {
		t.Fatalf("期望导入 3 个回合，实际 %d", res.Backfilled)
	}

	events, err := store.RecentWindow(ctx, res.Session.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !events[2].Timestamp.Equal(now) {
		t.Fatalf("最新回合时间戳必须是 now，实际 %v", events[2].Timestamp)
	}
	if !events[0].Timestamp.Before(events[1].Timestamp) || !events[1].Timestamp.Before(events[2].Timestamp) {
		t.Fatal("合成时间戳必须严格递增")
	}
}

// 观测窗口为空：直接续接，无补录
func TestResolveEmptyObservedWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.CreateSession(ctx, time.Now().Add(-time.Minute), nil)
	if err != nil {
		t.Fatal(err)
	}

	r := NewResolver(store, testConfig())
	res, err := r.Resolve(ctx, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resumed || res.Session.ID != sess.ID {
		t.Fatalf("期望直接续接会话 #%d", sess.ID)
	}
	if res.Backfilled != 0 {
		t.Fatalf("空窗口不应补录，实际 %d", res.Backfilled)
	}
}

// 打开的会话还没有任何回合：整个观测窗口按缺失补录
func TestResolveOpenSessionWithoutHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.CreateSession(ctx, time.Now().Add(-time.Minute), nil)
	if err != nil {
		t.Fatal(err)
	}

	r := NewResolver(store, testConfig())
	res, err := r.Resolve(ctx, []float64{1.1, 2.2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resumed || res.Session.ID != sess.ID {
		t.Fatal("期望续接既有空会话")
	}
	if res.Backfilled != 2 {
		t.Fatalf("期望补录 2 个回合，实际 %d", res.Backfilled)
	}
}
