package continuity

import (
	"context"
	"errors"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/outcomelog"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "continuity")

// defaultRoundSpacing 会话尚无任何落库回合时，合成"上一持久化时间"
// 所用的每回合间隔（崩盘游戏一回合约半分钟）
const defaultRoundSpacing = 30 * time.Second

// Config 续接解析参数
type Config struct {
	MinMatchLength        int     // 最短匹配长度 m（默认 5）
	Tolerance             float64 // 倍数比对绝对容差 ε（默认 0.01）
	MaxAlignWindow        int     // 参与对齐的最大持久化窗口（默认 20）
	ImportUnmatchedWindow bool    // 无法对齐时是否把整个观测窗口导入新会话
}

// Resolver 会话续接解析器
// 启动时用一次：把采集端观测到的最近回合窗口与持久化历史对齐，
// 决定是续接上一个打开的会话还是另起新会话，并补录缺口
type Resolver struct {
	store *outcomelog.Store
	cfg   Config
	now   func() time.Time // 可注入，便于测试
}

// Resolution 解析结果
type Resolution struct {
	Session       *domain.Session
	Resumed       bool // true=续接既有会话，false=新建会话
	MatchLength   int  // 对齐命中长度（0 表示未对齐/无需对齐）
	MatchPosition int  // 命中切片在观测窗口中的起始下标
	Backfilled    int  // 补录的缺失回合数（含新会话的批量导入）
}

func NewResolver(store *outcomelog.Store, cfg Config) *Resolver {
	if cfg.MinMatchLength <= 0 {
		cfg.MinMatchLength = 5
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.01
	}
	if cfg.MaxAlignWindow <= 0 {
		cfg.MaxAlignWindow = 20
	}
	return &Resolver{store: store, cfg: cfg, now: time.Now}
}

// Resolve 执行一次续接解析
// observed 为采集端提供的最近观测窗口（旧→新），balance 为当前余额快照
// （仅在新建会话时作为 start_marker 使用，可为 nil）
func (r *Resolver) Resolve(ctx context.Context, observed []float64, balance *decimal.Decimal) (*Resolution, error) {
	now := r.now()

	sess, lastTS, err := r.store.LastOpenSession(ctx)
	if err != nil {
		return nil, err
	}

	// 观测窗口为空：无从对齐，也没有缺口
	if len(observed) == 0 {
		if sess == nil {
			created, err := r.store.CreateSession(ctx, now, balance)
			if err != nil {
				return nil, err
			}
			log.Infof("🆕 观测窗口为空且无打开会话，新建会话 #%d", created.ID)
			return &Resolution{Session: created}, nil
		}
		log.Infof("♻️ 观测窗口为空，直接续接会话 #%d（%d 回合）", sess.ID, sess.RoundCount)
		return &Resolution{Session: sess, Resumed: true}, nil
	}

	// 无打开的会话：新建并按导入策略落库整个观测窗口
	if sess == nil {
		return r.startFresh(ctx, observed, balance, now, "无打开的会话")
	}

	// 会话还没有任何落库回合：无从对齐，整个观测窗口视为缺失
	if sess.RoundCount == 0 {
		backfilled, err := r.backfill(ctx, sess, observed, lastTS, now)
		if err != nil {
			return nil, err
		}
		log.Infof("♻️ 会话 #%d 无历史回合，续接并补录 %d 个观测回合", sess.ID, backfilled)
		return &Resolution{Session: sess, Resumed: true, Backfilled: backfilled}, nil
	}

	// 取持久化尾部做对齐
	window := sess.RoundCount
	if window > r.cfg.MaxAlignWindow {
		window = r.cfg.MaxAlignWindow
	}
	persisted, err := r.store.RecentValues(ctx, sess.ID, window)
	if err != nil {
		return nil, err
	}

	align, ok := FindAlignment(persisted, observed, r.cfg.MinMatchLength, r.cfg.Tolerance)
	if !ok {
		// 对不上不是错误：上次会话与本次观测之间的断档太久，另起会话
		log.Warnf("⚠️ 观测窗口与会话 #%d 尾部无法对齐，关闭旧会话另起新会话", sess.ID)
		if err := r.store.CloseSession(ctx, sess.ID, now, nil); err != nil {
			return nil, err
		}
		return r.startFresh(ctx, observed, balance, now, "对齐失败")
	}

	// 命中切片之后的观测回合是真正的新数据
	missing := observed[align.Position+align.Length:]
	backfilled, err := r.backfill(ctx, sess, missing, lastTS, now)
	if err != nil {
		return nil, err
	}

	log.Infof("♻️ 续接会话 #%d：对齐 L=%d pos=%d，补录 %d 个缺失回合",
		sess.ID, align.Length, align.Position, backfilled)
	return &Resolution{
		Session:       sess,
		Resumed:       true,
		MatchLength:   align.Length,
		MatchPosition: align.Position,
		Backfilled:    backfilled,
	}, nil
}

// startFresh 新建会话，并按导入策略把观测窗口作为初始历史落库
func (r *Resolver) startFresh(ctx context.Context, observed []float64, balance *decimal.Decimal, now time.Time, reason string) (*Resolution, error) {
	created, err := r.store.CreateSession(ctx, now, balance)
	if err != nil {
		return nil, err
	}

	backfilled := 0
	if r.cfg.ImportUnmatchedWindow && len(observed) > 0 {
		backfilled, err = r.backfill(ctx, created, observed, nil, now)
		if err != nil {
			return nil, err
		}
	}
	log.Infof("🆕 新建会话 #%d（%s），导入 %d 个观测回合", created.ID, reason, backfilled)
	return &Resolution{Session: created, Backfilled: backfilled}, nil
}

// backfill 把缺失回合补录进会话，时间戳线性插值：
// 把 (now - lastPersisted) 均分到每个缺失回合上，最后一个缺失回合
// 恒定打上 now（它是最新确认的观测）。lastPersisted 为空（全新会话）
// 时按默认回合间隔向过去合成
func (r *Resolver) backfill(ctx context.Context, sess *domain.Session, missing []float64, lastPersisted *time.Time, now time.Time) (int, error) {
	n := len(missing)
	if n == 0 {
		return 0, nil
	}

	var base time.Time
	if lastPersisted != nil {
		base = *lastPersisted
	} else {
		base = now.Add(-time.Duration(n) * defaultRoundSpacing)
	}
	step := now.Sub(base) / time.Duration(n)

	appended := 0
	for i, v := range missing {
		ts := base.Add(step * time.Duration(i+1))
		if i == n-1 {
			ts = now
		}
		_, err := r.store.Append(ctx, sess.ID, v, nil, ts)
		if err != nil {
			if errors.Is(err, outcomelog.ErrDuplicateEvent) {
				// 幂等补录：重复即跳过
				continue
			}
			return appended, err
		}
		appended++
	}
	sess.RoundCount += appended
	return appended, nil
}
