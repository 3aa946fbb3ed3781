// Package feed 通过 WebSocket 从游戏站点采集已确认的回合结果。
// 连接断开后指数退避自动重连；回合按服务端推送顺序逐个交给 handler，
// 重放的历史消息靠 OutcomeLog 的幂等插入去重。
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/pkg/config"
)

var log = logrus.WithField("component", "feed")

const (
	handshakeTimeout = 30 * time.Second
	readTimeout      = 90 * time.Second // 服务端约 30 秒一轮，超过三轮无消息视为断连
	writeTimeout     = 10 * time.Second

	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Credentials 站点登录凭据（来自 secretstore，不进配置文件）
type Credentials struct {
	Username string
	Password string
}

// Feed 站点 WebSocket 采集端。实现 ports.OutcomeSource 和 ports.BalanceProvider
type Feed struct {
	cfg   config.FeedConfig
	creds Credentials

	// 重连退避参数（测试中可缩短）
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration

	mu      sync.RWMutex
	conn    *websocket.Conn
	balance *decimal.Decimal // 最近一次服务端推送的余额
}

func New(cfg config.FeedConfig, creds Credentials) *Feed {
	return &Feed{
		cfg:               cfg,
		creds:             creds,
		reconnectDelay:    reconnectDelay,
		maxReconnectDelay: maxReconnectDelay,
	}
}

// 服务端消息（按 type 区分）
type wireMessage struct {
	Type        string    `json:"type"` // auth_ok / history / round / balance / error
	Value       float64   `json:"value,omitempty"`
	BettorCount *int      `json:"bettorCount,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Values      []float64 `json:"values,omitempty"`
	Balance     string    `json:"balance,omitempty"`
	Message     string    `json:"message,omitempty"`
}

type clientMessage struct {
	Type     string `json:"type"` // auth / history
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// RecentObservedWindow 建立一次短连接，拉取最近观测到的回合倍数（旧在前）。
// 只在启动时调用一次，用于会话续接对齐
func (f *Feed) RecentObservedWindow(ctx context.Context) ([]float64, error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := f.authenticate(conn); err != nil {
		return nil, err
	}

	req := clientMessage{Type: "history", Limit: f.cfg.ObservedWindow}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("request history: %w", err)
	}

	// 历史响应前可能插入其他推送（余额、心跳），跳过直到拿到 history
	for {
		var msg wireMessage
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read history response: %w", err)
		}
		switch msg.Type {
		case "history":
			log.Infof("📥 观测窗口: %d 个回合", len(msg.Values))
			return msg.Values, nil
		case "balance":
			f.storeBalance(msg.Balance)
		case "error":
			return nil, fmt.Errorf("feed error: %s", msg.Message)
		}
	}
}

// Run 持续采集回合结果并推给 handler，直到 ctx 取消。
// handler 返回错误视为致命（持久化失败），Run 原样返回终止进程
func (f *Feed) Run(ctx context.Context, handler ports.OutcomeHandler) error {
	delay := f.reconnectDelay
	for {
		connected, err := f.runOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}
		if connected {
			// 成功连上过就把退避清回起点，避免一次启动抖动
			// 把后续所有重连钉在最大间隔上
			delay = f.reconnectDelay
		}

		log.Warnf("⚠️ 连接断开: %v，%s 后重连", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.maxReconnectDelay {
			delay = f.maxReconnectDelay
		}
	}
}

// runOnce 返回的 connected 表示本次尝试是否完成过认证握手
func (f *Feed) runOnce(ctx context.Context, handler ports.OutcomeHandler) (connected bool, _ error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return false, &connError{err}
	}
	defer conn.Close()

	if err := f.authenticate(conn); err != nil {
		return false, &connError{err}
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	log.Info("✅ 已连接回合结果流")

	// ctx 取消时主动关闭连接，打断阻塞中的读
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg wireMessage
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err := conn.ReadJSON(&msg); err != nil {
			return true, &connError{fmt.Errorf("read: %w", err)}
		}

		switch msg.Type {
		case "round":
			ts := msg.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if err := handler.OnOutcome(ctx, msg.Value, msg.BettorCount, ts); err != nil {
				return true, fmt.Errorf("handle outcome: %w", err)
			}
		case "balance":
			f.storeBalance(msg.Balance)
		case "error":
			log.Warnf("服务端错误消息: %s", msg.Message)
		}
	}
}

// CurrentBalance 返回最近一次推送的余额，未收到过时返回 (nil, nil)
func (f *Feed) CurrentBalance(ctx context.Context) (*decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.balance, nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	return conn, nil
}

func (f *Feed) authenticate(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	login := clientMessage{Type: "auth", Username: f.creds.Username, Password: f.creds.Password}
	if err := conn.WriteJSON(login); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var msg wireMessage
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if msg.Type != "auth_ok" {
		return fmt.Errorf("auth failed: %s", msg.Message)
	}
	return nil
}

func (f *Feed) storeBalance(raw string) {
	if raw == "" {
		return
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Warnf("无法解析余额推送 %q: %v", raw, err)
		return
	}
	f.mu.Lock()
	f.balance = &d
	f.mu.Unlock()
}

// connError 标记可通过重连恢复的错误
type connError struct{ err error }

func (e *connError) Error() string { return e.err.Error() }
func (e *connError) Unwrap() error { return e.err }

func isConnectionError(err error) bool {
	var ce *connError
	return errors.As(err, &ce)
}
