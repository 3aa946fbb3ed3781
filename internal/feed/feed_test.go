package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betbot/crasher/pkg/config"
)

type nopHandler struct{}

func (nopHandler) OnOutcome(context.Context, float64, *int, time.Time) error { return nil }

// 成功连接后退避必须清回起点：启动期的几次握手失败不能把
// 之后的重连间隔永久钉在高位
func TestRunResetsBackoffAfterConnect(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var (
		mu           sync.Mutex
		attempts     int
		firstOKClose time.Time
		secondOKAt   time.Time
	)
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		// 前 4 次握手直接失败，把客户端退避推高
		if n <= 4 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var login clientMessage
		if err := conn.ReadJSON(&login); err != nil {
			conn.Close()
			return
		}
		_ = conn.WriteJSON(wireMessage{Type: "auth_ok"})

		switch n {
		case 5:
			// 认证成功后立刻断开，观察下一次重连来得多快
			conn.Close()
			mu.Lock()
			firstOKClose = time.Now()
			mu.Unlock()
		case 6:
			mu.Lock()
			secondOKAt = time.Now()
			mu.Unlock()
			conn.Close()
			close(done)
		default:
			conn.Close()
		}
	}))
	defer srv.Close()

	f := New(config.FeedConfig{
		URL: "ws://" + strings.TrimPrefix(srv.URL, "http://"),
	}, Credentials{Username: "u", Password: "p"})
	f.reconnectDelay = 10 * time.Millisecond
	f.maxReconnectDelay = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx, nopHandler{}) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("等待第二次成功连接超时")
	}
	cancel()

	mu.Lock()
	gap := secondOKAt.Sub(firstOKClose)
	mu.Unlock()

	// 未清零时此处应等 160ms（10ms 翻倍 4 次）；清零后只等 10ms
	if gap >= 100*time.Millisecond {
		t.Fatalf("成功连接后退避未清零：重连间隔 %v", gap)
	}
}
