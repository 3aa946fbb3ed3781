package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crasher/internal/betsink"
	"github.com/betbot/crasher/internal/continuity"
	"github.com/betbot/crasher/internal/controlplane"
	"github.com/betbot/crasher/internal/engine"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/feed"
	"github.com/betbot/crasher/internal/outcomelog"
	"github.com/betbot/crasher/pkg/config"
	"github.com/betbot/crasher/pkg/logger"
	"github.com/betbot/crasher/pkg/secretstore"
	"github.com/betbot/crasher/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 可选，用于本地开发注入 CRASHER_SECRETS_KEY 等变量
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Errorf("配置校验失败: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Errorf("初始化日志失败: %v", err)
		os.Exit(1)
	}

	logger.Info("🚀 crasher bot 启动")

	creds, apiToken, err := loadCredentials(cfg)
	if err != nil {
		logger.Errorf("读取凭据失败: %v", err)
		os.Exit(1)
	}

	store, err := outcomelog.Open(cfg.Database.Path)
	if err != nil {
		logger.Errorf("打开回合历史库失败: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := feed.New(cfg.Feed, creds)

	// 会话续接：把采集端观测窗口与持久化历史对齐
	observed, err := src.RecentObservedWindow(ctx)
	if err != nil {
		logger.Errorf("获取观测窗口失败: %v", err)
		os.Exit(1)
	}
	startBalance, _ := src.CurrentBalance(ctx)

	resolver := continuity.NewResolver(store, continuity.Config{
		MinMatchLength:        *cfg.Engine.MinMatchLength,
		Tolerance:             *cfg.Engine.AlignTolerance,
		MaxAlignWindow:        cfg.Feed.ObservedWindow,
		ImportUnmatchedWindow: *cfg.Engine.ImportUnmatchedWindow,
	})
	res, err := resolver.Resolve(ctx, observed, startBalance)
	if err != nil {
		logger.Errorf("会话续接失败: %v", err)
		os.Exit(1)
	}
	eventLog := controlplane.NewEventLog(256)
	if res.Resumed {
		logger.Infof("♻️ 续接会话 #%d (匹配长度 %d, 补录 %d 回合)", res.Session.ID, res.MatchLength, res.Backfilled)
		eventLog.OnSessionResumed(events.SessionResumedEvent{
			Session:     res.Session,
			MatchLength: res.MatchLength,
			Backfilled:  res.Backfilled,
			Timestamp:   time.Now(),
		})
	} else {
		logger.Infof("🆕 新会话 #%d (导入 %d 回合)", res.Session.ID, res.Backfilled)
		eventLog.OnSessionStarted(events.SessionStartedEvent{
			Session:   res.Session,
			Imported:  res.Backfilled,
			Timestamp: time.Now(),
		})
	}

	sink := betsink.New(cfg.BetSink, apiToken)
	eng := engine.New(store, sink, res.Session, cfg.Strategies, cfg.Engine.MaxLoss)
	eng.AddHandler(eventLog)

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: controlplane.New(eng, store, eventLog).Router(),
	}
	go func() {
		logger.Infof("控制面监听 %s", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("控制面异常退出: %v", err)
		}
	}()

	// 停止条件触发只是停止新触发，进程继续采集记录
	go func() {
		select {
		case <-eng.HaltSignal():
			logger.Warnf("🛑 停止条件已触发，继续记录但不再下注")
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- src.Run(ctx, eng) }()

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，开始关闭...")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			// 持久化失败等致命错误
			logger.Errorf("采集端致命错误: %v", err)
			eventLog.OnCriticalError(events.CriticalErrorEvent{
				Component: "feed",
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) { _ = srv.Shutdown(ctx) })
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		endBalance, _ := src.CurrentBalance(ctx)
		if err := eng.Shutdown(ctx, endBalance); err != nil {
			logger.Errorf("关闭会话失败: %v", err)
		}
	})
	mgr.Shutdown(shutdownCtx)

	if err := store.Close(); err != nil {
		logger.Errorf("关闭数据库失败: %v", err)
	}
	logger.Info("✅ 已退出")
}

// loadCredentials 从 badger 凭据库读取站点账号密码和下注端 token。
// 加密 key 通过 CRASHER_SECRETS_KEY 环境变量传入（hex 或 base64）
func loadCredentials(cfg *config.Config) (feed.Credentials, string, error) {
	var encKey []byte
	if raw := os.Getenv("CRASHER_SECRETS_KEY"); raw != "" {
		k, err := secretstore.ParseKey(raw)
		if err != nil {
			return feed.Credentials{}, "", err
		}
		encKey = k
	}

	secrets, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.Path,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return feed.Credentials{}, "", err
	}
	defer secrets.Close()

	username, ok, err := secrets.GetString(secretstore.KeySiteUsername)
	if err != nil {
		return feed.Credentials{}, "", err
	}
	if !ok {
		return feed.Credentials{}, "", errors.New("secretstore 中缺少 " + secretstore.KeySiteUsername)
	}
	password, ok, err := secrets.GetString(secretstore.KeySitePassword)
	if err != nil {
		return feed.Credentials{}, "", err
	}
	if !ok {
		return feed.Credentials{}, "", errors.New("secretstore 中缺少 " + secretstore.KeySitePassword)
	}
	// 下注端 token 可选
	apiToken, _, _ := secrets.GetString(secretstore.KeyBetAPIToken)

	return feed.Credentials{Username: username, Password: password}, apiToken, nil
}
