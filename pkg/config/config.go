package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig 配置校验失败（启动期致命错误）
var ErrInvalidConfig = errors.New("invalid config")

// 默认值
const (
	DefaultMinMatchLength = 5    // 续接对齐的最短匹配长度
	DefaultAlignTolerance = 0.01 // 倍数比对的绝对容差
	DefaultMaxAlignWindow = 20   // 参与对齐的最大持久化窗口
	DefaultLossMultiplier = 2.0  // 马丁格尔默认倍投系数
)

// Config 机器人总配置
// 遵循 BBGO 风格：YAML 配置文件 + 环境变量覆盖（在 cmd 层处理）
type Config struct {
	Log        LogConfig        `yaml:"log" json:"log"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Secrets    SecretsConfig    `yaml:"secrets" json:"secrets"`
	Feed       FeedConfig       `yaml:"feed" json:"feed"`
	BetSink    BetSinkConfig    `yaml:"betSink" json:"betSink"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Engine     EngineConfig     `yaml:"engine" json:"engine"`
	Strategies []StrategyConfig `yaml:"strategies" json:"strategies"` // 有序列表，声明顺序即仲裁顺序
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`           // debug / info / warn / error
	OutputFile string `yaml:"outputFile" json:"outputFile"` // 为空则只输出控制台
	MaxSize    int    `yaml:"maxSize" json:"maxSize"`       // 单文件最大 MB
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"` // 保留旧文件数
	MaxAge     int    `yaml:"maxAge" json:"maxAge"`         // 保留天数
	Compress   bool   `yaml:"compress" json:"compress"`     // 压缩旧文件
}

// DatabaseConfig 回合历史数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"` // sqlite 文件路径
}

// SecretsConfig 凭据存储配置（站点账号密码走 badger，不进 YAML）
type SecretsConfig struct {
	Path string `yaml:"path" json:"path"` // badger 目录
}

// FeedConfig 行情源（回合结果采集端）配置
type FeedConfig struct {
	URL            string `yaml:"url" json:"url"`                       // websocket 地址
	ObservedWindow int    `yaml:"observedWindow" json:"observedWindow"` // 启动时请求的观测窗口大小（默认 20）
}

// BetSinkConfig 下注执行端配置
type BetSinkConfig struct {
	BaseURL        string `yaml:"baseUrl" json:"baseUrl"`               // 下注 HTTP 服务地址
	TimeoutSeconds int    `yaml:"timeoutSeconds" json:"timeoutSeconds"` // 请求超时（秒）
}

// ServerConfig 控制面 HTTP 配置
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen"` // 监听地址，如 :8080
}

// EngineConfig 引擎全局参数
// 指针字段区分"未配置"（补默认值）和"显式写 0"（校验期报错）
type EngineConfig struct {
	MaxLoss               float64  `yaml:"maxLoss" json:"maxLoss"`                             // 全局最大亏损（达到即停止触发）
	MinMatchLength        *int     `yaml:"minMatchLength" json:"minMatchLength"`               // 续接对齐最短匹配长度
	AlignTolerance        *float64 `yaml:"alignTolerance" json:"alignTolerance"`               // 倍数比对绝对容差
	ImportUnmatchedWindow *bool    `yaml:"importUnmatchedWindow" json:"importUnmatchedWindow"` // 无法对齐时是否把观测窗口整体导入新会话
}

// StrategyConfig 单个策略的静态配置（加载后不可变）
type StrategyConfig struct {
	Name                 string  `yaml:"name" json:"name"`                                 // 策略名（唯一键）
	BaseStake            float64 `yaml:"baseStake" json:"baseStake"`                       // 基础下注金额
	TargetMultiplier     float64 `yaml:"targetMultiplier" json:"targetMultiplier"`         // 自动提现倍数（>= 即为赢）
	TriggerWindowSize    int     `yaml:"triggerWindowSize" json:"triggerWindowSize"`       // 触发窗口大小（必须恰好 K 个回合）
	TriggerThreshold     float64 `yaml:"triggerThreshold" json:"triggerThreshold"`         // 触发阈值（窗口内全部严格低于）
	LossMultiplier       float64 `yaml:"lossMultiplier" json:"lossMultiplier"`             // 连败倍投系数
	MaxConsecutiveLosses int     `yaml:"maxConsecutiveLosses" json:"maxConsecutiveLosses"` // 最大连败次数（达到即停止）
}

// Load 从文件加载配置
func Load(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults 补齐默认值
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 7
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/crasher.db"
	}
	if c.Feed.ObservedWindow == 0 {
		c.Feed.ObservedWindow = DefaultMaxAlignWindow
	}
	if c.BetSink.TimeoutSeconds == 0 {
		c.BetSink.TimeoutSeconds = 10
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Engine.MinMatchLength == nil {
		v := DefaultMinMatchLength
		c.Engine.MinMatchLength = &v
	}
	if c.Engine.AlignTolerance == nil {
		v := DefaultAlignTolerance
		c.Engine.AlignTolerance = &v
	}
	if c.Engine.ImportUnmatchedWindow == nil {
		v := true
		c.Engine.ImportUnmatchedWindow = &v
	}
	for i := range c.Strategies {
		if c.Strategies[i].LossMultiplier == 0 {
			c.Strategies[i].LossMultiplier = DefaultLossMultiplier
		}
	}
}

// Validate 校验配置，失败即启动期致命错误
func (c *Config) Validate() error {
	if len(c.Strategies) == 0 {
		return fmt.Errorf("%w: 至少需要配置一个策略", ErrInvalidConfig)
	}
	if c.Engine.MaxLoss <= 0 {
		return fmt.Errorf("%w: engine.maxLoss 必须大于 0", ErrInvalidConfig)
	}
	if c.Engine.MinMatchLength == nil || *c.Engine.MinMatchLength <= 0 {
		return fmt.Errorf("%w: engine.minMatchLength 必须大于 0", ErrInvalidConfig)
	}
	if c.Engine.AlignTolerance == nil || *c.Engine.AlignTolerance <= 0 {
		return fmt.Errorf("%w: engine.alignTolerance 必须大于 0", ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("%w: 策略名不能为空", ErrInvalidConfig)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: 策略名重复: %s", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.BaseStake <= 0 {
			return fmt.Errorf("%w: 策略 %s 的 baseStake 必须大于 0", ErrInvalidConfig, s.Name)
		}
		if s.TargetMultiplier <= 1 {
			return fmt.Errorf("%w: 策略 %s 的 targetMultiplier 必须大于 1", ErrInvalidConfig, s.Name)
		}
		if s.TriggerWindowSize <= 0 {
			return fmt.Errorf("%w: 策略 %s 的 triggerWindowSize 必须大于 0", ErrInvalidConfig, s.Name)
		}
		if s.TriggerThreshold <= 0 {
			return fmt.Errorf("%w: 策略 %s 的 triggerThreshold 必须大于 0", ErrInvalidConfig, s.Name)
		}
		if s.LossMultiplier < 1 {
			return fmt.Errorf("%w: 策略 %s 的 lossMultiplier 不能小于 1", ErrInvalidConfig, s.Name)
		}
		if s.MaxConsecutiveLosses <= 0 {
			return fmt.Errorf("%w: 策略 %s 的 maxConsecutiveLosses 必须大于 0", ErrInvalidConfig, s.Name)
		}
	}
	return nil
}
