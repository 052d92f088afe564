// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是同步管道的全部配置
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Chart   ChartConfig   `mapstructure:"chart"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// BackendConfig 定义了交易机器人后端的连接信息
type BackendConfig struct {
	RESTURL        string        `mapstructure:"restURL"`
	WSURL          string        `mapstructure:"wsURL"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"` // 单次拉取请求超时
	OrderBookDepth int           `mapstructure:"orderBookDepth"` // 订单簿快照档位数
}

// SyncConfig 定义了推送合并与拉取对账的节奏
type SyncConfig struct {
	FlushInterval  time.Duration `mapstructure:"flushInterval"`  // 推送缓冲刷新间隔
	PollInterval   time.Duration `mapstructure:"pollInterval"`   // 拉取对账间隔
	ReconnectDelay time.Duration `mapstructure:"reconnectDelay"` // 固定重连等待，不做指数退避
}

// ChartConfig 定义了图表的初始交易对、周期和均线参数
type ChartConfig struct {
	Symbol     string `mapstructure:"symbol"`
	Interval   string `mapstructure:"interval"`
	EMAPeriods []int  `mapstructure:"emaPeriods"`
	DemoMarker bool   `mapstructure:"demoMarker"` // 成交记录为空时展示一个演示标注
}

// LogConfig 定义了日志级别
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TraceConfig 控制 OpenTelemetry 链路追踪
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EnvPrefix 是环境变量覆盖配置时使用的前缀，例如 CRYPTON_BACKEND_RESTURL
const EnvPrefix = "CRYPTON"

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.restURL", "http://127.0.0.1:8000")
	v.SetDefault("backend.wsURL", "ws://127.0.0.1:8000/ws")
	v.SetDefault("backend.requestTimeout", 4*time.Second)
	v.SetDefault("backend.orderBookDepth", 20)

	v.SetDefault("sync.flushInterval", 300*time.Millisecond)
	v.SetDefault("sync.pollInterval", 5*time.Second)
	v.SetDefault("sync.reconnectDelay", 3*time.Second)

	v.SetDefault("chart.symbol", "BTC/USDT")
	v.SetDefault("chart.interval", "15m")
	v.SetDefault("chart.emaPeriods", []int{7, 25, 99})
	v.SetDefault("chart.demoMarker", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("trace.enabled", false)
}

// DefaultConfig 返回不读取任何文件的默认配置
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return &cfg
}

// LoadConfig 读取并解析配置文件
// configPath 目录下的 config.yaml 可选；缺失时使用默认值，环境变量始终可以覆盖
func LoadConfig(configPath string) (*Config, error) {
	// .env 只是便利，不存在时忽略
	if err := godotenv.Load(filepath.Join(configPath, "..", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 将配置绑定到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Chart.Symbol = NormalizeSymbol(cfg.Chart.Symbol)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 一次性报告所有配置问题
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.RESTURL == "" {
		errs = append(errs, errors.New("backend.restURL cannot be empty"))
	}
	if c.Backend.WSURL == "" {
		errs = append(errs, errors.New("backend.wsURL cannot be empty"))
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, errors.New("backend.requestTimeout must be positive"))
	}
	if c.Backend.OrderBookDepth <= 0 {
		errs = append(errs, errors.New("backend.orderBookDepth must be positive"))
	}
	if c.Sync.FlushInterval <= 0 {
		errs = append(errs, errors.New("sync.flushInterval must be positive"))
	}
	if c.Sync.PollInterval <= c.Sync.FlushInterval {
		errs = append(errs, errors.New("sync.pollInterval must be longer than sync.flushInterval"))
	}
	if c.Sync.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("sync.reconnectDelay must be positive"))
	}
	if c.Chart.Symbol == "" {
		errs = append(errs, errors.New("chart.symbol cannot be empty"))
	}
	if _, err := ParseIntervalDuration(c.Chart.Interval); err != nil {
		errs = append(errs, fmt.Errorf("chart.interval: %w", err))
	}
	if len(c.Chart.EMAPeriods) == 0 {
		errs = append(errs, errors.New("chart.emaPeriods cannot be empty"))
	}
	for _, p := range c.Chart.EMAPeriods {
		if p < 1 {
			errs = append(errs, fmt.Errorf("chart.emaPeriods: invalid period %d", p))
		}
	}

	return errors.Join(errs...)
}
