package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.RESTURL)
	assert.Equal(t, "ws://127.0.0.1:8000/ws", cfg.Backend.WSURL)
	assert.Equal(t, 300*time.Millisecond, cfg.Sync.FlushInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Sync.ReconnectDelay)
	assert.Equal(t, "BTC/USDT", cfg.Chart.Symbol)
	if diff := cmp.Diff([]int{7, 25, 99}, cfg.Chart.EMAPeriods); diff != "" {
		t.Fatalf("unexpected EMA periods: %s", diff)
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, "15m", cfg.Chart.Interval)
	assert.Equal(t, 20, cfg.Backend.OrderBookDepth)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
backend:
  restURL: "http://bot.local:9000"
  requestTimeout: 2s
sync:
  flushInterval: 250ms
chart:
  symbol: "ethusdt"
  interval: "1h"
  emaPeriods: [9, 21]
log:
  level: "debug"
`
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	assert.NoError(t, err)

	assert.Equal(t, "http://bot.local:9000", cfg.Backend.RESTURL)
	assert.Equal(t, 2*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.FlushInterval)
	// Ensure unspecified keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, "ETH/USDT", cfg.Chart.Symbol)
	assert.Equal(t, "1h", cfg.Chart.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	if diff := cmp.Diff([]int{9, 21}, cfg.Chart.EMAPeriods); diff != "" {
		t.Fatalf("unexpected EMA periods: %s", diff)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CRYPTON_BACKEND_WSURL", "ws://override:1234/ws")
	t.Setenv("CRYPTON_SYNC_POLLINTERVAL", "10s")

	cfg, err := LoadConfig(t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, "ws://override:1234/ws", cfg.Backend.WSURL)
	assert.Equal(t, 10*time.Second, cfg.Sync.PollInterval)
}

func TestLoadConfigDotEnv(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	assert.NoError(t, os.Mkdir(dir, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("CRYPTON_CHART_SYMBOL=SOLUSDT\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CRYPTON_CHART_SYMBOL") })

	cfg, err := LoadConfig(dir)
	assert.NoError(t, err)
	assert.Equal(t, "SOL/USDT", cfg.Chart.Symbol)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sync:\n  pollInterval: 100ms\n"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.RESTURL = ""
	cfg.Sync.PollInterval = cfg.Sync.FlushInterval
	cfg.Chart.Interval = "15x"
	cfg.Chart.EMAPeriods = []int{7, 0}

	err := cfg.Validate()
	assert.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"backend.restURL", "sync.pollInterval", "chart.interval", "invalid period 0"} {
		assert.True(t, strings.Contains(msg, want))
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "BTCUSDT", want: "BTC/USDT"},
		{in: "ethusdt", want: "ETH/USDT"},
		{in: "BTC/USDT", want: "BTC/USDT"},
		{in: "ETHBTC", want: "ETH/BTC"},
		{in: "SOLFDUSD", want: "SOL/FDUSD"},
		{in: " bnbusdc ", want: "BNB/USDC"},
		{in: "USDT", want: "USDT"},
		{in: "XYZ", want: "XYZ"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSymbol(tt.in))
		})
	}
}

func TestParseIntervalDuration(t *testing.T) {
	valid := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range valid {
		got, err := ParseIntervalDuration(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "m", "0m", "-5m", "15x", "abcm"} {
		_, err := ParseIntervalDuration(in)
		assert.Error(t, err)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Development: true})
	assert.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
