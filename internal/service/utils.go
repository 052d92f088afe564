package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// quoteAssets 按长度从长到短排列，避免 "FDUSD" 被 "USD" 类的短后缀误匹配
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

// NormalizeSymbol 将交易所的合并 Symbol 改写为展示格式
// 例如 "BTCUSDT" -> "BTC/USDT"；已经带分隔符或无法识别计价资产的原样返回
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || strings.Contains(s, "/") {
		return s
	}
	for _, quote := range quoteAssets {
		if len(s) > len(quote) && strings.HasSuffix(s, quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "15m" -> 15*time.Minute
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	case "w":
		unitDuration = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}

	return time.Duration(value) * unitDuration, nil
}
