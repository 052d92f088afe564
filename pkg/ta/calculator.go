package ta

import (
	"crypton-sync/internal/model"
	"sync"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

const (
	rsiPeriod = 14
	atrPeriod = 14
)

// DefaultEMAPeriods 是图表默认展示的三条均线
var DefaultEMAPeriods = []int{7, 25, 99}

// Result 是一次全量计算的输出，只读，下一次 K 线变化时整体替换
type Result struct {
	Key     model.SeriesKey
	Version uint64 // 源 K 线序列的版本号
	EMAs    []model.IndicatorSeries
	Legend  model.Legend
}

// TACalculator 负责从 K 线序列派生均线和图例指标
// 只有源序列版本变化时才重新计算，否则直接返回缓存
type TACalculator struct {
	mu            sync.RWMutex
	Periods       []int
	MinHistoryLen int // 计算 RSI/ATR 所需的最小历史长度
	Logger        *zap.Logger

	last *Result
}

// NewTACalculator 初始化技术指标计算器
func NewTACalculator(periods []int, logger *zap.Logger) *TACalculator {
	if len(periods) == 0 {
		periods = DefaultEMAPeriods
	}
	return &TACalculator{
		Periods:       append([]int(nil), periods...),
		MinHistoryLen: rsiPeriod + 1,
		Logger:        logger,
	}
}

// Compute 返回 key/version 对应序列的指标；版本未变化时复用上一次的结果
func (tc *TACalculator) Compute(key model.SeriesKey, version uint64, candles []model.Candle) *Result {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.last != nil && tc.last.Key == key && tc.last.Version == version {
		return tc.last
	}

	res := &Result{
		Key:     key,
		Version: version,
		EMAs:    make([]model.IndicatorSeries, 0, len(tc.Periods)),
	}
	for _, p := range tc.Periods {
		res.EMAs = append(res.EMAs, model.IndicatorSeries{Period: p, Points: EMA(candles, p)})
	}
	res.Legend = tc.legend(candles)

	tc.Logger.Debug("Indicators recomputed",
		zap.String("series", key.String()),
		zap.Uint64("version", version),
		zap.Int("candles", len(candles)))

	tc.last = res
	return res
}

// Latest 返回最近一次的计算结果
func (tc *TACalculator) Latest() *Result {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.last
}

// legend 计算最新一根 K 线的摘要，历史足够时附带 RSI 和 ATR
func (tc *TACalculator) legend(candles []model.Candle) model.Legend {
	if len(candles) == 0 {
		return model.Legend{}
	}

	last := candles[len(candles)-1]
	lg := model.Legend{
		Open:   last.Open,
		High:   last.High,
		Low:    last.Low,
		Close:  last.Close,
		Volume: last.Volume,
		Ready:  true,
	}
	if last.Open != 0 {
		lg.ChangePercent = (last.Close - last.Open) / last.Open * 100
	}

	if len(candles) < tc.MinHistoryLen {
		tc.Logger.Debug("Not enough history for RSI/ATR", zap.Int("len", len(candles)))
		return lg
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	// --- 相对强弱指数 (RSI 14) ---
	rsiResult := talib.Rsi(closes, rsiPeriod)
	lg.RSI = rsiResult[len(rsiResult)-1]

	// --- 平均真实波动范围 (ATR 14) ---
	atrResult := talib.Atr(highs, lows, closes, atrPeriod)
	lg.ATR = atrResult[len(atrResult)-1]

	return lg
}
