package ta

import "crypton-sync/internal/model"

// EMA 计算指数移动平均，结果与输入 K 线一一对齐
// 种子取第一根 K 线的收盘价，之后 ema = close*k + ema*(1-k)，k = 2/(period+1)
// 空序列 (或非法周期) 返回空序列
func EMA(candles []model.Candle, period int) []model.IndicatorPoint {
	if len(candles) == 0 || period < 1 {
		return []model.IndicatorPoint{}
	}

	u := NewEMAUpdater(period)
	out := make([]model.IndicatorPoint, len(candles))
	for i, c := range candles {
		out[i] = model.IndicatorPoint{Time: c.Time, Value: u.Next(c.Close)}
	}
	return out
}

// EMAUpdater 是 EMA 的增量计算路径，逐根喂入收盘价的结果与 EMA 全量计算完全一致
type EMAUpdater struct {
	k      float64
	value  float64
	seeded bool
}

// NewEMAUpdater 创建周期为 period 的增量 EMA
func NewEMAUpdater(period int) *EMAUpdater {
	return &EMAUpdater{k: 2 / float64(period+1)}
}

// Next 喂入下一根 K 线的收盘价并返回最新 EMA
func (u *EMAUpdater) Next(close float64) float64 {
	if !u.seeded {
		u.value = close
		u.seeded = true
		return u.value
	}
	u.value = close*u.k + u.value*(1-u.k)
	return u.value
}

// Value 返回最新 EMA，ok=false 表示还没有数据
func (u *EMAUpdater) Value() (float64, bool) {
	return u.value, u.seeded
}
