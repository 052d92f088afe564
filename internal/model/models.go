package model

import "fmt"

// Ticker 代表侧边栏展示的 24h 行情快照，按展示 Symbol (例如 "BTC/USDT") 索引
type Ticker struct {
	Symbol           string   `json:"symbol"`
	Last             float64  `json:"last"`       // 最新成交价
	PercentChange24h float64  `json:"percentage"` // 24h 涨跌幅 (%)
	High24h          float64  `json:"high"`
	Low24h           float64  `json:"low"`
	FundingRate      *float64 `json:"funding,omitempty"` // 资金费率，仅永续合约有
}

// TickerPatch 是推送通道带来的局部字段集合，nil 表示本次事件没有携带该字段
type TickerPatch struct {
	Last             *float64
	PercentChange24h *float64
	High24h          *float64
	Low24h           *float64
	FundingRate      *float64
}

// Merge 将 other 中出现的字段覆盖到 p 上 (按字段后写覆盖)
func (p *TickerPatch) Merge(other TickerPatch) {
	if other.Last != nil {
		p.Last = other.Last
	}
	if other.PercentChange24h != nil {
		p.PercentChange24h = other.PercentChange24h
	}
	if other.High24h != nil {
		p.High24h = other.High24h
	}
	if other.Low24h != nil {
		p.Low24h = other.Low24h
	}
	if other.FundingRate != nil {
		p.FundingRate = other.FundingRate
	}
}

// IsEmpty 判断 patch 是否不包含任何字段
func (p TickerPatch) IsEmpty() bool {
	return p.Last == nil && p.PercentChange24h == nil && p.High24h == nil &&
		p.Low24h == nil && p.FundingRate == nil
}

// Apply 返回应用 patch 之后的新 Ticker，未出现的字段保持原值
func (p TickerPatch) Apply(t Ticker) Ticker {
	if p.Last != nil {
		t.Last = *p.Last
	}
	if p.PercentChange24h != nil {
		t.PercentChange24h = *p.PercentChange24h
	}
	if p.High24h != nil {
		t.High24h = *p.High24h
	}
	if p.Low24h != nil {
		t.Low24h = *p.Low24h
	}
	if p.FundingRate != nil {
		v := *p.FundingRate
		t.FundingRate = &v
	}
	return t
}

// Level 是订单簿中的一档 (价格, 数量)
type Level struct {
	Price float64
	Size  float64
}

// OrderBook 只保存当前选中 Symbol 的深度，新快照整体替换旧快照
// 注意：这里没有做增量 (delta) 合并，交易所的深度协议是增量的，这是已知的精度缺口
type OrderBook struct {
	Symbol string
	Bids   []Level // 买盘，价格从高到低
	Asks   []Level // 卖盘，价格从低到高
}

// Clone 深拷贝订单簿
func (ob *OrderBook) Clone() *OrderBook {
	if ob == nil {
		return nil
	}
	return &OrderBook{
		Symbol: ob.Symbol,
		Bids:   append([]Level(nil), ob.Bids...),
		Asks:   append([]Level(nil), ob.Asks...),
	}
}

// Candle 代表一根 K 线，Time 为秒级 Unix 时间 (渲染端的时间单位)
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ValidateSeries 检查 K 线序列时间戳严格递增且唯一
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].Time <= candles[i-1].Time {
			return fmt.Errorf("candle series not strictly increasing at index %d (%d <= %d)",
				i, candles[i].Time, candles[i-1].Time)
		}
	}
	return nil
}

// SeriesKey 标识一条 K 线序列 (Symbol + 周期)
type SeriesKey struct {
	Symbol   string
	Interval string
}

func (k SeriesKey) String() string {
	return k.Symbol + "@" + k.Interval
}

// IndicatorPoint 是指标序列中的一个点，Time 与对应 K 线相同
type IndicatorPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// IndicatorSeries 是由 K 线序列派生的一条均线，长度与源序列一致
type IndicatorSeries struct {
	Period int
	Points []IndicatorPoint
}

// VolumeBar 是成交量柱，颜色由涨跌决定
type VolumeBar struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Legend 是图表图例展示的最新一根 K 线摘要及附加指标
type Legend struct {
	Open, High, Low, Close, Volume float64
	ChangePercent                  float64 // (close-open)/open*100
	RSI                            float64 // 0 表示历史不足
	ATR                            float64 // 0 表示历史不足
	Ready                          bool
}
