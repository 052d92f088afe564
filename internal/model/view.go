package model

import "time"

// View 是交给渲染端的只读快照：同步后的状态加上派生的图表序列
// 切片和 map 都是独立副本或不可变序列，渲染端可以安全持有
type View struct {
	Symbol   string
	Interval string

	Tickers   map[string]Ticker
	OrderBook *OrderBook // 仅当前 Symbol，可能为 nil
	Account   *Account
	Trades    []TradeRecord

	Candles []Candle
	Volume  []VolumeBar
	EMAs    []IndicatorSeries
	Markers []Marker
	Legend  Legend

	Online        bool   // 最近一次账户拉取是否成功
	FeedConnected bool   // 推送通道是否在线
	LastError     string // 最近一次拉取失败的描述
	UpdatedAt     time.Time
}
