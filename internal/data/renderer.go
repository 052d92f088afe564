package data

import (
	"crypton-sync/internal/model"

	"go.uber.org/zap"
)

// Renderer 接收每次状态变化后的视图
// Render 在事件循环中同步调用，实现不能阻塞
type Renderer interface {
	Render(view model.View)
}

// RendererFunc 让普通函数满足 Renderer
type RendererFunc func(view model.View)

func (f RendererFunc) Render(view model.View) { f(view) }

// LogRenderer 把视图摘要写入日志，没有图形前端时使用
type LogRenderer struct {
	Logger *zap.Logger
}

func (r LogRenderer) Render(view model.View) {
	fields := []zap.Field{
		zap.String("Symbol", view.Symbol),
		zap.String("Interval", view.Interval),
		zap.Int("Tickers", len(view.Tickers)),
		zap.Int("Candles", len(view.Candles)),
		zap.Int("Markers", len(view.Markers)),
		zap.Bool("Online", view.Online),
		zap.Bool("FeedConnected", view.FeedConnected),
	}
	if t, ok := view.Tickers[view.Symbol]; ok {
		fields = append(fields, zap.Float64("Last", t.Last), zap.Float64("Change24h", t.PercentChange24h))
	}
	if view.OrderBook != nil && len(view.OrderBook.Bids) > 0 && len(view.OrderBook.Asks) > 0 {
		fields = append(fields,
			zap.Float64("BestBid", view.OrderBook.Bids[0].Price),
			zap.Float64("BestAsk", view.OrderBook.Asks[0].Price))
	}
	if view.Legend.Ready {
		fields = append(fields, zap.Float64("RSI", view.Legend.RSI), zap.Float64("ATR", view.Legend.ATR))
	}
	if view.LastError != "" {
		fields = append(fields, zap.String("LastError", view.LastError))
	}
	r.Logger.Debug("View updated", fields...)
}
