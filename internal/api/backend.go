package api

import (
	"context"

	"crypton-sync/internal/model"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed 表示响应或推送消息缺少预期的结构
	ErrMalformed = errors.New("malformed payload")
	// ErrStatus 表示后端返回了非成功的 HTTP 状态码
	ErrStatus = errors.New("unexpected status")
)

// Backend 是交易机器人后端的拉取接口，负责与后端 REST 通信
type Backend interface {
	// 账户、资产、持仓、挂单以及运行中的机器人
	FetchAccount(ctx context.Context) (*model.Account, error)

	// 全部交易对的 24h 行情快照，按展示 Symbol 索引
	FetchTickers(ctx context.Context) (map[string]model.Ticker, error)

	// 单个交易对的订单簿快照，最多 limit 档
	FetchOrderBook(ctx context.Context, symbol string, limit int) (*model.OrderBook, error)

	// 单个交易对 + 周期的 K 线序列
	FetchCandles(ctx context.Context, symbol, interval string) ([]model.Candle, error)

	// 单个交易对的成交记录，按时间升序
	FetchTrades(ctx context.Context, symbol string) ([]model.TradeRecord, error)
}
