package data

import (
	"context"
	"sync"
	"time"

	"crypton-sync/internal/api"
	"crypton-sync/internal/model"
	"crypton-sync/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PullKind 标识一次拉取请求的数据类型
type PullKind int

const (
	PullAccount PullKind = iota + 1
	PullTickers
	PullOrderBook
	PullCandles
	PullTrades
)

func (k PullKind) String() string {
	switch k {
	case PullAccount:
		return "account"
	case PullTickers:
		return "tickers"
	case PullOrderBook:
		return "orderbook"
	case PullCandles:
		return "candles"
	case PullTrades:
		return "trades"
	default:
		return "unknown"
	}
}

// PullResult 是一次拉取的结果，带着发起时的交易对/周期，便于丢弃过期结果
type PullResult struct {
	Kind PullKind
	Key  model.SeriesKey
	Err  error

	Account *model.Account
	Tickers map[string]model.Ticker
	Book    *model.OrderBook
	Candles []model.Candle
	Trades  []model.TradeRecord
}

// PollerConfig 定义拉取参数
type PollerConfig struct {
	RequestTimeout time.Duration // 单个请求的超时时间
	OrderBookDepth int
}

// Poller 发起相互独立的拉取请求，每个请求一个 goroutine，结果投递回事件循环
// 任一请求失败都不会影响其他请求
type Poller struct {
	backend api.Backend
	cfg     PollerConfig
	logger  *zap.Logger

	wg sync.WaitGroup
}

func NewPoller(backend api.Backend, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 4 * time.Second
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 20
	}
	return &Poller{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "poller")),
	}
}

// Initial 启动时拉取全部数据
func (p *Poller) Initial(ctx context.Context, key model.SeriesKey, out chan<- PullResult) {
	p.launch(ctx, out, key, PullAccount, PullTickers, PullOrderBook, PullCandles, PullTrades)
}

// Cycle 是周期性对账：账户、当前 K 线和成交记录
func (p *Poller) Cycle(ctx context.Context, key model.SeriesKey, out chan<- PullResult) {
	p.launch(ctx, out, key, PullAccount, PullCandles, PullTrades)
}

// Reselect 在切换交易对/周期后立即拉取新选择对应的数据
func (p *Poller) Reselect(ctx context.Context, key model.SeriesKey, out chan<- PullResult) {
	p.launch(ctx, out, key, PullCandles, PullTrades, PullOrderBook)
}

// Wait 等待所有进行中的请求结束
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) launch(ctx context.Context, out chan<- PullResult, key model.SeriesKey, kinds ...PullKind) {
	for _, kind := range kinds {
		p.wg.Add(1)
		go func(kind PullKind) {
			defer p.wg.Done()

			res := p.pull(ctx, kind, key)
			select {
			case out <- res:
			case <-ctx.Done():
			}
		}(kind)
	}
}

// pull 执行单个请求
func (p *Poller) pull(ctx context.Context, kind PullKind, key model.SeriesKey) PullResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	ctx, span := trace.StartSpan(ctx, "pull."+kind.String(),
		attribute.String("series", key.String()))

	res := PullResult{Kind: kind, Key: key}
	switch kind {
	case PullAccount:
		res.Account, res.Err = p.backend.FetchAccount(ctx)
	case PullTickers:
		res.Tickers, res.Err = p.backend.FetchTickers(ctx)
	case PullOrderBook:
		res.Book, res.Err = p.backend.FetchOrderBook(ctx, key.Symbol, p.cfg.OrderBookDepth)
	case PullCandles:
		res.Candles, res.Err = p.backend.FetchCandles(ctx, key.Symbol, key.Interval)
	case PullTrades:
		res.Trades, res.Err = p.backend.FetchTrades(ctx, key.Symbol)
	}
	trace.End(span, res.Err)

	if res.Err != nil {
		p.logger.Warn("Pull failed",
			zap.Stringer("kind", kind),
			zap.String("series", key.String()),
			zap.Error(res.Err))
	}
	return res
}
