// Package data 是同步管道的核心：推送合并、拉取对账、合并状态以及派生视图
// 所有状态修改都发生在 DataEngine 的单个事件循环 goroutine 中
package data

import (
	"context"
	"sync"
	"time"

	"crypton-sync/internal/api"
	"crypton-sync/internal/chart"
	"crypton-sync/internal/clock"
	"crypton-sync/internal/model"
	"crypton-sync/internal/service"
	"crypton-sync/pkg/ta"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 账户拉取失败时展示给用户的错误信息
const apiConnectionError = "API Connection Error"

var (
	ErrAlreadyStarted = errors.New("data engine already started")
	ErrStopped        = errors.New("data engine stopped")
)

// Feed 是一个长期运行的推送源 (通常是 api.Connector)
type Feed interface {
	Run(ctx context.Context) error
	Close() error
}

// EngineConfig 是 DataEngine 的运行参数
type EngineConfig struct {
	Symbol         string
	Interval       string
	FlushInterval  time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	OrderBookDepth int
	EMAPeriods     []int
	DemoMarker     bool
}

// NewEngineConfig 从全局配置中取出 DataEngine 需要的部分
func NewEngineConfig(cfg *service.Config) EngineConfig {
	return EngineConfig{
		Symbol:         cfg.Chart.Symbol,
		Interval:       cfg.Chart.Interval,
		FlushInterval:  cfg.Sync.FlushInterval,
		PollInterval:   cfg.Sync.PollInterval,
		RequestTimeout: cfg.Backend.RequestTimeout,
		OrderBookDepth: cfg.Backend.OrderBookDepth,
		EMAPeriods:     cfg.Chart.EMAPeriods,
		DemoMarker:     cfg.Chart.DemoMarker,
	}
}

type selectRequest struct {
	symbol   string
	interval string
}

// projection 缓存由成交记录和 K 线派生的图表序列，源序列版本不变时不重算
type projection struct {
	primed         bool
	candlesVersion uint64
	tradesVersion  uint64
	volume         []model.VolumeBar
	markers        []model.Marker
}

// DataEngine 接收推送事件和拉取结果，合并进 Store，并在每次变化后发布新视图
type DataEngine struct {
	ID     string
	cfg    EngineConfig
	clock  clock.Clock
	logger *zap.Logger

	store     *Store
	coalescer *Coalescer
	poller    *Poller
	calc      *ta.TACalculator
	renderer  Renderer
	feeds     []Feed

	events    chan model.Event
	feedState chan bool
	results   chan PullResult
	selects   chan selectRequest
	views     chan chan model.View
	done      chan struct{}

	flushTicker clock.Ticker
	pollTicker  clock.Ticker

	mu      sync.Mutex // 保护生命周期字段
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped bool

	proj projection
	view model.View // 最近一次发布的视图，发布后不再修改
}

// NewDataEngine 创建引擎，调用 Start 之后才会开始同步
// renderer 可以为 nil
func NewDataEngine(cfg EngineConfig, backend api.Backend, clk clock.Clock, renderer Renderer, logger *zap.Logger) *DataEngine {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 300 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	cfg.Symbol = service.NormalizeSymbol(cfg.Symbol)

	id := uuid.NewString()
	logger = logger.With(zap.String("engine", id))

	e := &DataEngine{
		ID:        id,
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
		store:     NewStore(cfg.Symbol, cfg.Interval),
		coalescer: NewCoalescer(),
		poller: NewPoller(backend, PollerConfig{
			RequestTimeout: cfg.RequestTimeout,
			OrderBookDepth: cfg.OrderBookDepth,
		}, logger),
		calc:      ta.NewTACalculator(cfg.EMAPeriods, logger),
		renderer:  renderer,
		events:    make(chan model.Event, 1024),
		feedState: make(chan bool, 16),
		results:   make(chan PullResult, 64),
		selects:   make(chan selectRequest),
		views:     make(chan chan model.View),
		done:      make(chan struct{}),
	}
	e.view = e.buildView()

	logger.Info("Data engine initialized",
		zap.String("Symbol", cfg.Symbol),
		zap.String("Interval", cfg.Interval),
		zap.Duration("FlushInterval", cfg.FlushInterval),
		zap.Duration("PollInterval", cfg.PollInterval))
	return e
}

// AttachFeed 注册一个推送源，必须在 Start 之前调用
func (e *DataEngine) AttachFeed(f Feed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeds = append(e.feeds, f)
}

// Start 创建刷新和对账两个定时器，启动事件循环和全部推送源
// 每个引擎实例只能启动一次
func (e *DataEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.flushTicker = e.clock.NewTicker(e.cfg.FlushInterval)
	e.pollTicker = e.clock.NewTicker(e.cfg.PollInterval)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return e.run(gctx) })
	for _, f := range e.feeds {
		f := f
		group.Go(func() error { return f.Run(gctx) })
	}

	e.cancel = cancel
	e.group = group
	e.logger.Info("Data engine started", zap.Int("feeds", len(e.feeds)))
	return nil
}

// Stop 停止推送源和事件循环，释放两个定时器并丢弃尚未刷新的缓冲
// 重复调用是安全的
func (e *DataEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel == nil || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	cancel, group, feeds := e.cancel, e.group, e.feeds
	e.mu.Unlock()

	cancel()
	close(e.done)
	for _, f := range feeds {
		if err := f.Close(); err != nil {
			e.logger.Debug("Feed close failed", zap.Error(err))
		}
	}
	defer e.flushTicker.Stop()
	defer e.pollTicker.Stop()

	waitErr := make(chan error, 1)
	go func() {
		err := group.Wait()
		e.poller.Wait()
		waitErr <- err
	}()

	select {
	case err := <-waitErr:
		// 事件循环已退出，可以安全地访问缓冲
		e.coalescer.Reset()
		e.logger.Info("Data engine stopped")
		return err
	case <-ctx.Done():
		e.logger.Warn("Data engine stop timed out", zap.Error(ctx.Err()))
		return errors.Wrap(ctx.Err(), "stop data engine")
	}
}

// Submit 投递一条推送事件，引擎停止后的事件被丢弃
func (e *DataEngine) Submit(ev model.Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// SetFeedConnected 更新推送通道的连接状态
func (e *DataEngine) SetFeedConnected(connected bool) {
	select {
	case e.feedState <- connected:
	case <-e.done:
	}
}

// Select 切换当前交易对/周期，返回时事件循环已经接收该请求
func (e *DataEngine) Select(ctx context.Context, symbol, interval string) error {
	if _, err := service.ParseIntervalDuration(interval); err != nil {
		return errors.Wrap(err, "select")
	}
	req := selectRequest{symbol: service.NormalizeSymbol(symbol), interval: interval}

	select {
	case e.selects <- req:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View 返回最近一次发布的视图
func (e *DataEngine) View(ctx context.Context) (model.View, error) {
	reply := make(chan model.View, 1)
	select {
	case e.views <- reply:
	case <-e.done:
		return model.View{}, ErrStopped
	case <-ctx.Done():
		return model.View{}, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return model.View{}, ctx.Err()
	}
}

// run 是唯一修改状态的 goroutine
func (e *DataEngine) run(ctx context.Context) error {
	e.poller.Initial(ctx, e.store.Selected(), e.results)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			e.handleEvent(ev)
		case connected := <-e.feedState:
			e.handleFeedState(connected)
		case <-e.flushTicker.C():
			e.handleFlush()
		case <-e.pollTicker.C():
			e.handlePoll(ctx)
		case res := <-e.results:
			e.handlePull(res)
		case req := <-e.selects:
			e.handleSelect(ctx, req)
		case reply := <-e.views:
			reply <- e.view
		}
	}
}

func (e *DataEngine) handleEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventTicker:
		if ev.Ticker.IsEmpty() {
			return
		}
		e.coalescer.AddTicker(ev.Symbol, ev.Ticker)
	case model.EventDepth:
		// 只缓冲当前交易对的深度
		if ev.Book == nil || ev.Symbol != e.store.Selected().Symbol {
			e.logger.Debug("Depth for unselected symbol dropped", zap.String("Symbol", ev.Symbol))
			return
		}
		e.coalescer.SetBook(ev.Book)
	default:
		e.logger.Debug("Unknown event kind", zap.Int("kind", int(ev.Kind)))
	}
}

func (e *DataEngine) handleFeedState(connected bool) {
	if e.store.Snapshot().FeedConnected == connected {
		return
	}
	e.store.SetFeedConnected(connected)
	e.publish()
}

func (e *DataEngine) handleFlush() {
	res := e.coalescer.Flush(e.store)
	if res.Changed() {
		e.publish()
	}
}

func (e *DataEngine) handlePoll(ctx context.Context) {
	e.poller.Cycle(ctx, e.store.Selected(), e.results)
}

// handlePull 应用拉取结果；失败时保留已有状态，只有账户拉取失败会改变在线状态
// 与当前选择不一致的结果视为过期并丢弃
func (e *DataEngine) handlePull(res PullResult) {
	if res.Err != nil {
		if res.Kind == PullAccount {
			e.store.SetOnline(false)
			e.store.SetLastError(apiConnectionError)
			e.publish()
		}
		return
	}

	applied := true
	switch res.Kind {
	case PullAccount:
		e.store.ReplaceAccount(res.Account)
		e.store.SetOnline(true)
		e.store.SetLastError("")
	case PullTickers:
		e.store.SeedTickers(res.Tickers)
	case PullOrderBook:
		applied = e.store.ReplaceOrderBook(res.Book)
	case PullCandles:
		applied = e.store.ReplaceCandles(res.Key, res.Candles)
	case PullTrades:
		applied = e.store.ReplaceTrades(res.Key.Symbol, res.Trades)
	}

	if !applied {
		e.logger.Debug("Stale pull result discarded",
			zap.Stringer("kind", res.Kind),
			zap.String("series", res.Key.String()),
			zap.String("selected", e.store.Selected().String()))
		return
	}
	e.publish()
}

func (e *DataEngine) handleSelect(ctx context.Context, req selectRequest) {
	changed, symbolChanged := e.store.Select(req.symbol, req.interval)
	if !changed {
		return
	}
	if symbolChanged {
		// 旧交易对的深度不能在下一次刷新时被应用
		e.coalescer.DiscardBook()
	}

	key := e.store.Selected()
	e.logger.Info("Selection changed", zap.String("series", key.String()))
	e.poller.Reselect(ctx, key, e.results)
	e.publish()
}

func (e *DataEngine) publish() {
	e.view = e.buildView()
	if e.renderer != nil {
		e.renderer.Render(e.view)
	}
}

// buildView 从当前快照派生完整视图
func (e *DataEngine) buildView() model.View {
	snap := e.store.Snapshot()
	key := model.SeriesKey{Symbol: snap.Symbol, Interval: snap.Interval}

	indicators := e.calc.Compute(key, snap.CandlesVersion, snap.Candles)
	e.project(snap)

	return model.View{
		Symbol:        snap.Symbol,
		Interval:      snap.Interval,
		Tickers:       snap.Tickers,
		OrderBook:     snap.OrderBook,
		Account:       snap.Account,
		Trades:        snap.Trades,
		Candles:       snap.Candles,
		Volume:        e.proj.volume,
		EMAs:          indicators.EMAs,
		Markers:       e.proj.markers,
		Legend:        indicators.Legend,
		Online:        snap.Online,
		FeedConnected: snap.FeedConnected,
		LastError:     snap.LastError,
		UpdatedAt:     e.clock.Now(),
	}
}

func (e *DataEngine) project(snap Snapshot) {
	if !e.proj.primed || e.proj.candlesVersion != snap.CandlesVersion {
		e.proj.volume = chart.VolumeBars(snap.Candles)
		e.proj.candlesVersion = snap.CandlesVersion
	}
	if !e.proj.primed || e.proj.tradesVersion != snap.TradesVersion {
		markers := chart.Markers(snap.Trades, e.logger)
		if len(markers) == 0 && e.cfg.DemoMarker {
			markers = chart.Placeholder(e.clock.Now())
		}
		e.proj.markers = markers
		e.proj.tradesVersion = snap.TradesVersion
	}
	e.proj.primed = true
}
