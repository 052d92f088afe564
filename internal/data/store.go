package data

import (
	"maps"

	"crypton-sync/internal/model"
)

// Snapshot 是合并后的唯一权威状态
// Candles 和 Trades 只会被整体替换，从不原地修改，所以可以在副本之间共享底层数组
type Snapshot struct {
	Symbol   string
	Interval string

	Tickers   map[string]model.Ticker
	OrderBook *model.OrderBook
	Account   *model.Account

	Candles        []model.Candle
	CandlesVersion uint64 // 每次整体替换 Candles 时递增
	Trades         []model.TradeRecord
	TradesVersion  uint64 // 每次整体替换 Trades 时递增

	Online        bool
	FeedConnected bool
	LastError     string
}

// Store 持有合并快照，只在 DataEngine 的事件循环中被修改，因此不需要加锁
type Store struct {
	snap    Snapshot
	version uint64 // 序列版本号的全局计数器，保证不同序列的版本号不会重复
}

// NewStore 创建以 symbol/interval 为当前选择的空快照
func NewStore(symbol, interval string) *Store {
	return &Store{snap: Snapshot{
		Symbol:   symbol,
		Interval: interval,
		Tickers:  make(map[string]model.Ticker),
	}}
}

// Snapshot 返回当前状态的副本
func (s *Store) Snapshot() Snapshot {
	out := s.snap
	out.Tickers = maps.Clone(s.snap.Tickers)
	out.OrderBook = s.snap.OrderBook.Clone()
	out.Account = s.snap.Account.Clone()
	return out
}

// Selected 返回当前选中的交易对和周期
func (s *Store) Selected() model.SeriesKey {
	return model.SeriesKey{Symbol: s.snap.Symbol, Interval: s.snap.Interval}
}

// Select 切换当前交易对/周期，返回是否发生了变化
// 交易对变化时清空订单簿 (它属于旧交易对)；任一变化都清空 K 线和成交记录，等待重新拉取
func (s *Store) Select(symbol, interval string) (changed, symbolChanged bool) {
	symbolChanged = symbol != s.snap.Symbol
	changed = symbolChanged || interval != s.snap.Interval
	if !changed {
		return false, false
	}

	s.snap.Symbol = symbol
	s.snap.Interval = interval
	if symbolChanged {
		s.snap.OrderBook = nil
		s.snap.Trades = nil
		s.snap.TradesVersion = s.nextVersion()
	}
	s.snap.Candles = nil
	s.snap.CandlesVersion = s.nextVersion()
	return changed, symbolChanged
}

// MergeTickers 把局部字段逐个覆盖到对应的 Ticker 上，返回受影响的 Ticker 数量
func (s *Store) MergeTickers(patches map[string]model.TickerPatch) int {
	for symbol, patch := range patches {
		t, ok := s.snap.Tickers[symbol]
		if !ok {
			t = model.Ticker{Symbol: symbol}
		}
		s.snap.Tickers[symbol] = patch.Apply(t)
	}
	return len(patches)
}

// SeedTickers 用拉取到的完整 Ticker 覆盖同名记录，其他交易对保持不变
func (s *Store) SeedTickers(tickers map[string]model.Ticker) {
	for symbol, t := range tickers {
		t.Symbol = symbol
		s.snap.Tickers[symbol] = t
	}
}

// ReplaceOrderBook 整体替换订单簿；不属于当前交易对的快照被丢弃
func (s *Store) ReplaceOrderBook(book *model.OrderBook) bool {
	if book == nil || book.Symbol != s.snap.Symbol {
		return false
	}
	s.snap.OrderBook = book.Clone()
	return true
}

// ReplaceCandles 整体替换 K 线序列；key 与当前选择不一致 (过期的拉取结果) 时丢弃
func (s *Store) ReplaceCandles(key model.SeriesKey, candles []model.Candle) bool {
	if key != s.Selected() {
		return false
	}
	s.snap.Candles = append([]model.Candle(nil), candles...)
	s.snap.CandlesVersion = s.nextVersion()
	return true
}

// ReplaceTrades 整体替换成交记录；不属于当前交易对时丢弃
func (s *Store) ReplaceTrades(symbol string, trades []model.TradeRecord) bool {
	if symbol != s.snap.Symbol {
		return false
	}
	s.snap.Trades = append([]model.TradeRecord(nil), trades...)
	s.snap.TradesVersion = s.nextVersion()
	return true
}

// ReplaceAccount 整体替换账户快照
func (s *Store) ReplaceAccount(account *model.Account) {
	s.snap.Account = account.Clone()
}

func (s *Store) SetOnline(online bool) {
	s.snap.Online = online
}

func (s *Store) SetFeedConnected(connected bool) {
	s.snap.FeedConnected = connected
}

func (s *Store) SetLastError(msg string) {
	s.snap.LastError = msg
}

func (s *Store) nextVersion() uint64 {
	s.version++
	return s.version
}
