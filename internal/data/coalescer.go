package data

import "crypton-sync/internal/model"

// Coalescer 缓冲推送事件，按固定节奏一次性合并进 Store
// 同一个刷新窗口内同一字段只保留最后一个值，中间值被覆盖，这是有意接受的损失
type Coalescer struct {
	tickers map[string]model.TickerPatch
	book    *model.OrderBook
}

// FlushResult 描述一次刷新实际应用了什么
type FlushResult struct {
	Tickers int  // 合并的 Ticker 数量
	Book    bool // 是否替换了订单簿
}

// Changed 判断这次刷新是否修改了 Store
func (r FlushResult) Changed() bool {
	return r.Tickers > 0 || r.Book
}

func NewCoalescer() *Coalescer {
	return &Coalescer{tickers: make(map[string]model.TickerPatch)}
}

// AddTicker 把局部字段合并进待刷新的缓冲
func (c *Coalescer) AddTicker(symbol string, patch model.TickerPatch) {
	pending := c.tickers[symbol]
	pending.Merge(patch)
	c.tickers[symbol] = pending
}

// SetBook 用新的订单簿快照覆盖待刷新的快照
func (c *Coalescer) SetBook(book *model.OrderBook) {
	c.book = book
}

// DiscardBook 丢弃待刷新的订单簿 (交易对切换时使用)
func (c *Coalescer) DiscardBook() {
	c.book = nil
}

// Pending 返回缓冲中的 Ticker 数量以及是否有待刷新的订单簿
func (c *Coalescer) Pending() (tickers int, book bool) {
	return len(c.tickers), c.book != nil
}

// Flush 先合并 Ticker，再替换订单簿，然后清空两个缓冲
// 订单簿只在仍属于当前交易对时才会被应用
func (c *Coalescer) Flush(store *Store) FlushResult {
	var res FlushResult

	if len(c.tickers) > 0 {
		res.Tickers = store.MergeTickers(c.tickers)
	}
	if c.book != nil {
		res.Book = store.ReplaceOrderBook(c.book)
	}

	c.Reset()
	return res
}

// Reset 丢弃所有缓冲数据
func (c *Coalescer) Reset() {
	c.tickers = make(map[string]model.TickerPatch)
	c.book = nil
}
