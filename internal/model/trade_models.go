package model

import (
	"encoding/json"
	"strings"
)

// Side 定义了成交方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide 大小写不敏感地解析成交方向
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

func (s Side) String() string {
	return string(s)
}

// TradeRecord 记录一笔机器人成交，按 Timestamp 升序排列
type TradeRecord struct {
	Timestamp   int64   // 毫秒时间戳
	Symbol      string  // 展示 Symbol，例如 "BTC/USDT"
	Side        Side    // buy / sell
	Price       float64 // 成交价格
	Amount      float64 // 成交数量
	RealizedPnL float64 // 已实现盈亏
}

// 图表标注的位置、形状和颜色
const (
	PositionBelowBar = "belowBar"
	PositionAboveBar = "aboveBar"

	ShapeArrowUp   = "arrowUp"
	ShapeArrowDown = "arrowDown"

	ColorBullish = "#0ecb81"
	ColorBearish = "#f6465d"
)

// Marker 是附着在 K 线上的成交标注，由 TradeRecord 一对一投影得到，只读，不单独保存
type Marker struct {
	Time     int64  `json:"time"` // 秒
	Position string `json:"position"`
	Color    string `json:"color"`
	Shape    string `json:"shape"`
	Text     string `json:"text"`
}

// Record 是拉取通道带来的透传记录 (持仓、委托、资产、运行中的机器人)
// 核心只读取 Symbol 用于按交易对关联展示，其余字段原样保留
type Record struct {
	Symbol string
	Raw    json.RawMessage
}

type (
	Position     = Record
	OpenOrder    = Record
	AssetBalance = Record
	ActiveBot    = Record
)

// Account 是 /bot/status 返回的账户快照
type Account struct {
	Balance    float64
	Assets     []AssetBalance
	Positions  []Position
	OpenOrders []OpenOrder
	ActiveBots []ActiveBot
}

// Clone 复制账户快照的切片头，Raw 内容本身不可变
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Balance:    a.Balance,
		Assets:     append([]AssetBalance(nil), a.Assets...),
		Positions:  append([]Position(nil), a.Positions...),
		OpenOrders: append([]OpenOrder(nil), a.OpenOrders...),
		ActiveBots: append([]ActiveBot(nil), a.ActiveBots...),
	}
}

// OrdersFor 返回某个交易对下的挂单，用于和持仓按 Symbol 关联展示
func (a *Account) OrdersFor(symbol string) []OpenOrder {
	if a == nil {
		return nil
	}
	var out []OpenOrder
	for _, o := range a.OpenOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// IsBotRunning 判断某个交易对是否有运行中的机器人
func (a *Account) IsBotRunning(symbol string) bool {
	if a == nil {
		return false
	}
	for _, b := range a.ActiveBots {
		if b.Symbol == symbol {
			return true
		}
	}
	return false
}

// EventKind 区分推送事件类型
type EventKind int

const (
	EventTicker EventKind = iota + 1
	EventDepth
)

// Event 是推送通道解析后的结构化事件，Symbol 已经规范化为展示格式
type Event struct {
	Kind   EventKind
	Symbol string
	Ticker TickerPatch // Kind == EventTicker 时有效
	Book   *OrderBook  // Kind == EventDepth 时有效
}
