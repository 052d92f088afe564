package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crypton-sync/internal/clock"
	"crypton-sync/internal/model"
	"crypton-sync/internal/service"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 推送通道的事件标签
const (
	eventTicker = "24hrTicker"
	eventDepth  = "depthUpdate"
)

// EventSink 是推送事件的唯一入口，Connector 只负责解析和投递，不直接修改状态
type EventSink interface {
	Submit(ev model.Event)
	SetFeedConnected(connected bool)
}

// ConnectorConfig 定义推送通道的连接参数
type ConnectorConfig struct {
	URL              string
	ReconnectDelay   time.Duration // 固定重连间隔，无最大重试次数
	HandshakeTimeout time.Duration
}

// Connector 维护一条到后端推送通道的逻辑连接，断线后按固定间隔无限重连
type Connector struct {
	cfg    ConnectorConfig
	sink   EventSink
	clock  clock.Clock
	logger *zap.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	connects atomic.Int64 // 成功建立连接的次数
}

// NewConnector 创建 Connector，调用 Run 之后才会开始连接
func NewConnector(cfg ConnectorConfig, sink EventSink, clk clock.Clock, logger *zap.Logger) *Connector {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	logger = logger.With(zap.String("component", "connector"))
	logger.Info("Connector initialized", zap.String("URL", cfg.URL), zap.Duration("ReconnectDelay", cfg.ReconnectDelay))

	return &Connector{
		cfg:    cfg,
		sink:   sink,
		clock:  clk,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Run 阻塞直到 ctx 取消；期间任何连接丢失都在固定等待后重连
func (c *Connector) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		c.sink.SetFeedConnected(false)

		if ctx.Err() != nil {
			c.logger.Info("Connector stopped")
			return nil
		}

		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Warn("WS closed abnormally, reconnecting...", zap.Error(err), zap.Duration("In", c.cfg.ReconnectDelay))
		} else {
			c.logger.Warn("WS connection lost, reconnecting...", zap.Error(err), zap.Duration("In", c.cfg.ReconnectDelay))
		}

		select {
		case <-c.clock.After(c.cfg.ReconnectDelay):
		case <-ctx.Done():
			c.logger.Info("Connector stopped")
			return nil
		}
	}
}

// Connects 返回成功建立连接的累计次数
func (c *Connector) Connects() int64 {
	return c.connects.Load()
}

// Close 关闭当前连接 (如果有)，正在进行的读操作会立即返回
func (c *Connector) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// session 建立一次连接并持续读取，直到出错
func (c *Connector) session(ctx context.Context) error {
	c.logger.Info("Connecting WebSocket...", zap.String("URL", c.cfg.URL))

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, "dialing feed")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// ctx 取消时关闭连接，让 ReadMessage 返回
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	c.connects.Add(1)
	c.sink.SetFeedConnected(true)
	c.logger.Info("WebSocket connected")

	return c.readLoop(conn)
}

// readLoop 持续读取 WS 消息并处理
func (c *Connector) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, ok := ParseEvent(message)
		if !ok {
			// 非法或不关心的消息直接丢弃，不能影响管道
			c.logger.Debug("Dropping unrecognized feed message", zap.Int("Bytes", len(message)))
			continue
		}
		c.sink.Submit(ev)
	}
}

// ParseEvent 把一帧推送消息解析为结构化事件，ok=false 表示应当丢弃
// 用按键精确查找而不是结构体反序列化：24hrTicker 同时带有 "p"/"P"、"b"/"B" 等仅大小写不同的字段
func ParseEvent(data []byte) (model.Event, bool) {
	if !jsoniter.Valid(data) {
		return model.Event{}, false
	}
	root := jsoniter.Get(data)
	if root.ValueType() != jsoniter.ObjectValue {
		return model.Event{}, false
	}

	symbol := root.Get("s")
	if symbol.ValueType() != jsoniter.StringValue || symbol.ToString() == "" {
		return model.Event{}, false
	}
	display := service.NormalizeSymbol(symbol.ToString())

	switch root.Get("e").ToString() {
	case eventTicker:
		var patch model.TickerPatch
		var ok bool
		if patch.Last, ok = optFloat(root.Get("c")); !ok {
			return model.Event{}, false
		}
		if patch.PercentChange24h, ok = optFloat(root.Get("P")); !ok {
			return model.Event{}, false
		}
		if patch.High24h, ok = optFloat(root.Get("h")); !ok {
			return model.Event{}, false
		}
		if patch.Low24h, ok = optFloat(root.Get("l")); !ok {
			return model.Event{}, false
		}
		if patch.IsEmpty() {
			return model.Event{}, false
		}
		return model.Event{Kind: model.EventTicker, Symbol: display, Ticker: patch}, true

	case eventDepth:
		bids, ok := levels(root.Get("b"))
		if !ok {
			return model.Event{}, false
		}
		asks, ok := levels(root.Get("a"))
		if !ok {
			return model.Event{}, false
		}
		return model.Event{
			Kind:   model.EventDepth,
			Symbol: display,
			Book:   &model.OrderBook{Symbol: display, Bids: bids, Asks: asks},
		}, true
	}

	return model.Event{}, false
}

// optFloat 解析可选的数值字段 (字符串或数字)；字段缺失返回 nil，格式错误返回 ok=false
func optFloat(v jsoniter.Any) (*float64, bool) {
	switch v.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return nil, true
	case jsoniter.NumberValue:
		f := v.ToFloat64()
		return &f, true
	case jsoniter.StringValue:
		f, err := service.StringToFloat(v.ToString())
		if err != nil {
			return nil, false
		}
		return &f, true
	}
	return nil, false
}

// levels 解析 [[price, size], ...] 深度数组
func levels(v jsoniter.Any) ([]model.Level, bool) {
	if v.ValueType() != jsoniter.ArrayValue {
		return nil, false
	}
	out := make([]model.Level, 0, v.Size())
	for i := 0; i < v.Size(); i++ {
		lv := v.Get(i)
		if lv.ValueType() != jsoniter.ArrayValue || lv.Size() < 2 {
			return nil, false
		}
		price, ok := optFloat(lv.Get(0))
		if !ok || price == nil {
			return nil, false
		}
		size, ok := optFloat(lv.Get(1))
		if !ok || size == nil {
			return nil, false
		}
		out = append(out, model.Level{Price: *price, Size: *size})
	}
	return out, true
}
