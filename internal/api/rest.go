package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypton-sync/internal/model"
	"crypton-sync/internal/service"
	"crypton-sync/internal/trace"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxBodySize 限制单个响应的读取大小
const maxBodySize = 8 << 20

// RESTClient 实现了 Backend 接口
type RESTClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewRESTClient 创建指向 baseURL 的拉取客户端，timeout 作用于每一次请求
func NewRESTClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "rest")),
	}
}

var _ Backend = (*RESTClient)(nil)

// get 发起 GET 请求并返回响应体，非 2xx 状态码视为错误
func (c *RESTClient) get(ctx context.Context, path string, query url.Values) (body []byte, err error) {
	ctx, span := trace.StartSpan(ctx, "GET "+path, attribute.String("http.path", path))
	defer func() { trace.End(span, err) }()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting %s", path)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrStatus, "%s returned %d", path, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrapf(ErrMalformed, "%s returned invalid json", path)
	}
	return body, nil
}

// FetchAccount 拉取 /bot/status
func (c *RESTClient) FetchAccount(ctx context.Context) (*model.Account, error) {
	body, err := c.get(ctx, "/bot/status", nil)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsObject() || !res.Get("balance").Exists() {
		return nil, errors.Wrap(ErrMalformed, "account snapshot missing balance")
	}

	return &model.Account{
		Balance:    res.Get("balance").Float(),
		Assets:     parseRecords(res.Get("assets"), "asset"),
		Positions:  parseRecords(res.Get("positions"), "symbol"),
		OpenOrders: parseRecords(res.Get("open_orders"), "symbol"),
		ActiveBots: parseRecords(res.Get("active_bots"), "symbol"),
	}, nil
}

// parseRecords 把数组中的每个对象原样保留，只提取用于关联的键
func parseRecords(arr gjson.Result, key string) []model.Record {
	if !arr.IsArray() {
		return nil
	}
	var out []model.Record
	arr.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, model.Record{
				Symbol: item.Get(key).String(),
				Raw:    json.RawMessage(item.Raw),
			})
		}
		return true
	})
	return out
}

// FetchTickers 拉取 /tickers
func (c *RESTClient) FetchTickers(ctx context.Context) (map[string]model.Ticker, error) {
	body, err := c.get(ctx, "/tickers", nil)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, errors.Wrap(ErrMalformed, "tickers snapshot is not an object")
	}

	tickers := make(map[string]model.Ticker)
	res.ForEach(func(key, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		symbol := service.NormalizeSymbol(key.String())
		t := model.Ticker{
			Symbol:           symbol,
			Last:             v.Get("last").Float(),
			PercentChange24h: v.Get("percentage").Float(),
			High24h:          v.Get("high").Float(),
			Low24h:           v.Get("low").Float(),
		}
		if f := v.Get("funding"); f.Exists() && f.Type != gjson.Null {
			rate := f.Float()
			t.FundingRate = &rate
		}
		tickers[symbol] = t
		return true
	})
	return tickers, nil
}

// FetchOrderBook 拉取 /orderbook
func (c *RESTClient) FetchOrderBook(ctx context.Context, symbol string, limit int) (*model.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/orderbook", q)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	bids, asks := res.Get("bids"), res.Get("asks")
	if !bids.IsArray() || !asks.IsArray() {
		return nil, errors.Wrap(ErrMalformed, "order book missing bids/asks")
	}

	book := &model.OrderBook{Symbol: symbol}
	if book.Bids, err = parseLevels(bids); err != nil {
		return nil, err
	}
	if book.Asks, err = parseLevels(asks); err != nil {
		return nil, err
	}
	return book, nil
}

func parseLevels(arr gjson.Result) ([]model.Level, error) {
	items := arr.Array()
	levels := make([]model.Level, 0, len(items))
	for _, lv := range items {
		pair := lv.Array()
		if len(pair) < 2 {
			return nil, errors.Wrap(ErrMalformed, "order book level is not a [price, size] pair")
		}
		levels = append(levels, model.Level{Price: pair[0].Float(), Size: pair[1].Float()})
	}
	return levels, nil
}

// FetchCandles 拉取 /klines
func (c *RESTClient) FetchCandles(ctx context.Context, symbol, interval string) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)

	body, err := c.get(ctx, "/klines", q)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, errors.Wrap(ErrMalformed, "klines response is not an array")
	}

	items := res.Array()
	candles := make([]model.Candle, 0, len(items))
	for _, item := range items {
		ts := item.Get("time")
		if !item.IsObject() || !ts.Exists() || !item.Get("close").Exists() {
			return nil, errors.Wrap(ErrMalformed, "kline missing time/close")
		}
		candles = append(candles, model.Candle{
			Time:   toSeconds(ts.Int()),
			Open:   item.Get("open").Float(),
			High:   item.Get("high").Float(),
			Low:    item.Get("low").Float(),
			Close:  item.Get("close").Float(),
			Volume: item.Get("volume").Float(),
		})
	}

	if err := model.ValidateSeries(candles); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return candles, nil
}

// toSeconds 兼容毫秒时间戳，渲染端统一使用秒
func toSeconds(ts int64) int64 {
	if ts > 1e12 {
		return ts / 1000
	}
	return ts
}

// FetchTrades 拉取 /history，跳过无法识别方向的记录，并保证按时间升序
func (c *RESTClient) FetchTrades(ctx context.Context, symbol string) ([]model.TradeRecord, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.get(ctx, "/history", q)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, errors.Wrap(ErrMalformed, "history response is not an array")
	}

	items := res.Array()
	trades := make([]model.TradeRecord, 0, len(items))
	for _, item := range items {
		side, ok := model.ParseSide(item.Get("side").String())
		if !ok || !item.Get("timestamp").Exists() {
			c.logger.Debug("Dropping malformed trade record", zap.String("raw", item.Raw))
			continue
		}

		pnl := item.Get("realized_pnl")
		if !pnl.Exists() {
			pnl = item.Get("pnl")
		}

		sym := item.Get("symbol").String()
		if sym == "" {
			sym = symbol
		}

		trades = append(trades, model.TradeRecord{
			Timestamp:   item.Get("timestamp").Int(),
			Symbol:      service.NormalizeSymbol(sym),
			Side:        side,
			Price:       item.Get("price").Float(),
			Amount:      item.Get("amount").Float(),
			RealizedPnL: pnl.Float(),
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp < trades[j].Timestamp
	})
	return trades, nil
}
