package data

import (
	"context"
	"testing"
	"time"

	"crypton-sync/internal/model"

	"github.com/peterldowns/testy/assert"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

// hangingBackend 直到 ctx 结束才返回
type hangingBackend struct{ fakeBackend }

func (b *hangingBackend) FetchAccount(ctx context.Context) (*model.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *hangingBackend) FetchCandles(ctx context.Context, symbol, interval string) ([]model.Candle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPollerAppliesRequestTimeout(t *testing.T) {
	backend := &hangingBackend{fakeBackend: *newFakeBackend()}
	p := NewPoller(backend, PollerConfig{RequestTimeout: 50 * time.Millisecond}, zaptest.NewLogger(t))

	out := make(chan PullResult, 3)
	key := model.SeriesKey{Symbol: "BTC/USDT", Interval: "15m"}
	p.Cycle(context.Background(), key, out)
	p.Wait()
	close(out)

	got := make(map[PullKind]PullResult)
	for res := range out {
		assert.Equal(t, key, res.Key)
		got[res.Kind] = res
	}
	assert.Equal(t, 3, len(got))
	assert.True(t, errors.Is(got[PullAccount].Err, context.DeadlineExceeded))
	assert.True(t, errors.Is(got[PullCandles].Err, context.DeadlineExceeded))
	// Ensure a slow sibling does not hold back the others.
	assert.NoError(t, got[PullTrades].Err)
	assert.Equal(t, 1, len(got[PullTrades].Trades))
}

func TestPollerDropsResultsAfterCancel(t *testing.T) {
	backend := &hangingBackend{fakeBackend: *newFakeBackend()}
	p := NewPoller(backend, PollerConfig{RequestTimeout: time.Minute}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PullResult)
	p.Initial(ctx, model.SeriesKey{Symbol: "BTC/USDT", Interval: "15m"}, out)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller goroutines leaked after cancel")
	}
}

func TestPullKindString(t *testing.T) {
	assert.Equal(t, "account", PullAccount.String())
	assert.Equal(t, "orderbook", PullOrderBook.String())
	assert.Equal(t, "unknown", PullKind(0).String())
}
