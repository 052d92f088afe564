package chart

import (
	"testing"
	"time"

	"crypton-sync/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"go.uber.org/zap"
)

func TestMarkerScenario(t *testing.T) {
	trades := []model.TradeRecord{{Timestamp: 1000, Symbol: "BTC/USDT", Side: model.SideBuy, Price: 10, Amount: 1}}

	got := Markers(trades, zap.NewNop())
	want := []model.Marker{{
		Time:     1,
		Position: model.PositionBelowBar,
		Color:    model.ColorBullish,
		Shape:    model.ShapeArrowUp,
		Text:     "BUY",
	}}
	if !cmp.Equal(want, got) {
		t.Fatalf("unexpected markers: %s", cmp.Diff(want, got))
	}
}

func TestMarkersPreserveLengthAndOrder(t *testing.T) {
	trades := []model.TradeRecord{
		{Timestamp: 1_700_000_000_000, Side: "BUY"},
		{Timestamp: 1_700_000_060_500, Side: model.SideSell},
		{Timestamp: 1_700_000_120_999, Side: "Sell"},
		{Timestamp: 1_700_000_180_000, Side: model.SideBuy},
	}

	markers := Markers(trades, zap.NewNop())
	assert.Equal(t, len(trades), len(markers))

	for i := range trades {
		assert.Equal(t, trades[i].Timestamp/1000, markers[i].Time)
	}

	sell := markers[1]
	assert.Equal(t, model.PositionAboveBar, sell.Position)
	assert.Equal(t, model.ColorBearish, sell.Color)
	assert.Equal(t, model.ShapeArrowDown, sell.Shape)
	assert.Equal(t, "SELL", sell.Text)

	// Ensure side matching is case-insensitive.
	assert.Equal(t, "BUY", markers[0].Text)
	assert.Equal(t, "SELL", markers[2].Text)
}

func TestMarkersSkipUnknownSide(t *testing.T) {
	trades := []model.TradeRecord{
		{Timestamp: 1000, Side: model.SideBuy},
		{Timestamp: 2000, Side: "hold"},
	}
	assert.Equal(t, 1, len(Markers(trades, zap.NewNop())))
	assert.Equal(t, 0, len(Markers(nil, zap.NewNop())))
}

func TestPlaceholder(t *testing.T) {
	now := time.Unix(10_000, 0)
	markers := Placeholder(now)

	assert.Equal(t, 1, len(markers))
	assert.Equal(t, int64(10_000-3600), markers[0].Time)
	assert.Equal(t, "BUY", markers[0].Text)
}

func TestVolumeBars(t *testing.T) {
	candles := []model.Candle{
		{Time: 0, Open: 10, Close: 11, Volume: 100},
		{Time: 60, Open: 11, Close: 10, Volume: 50},
		{Time: 120, Open: 10, Close: 10, Volume: 0},
	}

	got := VolumeBars(candles)
	want := []model.VolumeBar{
		{Time: 0, Value: 100, Color: VolumeUpColor},
		{Time: 60, Value: 50, Color: VolumeDownColor},
		{Time: 120, Value: 0, Color: VolumeUpColor},
	}
	if !cmp.Equal(want, got) {
		t.Fatalf("unexpected volume bars: %s", cmp.Diff(want, got))
	}
}
