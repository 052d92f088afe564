// Package chart 把同步后的数据投影成渲染端直接可用的图表序列 (成交标注、成交量柱)
package chart

import (
	"strings"
	"time"

	"crypton-sync/internal/model"

	"go.uber.org/zap"
)

// Markers 把成交记录一对一投影为图表标注，保持顺序
// 时间从毫秒换算为秒 (渲染端的时间单位)
func Markers(trades []model.TradeRecord, logger *zap.Logger) []model.Marker {
	markers := make([]model.Marker, 0, len(trades))
	for _, t := range trades {
		m, ok := markerFor(t)
		if !ok {
			logger.Debug("Skipping trade with unknown side",
				zap.String("Symbol", t.Symbol), zap.String("Side", string(t.Side)))
			continue
		}
		markers = append(markers, m)
	}
	return markers
}

func markerFor(t model.TradeRecord) (model.Marker, bool) {
	side, ok := model.ParseSide(string(t.Side))
	if !ok {
		return model.Marker{}, false
	}

	m := model.Marker{
		Time: t.Timestamp / 1000,
		Text: strings.ToUpper(side.String()),
	}
	if side == model.SideBuy {
		m.Position = model.PositionBelowBar
		m.Color = model.ColorBullish
		m.Shape = model.ShapeArrowUp
	} else {
		m.Position = model.PositionAboveBar
		m.Color = model.ColorBearish
		m.Shape = model.ShapeArrowDown
	}
	return m, true
}

// Placeholder 在成交记录为空时生成一个一小时前的演示标注，仅用于展示非空状态
func Placeholder(now time.Time) []model.Marker {
	return []model.Marker{{
		Time:     now.Add(-time.Hour).Unix(),
		Position: model.PositionBelowBar,
		Color:    model.ColorBullish,
		Shape:    model.ShapeArrowUp,
		Text:     "BUY",
	}}
}
