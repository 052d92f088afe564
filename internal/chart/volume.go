package chart

import "crypton-sync/internal/model"

// 成交量柱使用半透明的涨跌色，叠加在价格图底部
const (
	VolumeUpColor   = "rgba(14, 203, 129, 0.3)"
	VolumeDownColor = "rgba(246, 70, 93, 0.3)"
)

// VolumeBars 把 K 线序列投影为成交量柱，收盘不低于开盘视为上涨
func VolumeBars(candles []model.Candle) []model.VolumeBar {
	bars := make([]model.VolumeBar, len(candles))
	for i, c := range candles {
		color := VolumeDownColor
		if c.Close >= c.Open {
			color = VolumeUpColor
		}
		bars[i] = model.VolumeBar{Time: c.Time, Value: c.Volume, Color: color}
	}
	return bars
}
