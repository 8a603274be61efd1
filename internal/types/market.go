package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// MarketData is a raw OHLCV bar as stored in parquet files and returned by
// the backends. Time is the bar's open instant.
type MarketData struct {
	Id     string    `csv:"id"`
	Symbol string    `csv:"symbol"`
	Time   time.Time `csv:"time"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}

// Bar is a bar annotated by the indicator pipeline. Time is the close instant
// of the bar so that no consumer can see a value before the bar has finished.
// Indicator values are None during warm-up.
type Bar struct {
	Time     time.Time
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64

	EMAFast optional.Option[float64]
	EMASlow optional.Option[float64]
	RSI     optional.Option[float64]
	ATR     optional.Option[float64]
}

// Float unpacks an optional indicator value.
func Float(o optional.Option[float64]) (float64, bool) {
	if o.IsNone() {
		return 0, false
	}

	return o.Unwrap(), true
}

// ATRValue returns the bar ATR when it is defined and positive.
func (b Bar) ATRValue() (float64, bool) {
	atr, ok := Float(b.ATR)
	if !ok || atr <= 0 {
		return 0, false
	}

	return atr, true
}
