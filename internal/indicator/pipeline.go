package indicator

import (
	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Periods are the lookbacks of the four series.
type Periods struct {
	EMAFast int
	EMASlow int
	RSI     int
	ATR     int
}

// Warmup is the index from which every series is defined, plus one.
func (p Periods) Warmup() int {
	return max(p.EMAFast, p.EMASlow, p.RSI, p.ATR)
}

// Pipeline annotates rows with indicators and moves timestamps to bar close.
type Pipeline struct {
	periods Periods
}

func NewPipeline(periods Periods) *Pipeline {
	return &Pipeline{periods: periods}
}

func (p *Pipeline) Periods() Periods {
	return p.periods
}

// Compute returns one bar per row, in order. An empty input yields an empty output.
func (p *Pipeline) Compute(rows []types.MarketData, aligner CloseAligner) []types.Bar {
	bars := make([]types.Bar, len(rows))
	if len(rows) == 0 {
		return bars
	}

	highs := make([]float64, len(rows))
	lows := make([]float64, len(rows))
	closes := make([]float64, len(rows))

	for i, row := range rows {
		highs[i] = row.High
		lows[i] = row.Low
		closes[i] = row.Close
	}

	emaFast := EMA(closes, p.periods.EMAFast)
	emaSlow := EMA(closes, p.periods.EMASlow)
	rsi := RSI(closes, p.periods.RSI)
	atr := ATR(highs, lows, closes, p.periods.ATR)

	for i, row := range rows {
		closeTime := row.Time.UTC()
		if aligner != nil {
			closeTime = aligner.CloseTime(row.Time)
		}

		bars[i] = types.Bar{
			Time:     closeTime,
			OpenTime: row.Time.UTC(),
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.Volume,
			EMAFast:  emaFast[i],
			EMASlow:  emaSlow[i],
			RSI:      rsi[i],
			ATR:      atr[i],
		}
	}

	return bars
}

// Highs extracts the high of every bar for DonchianHigh.
func Highs(bars []types.Bar) []float64 {
	highs := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
	}

	return highs
}
