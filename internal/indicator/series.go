// Package indicator turns raw OHLCV rows into bars annotated with EMA, RSI and
// ATR series. Every series is index-aligned with its input and holds None for
// indices before its lookback window fills.
package indicator

import (
	"math"

	"github.com/moznion/go-optional"
)

// Series is an indicator output aligned with its input.
type Series = []optional.Option[float64]

func emptySeries(n int) Series {
	out := make(Series, n)
	for i := range out {
		out[i] = optional.None[float64]()
	}

	return out
}

// EMA is the exponential moving average of values. It is seeded with the simple
// average of the first period values at index period-1, then k = 2/(period+1).
func EMA(values []float64, period int) Series {
	out := emptySeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := 0.0
	for i := range period {
		seed += values[i]
	}

	ema := seed / float64(period)
	out[period-1] = optional.Some(ema)
	k := 2 / float64(period+1)

	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = optional.Some(ema)
	}

	return out
}

// RSI is Wilder's relative strength index of closes. The change at index 0 is
// taken as 0 so the first value lands at index period-1.
func RSI(closes []float64, period int) Series {
	out := emptySeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))

	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := range period {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period-1] = optional.Some(rsiValue(avgGain, avgLoss))

	// Wilder's smoothing
	for i := period; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = optional.Some(rsiValue(avgGain, avgLoss))
	}

	return out
}

func rsiValue(avgGain float64, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}

		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}

// ATR is Wilder's average true range. The true range at index 0 is high-low;
// the seed is the mean of the first period true ranges.
func ATR(highs []float64, lows []float64, closes []float64, period int) Series {
	n := min(len(highs), len(lows), len(closes))
	out := emptySeries(n)

	if period <= 0 || n < period {
		return out
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]

	for i := 1; i < n; i++ {
		tr[i] = max(highs[i]-lows[i], math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1]))
	}

	atr := 0.0
	for i := range period {
		atr += tr[i]
	}

	atr /= float64(period)
	out[period-1] = optional.Some(atr)

	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = optional.Some(atr)
	}

	return out
}

// DonchianHigh is the highest high of the n bars before index end. It reports
// false when fewer than n bars precede end.
func DonchianHigh(highs []float64, end int, n int) (float64, bool) {
	if n <= 0 || end < n || end > len(highs) {
		return 0, false
	}

	highest := highs[end-n]
	for _, h := range highs[end-n+1 : end] {
		highest = max(highest, h)
	}

	return highest, true
}
