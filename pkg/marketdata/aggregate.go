package marketdata

import (
	"time"

	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Aggregate folds base rows into bars of the target timeframe. Intraday targets
// bucket by wall-clock alignment (open time truncated to the target length);
// daily and longer targets group every n consecutive base bars, since sessions
// skip weekends and holidays. Partial trailing buckets are kept so the newest
// forming bar stays visible to the live driver.
func Aggregate(rows []types.MarketData, base Timeframe, target Timeframe) []types.MarketData {
	if len(rows) == 0 || base.Duration() <= 0 || target.Duration() <= base.Duration() {
		return rows
	}

	if target.IsIntraday() {
		return aggregateByBucket(rows, target.Duration())
	}

	n := int(target.Duration() / base.Duration())
	if n <= 1 {
		return rows
	}

	out := make([]types.MarketData, 0, len(rows)/n+1)
	for start := 0; start < len(rows); start += n {
		end := min(start+n, len(rows))
		out = append(out, fold(rows[start:end], rows[start].Time))
	}

	return out
}

func aggregateByBucket(rows []types.MarketData, length time.Duration) []types.MarketData {
	out := make([]types.MarketData, 0, len(rows))

	start := 0
	bucket := rows[0].Time.Truncate(length)

	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && rows[i].Time.Truncate(length).Equal(bucket) {
			continue
		}

		out = append(out, fold(rows[start:i], bucket))

		if i < len(rows) {
			start = i
			bucket = rows[i].Time.Truncate(length)
		}
	}

	return out
}

func fold(group []types.MarketData, at time.Time) types.MarketData {
	bar := types.MarketData{
		Id:     "",
		Symbol: group[0].Symbol,
		Time:   at,
		Open:   group[0].Open,
		High:   group[0].High,
		Low:    group[0].Low,
		Close:  group[len(group)-1].Close,
		Volume: 0,
	}

	for _, row := range group {
		bar.High = max(bar.High, row.High)
		bar.Low = min(bar.Low, row.Low)
		bar.Volume += row.Volume
	}

	return bar
}
