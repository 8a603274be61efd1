package marketdata

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Venue tells the indicator pipeline how bars close. Equities bars close at
// the exchange session close rather than one timeframe after open.
type Venue string

const (
	VenueCrypto   Venue = "crypto"
	VenueEquities Venue = "equities"
)

// Backend supplies OHLCV rows for one symbol and timeframe. Rows are sorted by
// open time ascending and carry the open instant in Time.
type Backend interface {
	// FetchRange returns up to limit bars starting at sinceMs (unix milliseconds).
	FetchRange(ctx context.Context, symbol string, tf Timeframe, sinceMs int64, limit int) ([]types.MarketData, error)
	// FetchRecent returns the most recent limit bars, including a bar that may still be forming.
	FetchRecent(ctx context.Context, symbol string, tf Timeframe, limit int) ([]types.MarketData, error)
	// Venue reports the session semantics of the returned bars.
	Venue() Venue
}

// CalendarSpan converts a bar count into a calendar window wide enough to hold
// that many bars. Crypto trades around the clock. Equities intraday bars only
// exist for 6.5 of 24 hours on 5 of 7 days, and daily bars skip weekends and holidays.
func CalendarSpan(venue Venue, tf Timeframe, bars int) time.Duration {
	span := time.Duration(bars) * tf.Duration()

	if venue != VenueEquities {
		return span
	}

	switch {
	case tf.IsIntraday():
		return span * 5
	case tf.Duration() < 7*24*time.Hour:
		return span*16/10 + 7*24*time.Hour
	default:
		return span + 7*24*time.Hour
	}
}
