package indicator

import (
	"time"
	_ "time/tzdata"

	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
)

// CloseAligner maps a bar open instant to the instant the bar closes.
type CloseAligner interface {
	CloseTime(open time.Time) time.Time
}

// FixedDuration closes every bar one timeframe after it opens. Crypto venues
// trade around the clock so this is exact for them.
type FixedDuration struct {
	Timeframe marketdata.Timeframe
}

func (f FixedDuration) CloseTime(open time.Time) time.Time {
	return open.Add(f.Timeframe.Duration()).UTC()
}

// EquitiesSession closes bars at the exchange session close. Daily and longer
// bars close at the session close of their last calendar day. Intraday bars
// close at open+timeframe, but never after the session close of their day.
type EquitiesSession struct {
	Timeframe    marketdata.Timeframe
	Location     *time.Location
	SessionClose time.Duration
}

// NewEquitiesSession is the US equities session: 16:00 America/New_York.
func NewEquitiesSession(tf marketdata.Timeframe) EquitiesSession {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	return EquitiesSession{
		Timeframe:    tf,
		Location:     loc,
		SessionClose: 16 * time.Hour,
	}
}

func (e EquitiesSession) CloseTime(open time.Time) time.Time {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	if !e.Timeframe.IsIntraday() {
		last := open.In(loc).Add(e.Timeframe.Duration() - 24*time.Hour)

		return e.sessionClose(last, loc)
	}

	end := open.Add(e.Timeframe.Duration())
	if closeAt := e.sessionClose(open.In(loc), loc); end.After(closeAt) && open.Before(closeAt) {
		end = closeAt
	}

	return end.UTC()
}

func (e EquitiesSession) sessionClose(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(e.SessionClose).UTC()
}

// AlignerFor picks the close rule of a venue.
func AlignerFor(venue marketdata.Venue, tf marketdata.Timeframe) CloseAligner {
	if venue == marketdata.VenueEquities {
		return NewEquitiesSession(tf)
	}

	return FixedDuration{Timeframe: tf}
}
