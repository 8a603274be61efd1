package guard

import (
	"time"
)

// Reason names the guard that blocked an entry.
type Reason string

const (
	ReasonATRNotReady     Reason = "atr-not-ready"
	ReasonSignal          Reason = "signal"
	ReasonHTFVeto         Reason = "htf-veto"
	ReasonOutsideSession  Reason = "outside-session"
	ReasonCooldown        Reason = "cooldown"
	ReasonMinBarsBetween  Reason = "min-bars-between"
	ReasonMaxTradesDay    Reason = "max-trades-day"
	ReasonMaxConsecLosses Reason = "max-consec-losses"
	ReasonMinHold         Reason = "min-hold"
	ReasonDailyLossLimit  Reason = "daily-loss-limit"
	ReasonReentryTooClose Reason = "reentry-too-close"
)

// Reasons lists every guard in evaluation order.
var Reasons = []Reason{
	ReasonATRNotReady,
	ReasonSignal,
	ReasonHTFVeto,
	ReasonOutsideSession,
	ReasonCooldown,
	ReasonMinBarsBetween,
	ReasonMaxTradesDay,
	ReasonMaxConsecLosses,
	ReasonMinHold,
	ReasonDailyLossLimit,
	ReasonReentryTooClose,
}

// State is the persisted per-run counter set.
type State struct {
	BarsSinceEntry     int     `json:"barsSinceEntry"`
	CooldownLeft       int     `json:"cooldownLeft"`
	ConsecutiveLosses  int     `json:"consecutiveLosses"`
	TradesToday        int     `json:"tradesToday"`
	DayStamp           string  `json:"dayStamp"`
	DayStartEquity     float64 `json:"dayStartEquity"`
	HasLastExit        bool    `json:"hasLastExit"`
	LastExitPrice      float64 `json:"lastExitPrice"`
	LastExitProfitable bool    `json:"lastExitProfitable"`
	LastExitATR        float64 `json:"lastExitAtr"`
	// Blocked counts blocked evaluations per reason. It is diagnostic only.
	Blocked map[Reason]int `json:"blocked"`
}

// NewState returns counters for a fresh run. The spacing guard starts satisfied.
func NewState(minBarsBetween int) State {
	return State{
		BarsSinceEntry:     minBarsBetween,
		CooldownLeft:       0,
		ConsecutiveLosses:  0,
		TradesToday:        0,
		DayStamp:           "",
		DayStartEquity:     0,
		HasLastExit:        false,
		LastExitPrice:      0,
		LastExitProfitable: false,
		LastExitATR:        0,
		Blocked:            map[Reason]int{},
	}
}

// DayStamp is the calendar day of t in loc.
func DayStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	return t.In(loc).Format(time.DateOnly)
}
