package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one row of the trade log.
type Trade struct {
	Time  time.Time `json:"time" csv:"time"`
	Side  Side      `json:"side" csv:"side"`
	Price float64   `json:"px" csv:"px"`
	Qty   float64   `json:"qty" csv:"qty"`
	// Fee is the round-trip fee charged when the position is closed. Buys carry 0.
	Fee float64 `json:"fee" csv:"fee"`
	// PnL is the realized profit net of fees. Only set on sells.
	PnL  float64 `json:"pnl" csv:"pnl"`
	Note string  `json:"note" csv:"note"`
}

// Position is the single open long position. Size 0 means flat.
type Position struct {
	Size     float64 `json:"size"`
	Entry    float64 `json:"entry"`
	Stop     float64 `json:"stop"`
	EntryATR float64 `json:"entryAtr"`
	Peak     float64 `json:"peak"`
	HoldBars int     `json:"holdBars"`
	Adds     int     `json:"adds"`
	// RiskBudget is equity x risk% at the time of the first entry.
	RiskBudget  float64   `json:"riskBudget"`
	InitialSize float64   `json:"initialSize"`
	EntryTime   time.Time `json:"entryTime"`
}

// IsOpen reports whether the position holds any size.
func (p Position) IsOpen() bool {
	return p.Size > 0
}

// OpenRisk is the loss taken if the stop fills now: (entry - stop) x size, floored at 0.
func (p Position) OpenRisk() float64 {
	if !p.IsOpen() {
		return 0
	}

	dist := decimal.NewFromFloat(p.Entry).Sub(decimal.NewFromFloat(p.Stop))
	if dist.IsNegative() {
		return 0
	}

	return dist.Mul(decimal.NewFromFloat(p.Size)).InexactFloat64()
}

// UnrealizedPnL marks the position at price, before fees.
func (p Position) UnrealizedPnL(price float64) float64 {
	if !p.IsOpen() {
		return 0
	}

	return decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(p.Entry)).
		Mul(decimal.NewFromFloat(p.Size)).
		InexactFloat64()
}

// EquityPoint is one row of the equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time" csv:"time"`
	Equity float64   `json:"equity" csv:"equity"`
}

// EntryExecution captures the full sizing rationale of an entry.
// Price is the slipped fill and RawClose the bar close it was slipped from.
type EntryExecution struct {
	Time                time.Time `csv:"time"`
	Symbol              string    `csv:"symbol"`
	Timeframe           string    `csv:"timeframe"`
	Side                Side      `csv:"side"`
	Price               float64   `csv:"price"`
	RawClose            float64   `csv:"rawClose"`
	Qty                 float64   `csv:"qty"`
	Stop                float64   `csv:"stop"`
	EquityBefore        float64   `csv:"equityBefore"`
	RiskPct             float64   `csv:"riskPct"`
	ATR                 float64   `csv:"atr"`
	EntryATR            float64   `csv:"entryAtr"`
	ATRPeriod           int       `csv:"atrPeriod"`
	StopAtrMult         float64   `csv:"stopAtrMult"`
	TrailAtrMult        float64   `csv:"trailAtrMult"`
	TrailingMode        string    `csv:"trailingMode"`
	TrailStartR         float64   `csv:"trailStartR"`
	HTFTimeframe        string    `csv:"htfTimeframe"`
	HTFMode             string    `csv:"htfMode"`
	ReentryATRAfterWin  float64   `csv:"reentryAtrAfterWin"`
	ReentryATRAfterLoss float64   `csv:"reentryAtrAfterLoss"`
	RSI                 float64   `csv:"rsi"`
	RSILong             float64   `csv:"rsiLong"`
	RSILongSoft         float64   `csv:"rsiLongSoft"`
	Strategy            string    `csv:"strategy"`
	Reason              string    `csv:"reason"`
}
