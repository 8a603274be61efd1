// Package position owns the single long position: sizing, simulated fills,
// the ratcheting stop, strategy exits and pyramid adds.
package position

import (
	"math"
	"math/rand/v2"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/indicator"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/internal/utils"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/shopspring/decimal"
)

// Exit notes written to the trade log.
const (
	NoteEnter         = "enter"
	NotePyramid       = "pyramid"
	NoteStopHit       = "stop-hit"
	NoteMeanReversion = "mr-exit"
	NoteMomentum      = "momentum-exit"
	NoteEndOfData     = "end-of-data"
)

const (
	fallbackStopPct    = 0.01
	bpsDenominator     = 10_000
	percentDenominator = 100
)

// MomentumRule selects how the unrealized R-multiple is measured.
type MomentumRule int

const (
	// MomentumEntryATR divides the move by stopAtrMult x entry ATR.
	MomentumEntryATR MomentumRule = iota
	// MomentumRiskBudget divides the unrealized P&L by the risk budget.
	MomentumRiskBudget
)

// State is the persisted part of the broker.
type State struct {
	Equity   float64        `json:"equity"`
	Position types.Position `json:"position"`
	Trades   []types.Trade  `json:"trades"`
}

// Entry describes a fill that opened the position.
type Entry struct {
	Trade        types.Trade
	Execution    types.EntryExecution
	StopDistance float64
	QtyRisk      float64
	QtyCap       float64
	Capped       bool
}

// Exit is a pending exit found by one of the exit checks.
type Exit struct {
	Price float64
	Note  string
}

// PyramidResult describes an accepted add, or why it was rejected.
type PyramidResult struct {
	Trade      types.Trade
	Level      float64
	R          float64
	OldStop    float64
	NewStop    float64
	StopRaised bool
	Reason     string
}

// Broker simulates fills for one instrument.
type Broker struct {
	cfg        config.RunConfig
	commission CommissionFee
	rng        *rand.Rand
	equity     float64
	position   types.Position
	trades     []types.Trade
}

// NewBroker creates a flat broker holding the initial equity. Slippage draws
// come from a source seeded with cfg.Seed so backtests are reproducible.
func NewBroker(cfg config.RunConfig) *Broker {
	seed := uint64(cfg.Seed) //nolint:gosec // any bit pattern is a valid seed

	return &Broker{
		cfg:        cfg,
		commission: GetCommissionFeeHandler(cfg.FeeRoundTripPct),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // simulation only
		equity:     cfg.InitialEquity,
		position:   types.Position{},
		trades:     []types.Trade{},
	}
}

func (b *Broker) Equity() float64 {
	return b.equity
}

// Position returns a copy of the open position. Size is 0 when flat.
func (b *Broker) Position() types.Position {
	return b.position
}

func (b *Broker) IsOpen() bool {
	return b.position.IsOpen()
}

// Trades returns a copy of the trade log.
func (b *Broker) Trades() []types.Trade {
	trades := make([]types.Trade, len(b.trades))
	copy(trades, b.trades)

	return trades
}

// MarkToMarket is realized equity plus the unrealized P&L at price.
func (b *Broker) MarkToMarket(price float64) float64 {
	return b.equity + b.position.UnrealizedPnL(price)
}

// Snapshot returns the state to persist.
func (b *Broker) Snapshot() State {
	return State{Equity: b.equity, Position: b.position, Trades: b.Trades()}
}

// Restore replaces the broker state with a snapshot.
func (b *Broker) Restore(state State) {
	b.equity = state.Equity
	b.position = state.Position
	b.trades = make([]types.Trade, len(state.Trades))
	copy(b.trades, state.Trades)
}

// OnBar ages the open position by one bar.
func (b *Broker) OnBar() {
	if b.position.IsOpen() {
		b.position.HoldBars++
	}
}

// Enter opens a position at the close of bar. Nothing is mutated when an error
// is returned.
func (b *Broker) Enter(bar types.Bar, reason string) (Entry, error) {
	if b.position.IsOpen() {
		return Entry{}, errors.New(errors.ErrCodePositionExists, "a position is already open")
	}

	atr, atrOK := bar.ATRValue()

	stopDistance := bar.Close * fallbackStopPct
	if atrOK {
		stopDistance = atr * b.cfg.StopATRMult
	}

	if !utils.IsFinitePositive(stopDistance) {
		return Entry{}, errors.Newf(errors.ErrCodeInvariantViolation, "stop distance must be positive, got %v", stopDistance)
	}

	riskBudget := decimal.NewFromFloat(b.equity).
		Mul(decimal.NewFromFloat(b.cfg.RiskPct)).
		Div(decimal.NewFromInt(percentDenominator)).
		InexactFloat64()

	qtyRisk := utils.CalculateRiskQuantity(riskBudget, stopDistance)
	qtyCap := utils.CalculateMaxQuantity(b.maxNotional(), bar.Close)
	qty := utils.RoundToDecimalPrecision(min(qtyRisk, qtyCap), utils.QuantityDecimals)

	if !utils.IsFinitePositive(qty) {
		return Entry{}, errors.Newf(errors.ErrCodeInvariantViolation, "entry size must be positive, got %v", qty)
	}

	fill := b.slip(bar.Close)
	stop := bar.Close - stopDistance

	b.position = types.Position{
		Size:        qty,
		Entry:       fill,
		Stop:        stop,
		EntryATR:    atr,
		Peak:        bar.Close,
		HoldBars:    0,
		Adds:        0,
		RiskBudget:  riskBudget,
		InitialSize: qty,
		EntryTime:   bar.Time,
	}

	trade := types.Trade{Time: bar.Time, Side: types.SideBuy, Price: fill, Qty: qty, Fee: 0, PnL: 0, Note: NoteEnter}
	b.trades = append(b.trades, trade)

	rsi, _ := types.Float(bar.RSI)

	return Entry{
		Trade: trade,
		Execution: types.EntryExecution{
			Time:                bar.Time,
			Symbol:              b.cfg.Symbol,
			Timeframe:           b.cfg.Timeframe,
			Side:                types.SideBuy,
			Price:               fill,
			RawClose:            bar.Close,
			Qty:                 qty,
			Stop:                stop,
			EquityBefore:        b.equity,
			RiskPct:             b.cfg.RiskPct,
			ATR:                 atr,
			EntryATR:            b.position.EntryATR,
			ATRPeriod:           b.cfg.Indicators.ATRLen,
			StopAtrMult:         b.cfg.StopATRMult,
			TrailAtrMult:        b.cfg.Trailing.ATRMult,
			TrailingMode:        string(b.cfg.Trailing.Mode),
			TrailStartR:         b.cfg.Trailing.ActivateR,
			HTFTimeframe:        b.cfg.HTF.Timeframe,
			HTFMode:             string(b.cfg.HTF.Mode),
			ReentryATRAfterWin:  b.cfg.Guards.ReentryATRAfterWin,
			ReentryATRAfterLoss: b.cfg.Guards.ReentryATRAfterLoss,
			RSI:                 rsi,
			RSILong:             b.cfg.Trend.RSILong,
			RSILongSoft:         b.cfg.Trend.RSILongSoft,
			Strategy:            string(b.cfg.Strategy),
			Reason:              reason,
		},
		StopDistance: stopDistance,
		QtyRisk:      qtyRisk,
		QtyCap:       qtyCap,
		Capped:       qtyCap < qtyRisk,
	}, nil
}

// CheckStop reports a stop fill when the bar traded through the stop. The fill
// is the stop price moved against the position by the slippage band.
func (b *Broker) CheckStop(bar types.Bar) (Exit, bool) {
	if !b.position.IsOpen() || bar.Low > b.position.Stop {
		return Exit{}, false
	}

	adverse := b.cfg.SlippageBps / bpsDenominator * b.rng.Float64()

	return Exit{Price: b.position.Stop * (1 - adverse), Note: NoteStopHit}, true
}

// Trail moves the stop for a closed bar. The stop never moves down.
func (b *Broker) Trail(bar types.Bar) (bool, float64, float64) {
	old := b.position.Stop
	if !b.position.IsOpen() {
		return false, old, old
	}

	trailing := b.cfg.Trailing
	pos := &b.position
	atr, atrOK := bar.ATRValue()

	var candidate float64

	switch trailing.Mode {
	case config.TrailingEntryATR:
		refATR := pos.EntryATR
		if refATR <= 0 && atrOK {
			refATR = atr
		}

		distance := trailing.ATRMult * refATR
		if distance <= 0 || (bar.Close-pos.Entry)/distance < trailing.ActivateR {
			return false, old, old
		}

		pos.Peak = max(pos.Peak, bar.Close)
		candidate = pos.Peak - distance
	case config.TrailingPercent:
		pos.Peak = max(pos.Peak, bar.Close)
		candidate = pos.Peak - trailing.Percent/percentDenominator*pos.Entry
	default:
		pos.Peak = max(pos.Peak, bar.Close)
		if !atrOK {
			atr = pos.EntryATR
		}

		if atr <= 0 {
			return false, old, old
		}

		candidate = pos.Peak - trailing.ATRMult*atr
	}

	if candidate <= old || math.IsNaN(candidate) {
		return false, old, old
	}

	pos.Stop = candidate

	return true, old, candidate
}

// MeanReversionExit reports whether RSI has recovered to the exit threshold.
func (b *Broker) MeanReversionExit(bar types.Bar) bool {
	if !b.position.IsOpen() || b.cfg.Strategy != config.StrategyMeanReversion {
		return false
	}

	rsi, ok := types.Float(bar.RSI)

	return ok && rsi >= b.cfg.MeanReversion.RSIExit
}

// MomentumExit applies the configured momentum rule and returns the R-multiple it measured.
func (b *Broker) MomentumExit(rule MomentumRule, bar types.Bar) (bool, float64) {
	if rule == MomentumRiskBudget {
		return b.MomentumExitRisk(bar)
	}

	return b.MomentumExitATR(bar)
}

// MomentumExitATR measures R as (close - entry) / (entry ATR x stopAtrMult).
func (b *Broker) MomentumExitATR(bar types.Bar) (bool, float64) {
	if !b.position.IsOpen() || !b.cfg.MomentumExit.Enabled {
		return false, 0
	}

	refATR := b.position.EntryATR
	if refATR <= 0 {
		refATR, _ = bar.ATRValue()
	}

	distance := b.cfg.StopATRMult * refATR
	if distance <= 0 {
		return false, 0
	}

	r := (bar.Close - b.position.Entry) / distance

	return b.momentumHit(bar, r), r
}

// MomentumExitRisk measures R as unrealized P&L over the risk budget.
func (b *Broker) MomentumExitRisk(bar types.Bar) (bool, float64) {
	if !b.position.IsOpen() || !b.cfg.MomentumExit.Enabled || b.position.RiskBudget <= 0 {
		return false, 0
	}

	r := b.position.UnrealizedPnL(bar.Close) / b.position.RiskBudget

	return b.momentumHit(bar, r), r
}

func (b *Broker) momentumHit(bar types.Bar, r float64) bool {
	if r < b.cfg.MomentumExit.RMultiple {
		return false
	}

	if !b.cfg.MomentumExit.RequireProfit {
		return true
	}

	return b.netPnL(bar.Close) > 0
}

// MarketExit closes at the bar close with slippage.
func (b *Broker) MarketExit(bar types.Bar, note string) (types.Trade, error) {
	if !b.position.IsOpen() {
		return types.Trade{}, errors.New(errors.ErrCodeNoOpenPosition, "no open position to close")
	}

	return b.Close(bar, b.slip(bar.Close), note)
}

// Close realizes the position at price. The round-trip fee is charged on the
// entry notional and the net P&L is booked to equity.
func (b *Broker) Close(bar types.Bar, price float64, note string) (types.Trade, error) {
	if !b.position.IsOpen() {
		return types.Trade{}, errors.New(errors.ErrCodeNoOpenPosition, "no open position to close")
	}

	size := b.position.Size
	fee := b.fee()
	pnl := b.netPnL(price)

	trade := types.Trade{Time: bar.Time, Side: types.SideSell, Price: price, Qty: size, Fee: fee, PnL: pnl, Note: note}

	b.equity = decimal.NewFromFloat(b.equity).Add(decimal.NewFromFloat(pnl)).InexactFloat64()
	b.position = types.Position{}
	b.trades = append(b.trades, trade)

	return trade, nil
}

// TryPyramid adds to a winning position when bars[i] closes above the Donchian
// breakout level. When the add would lift open risk over the risk budget the
// stop is raised so the total stays at the budget; an add that needs a stop at
// or above the close is rejected. Nothing is mutated on rejection.
func (b *Broker) TryPyramid(bars []types.Bar, i int) (PyramidResult, bool) {
	pyramid := b.cfg.Pyramid
	pos := b.position

	if !pyramid.Enabled || !pos.IsOpen() || i <= 0 || i >= len(bars) {
		return PyramidResult{Reason: "disabled"}, false
	}

	if pos.Adds >= pyramid.MaxAdds {
		return PyramidResult{Reason: "max-adds"}, false
	}

	bar := bars[i]

	atr, ok := bar.ATRValue()
	if !ok {
		atr = pos.EntryATR
	}

	window := bars[max(0, i-pyramid.DonchianLen):i]

	donchian, ok := indicator.DonchianHigh(indicator.Highs(window), len(window), pyramid.DonchianLen)
	if !ok {
		return PyramidResult{Reason: "donchian-not-ready"}, false
	}

	level := donchian + pyramid.BreakoutATRMult*atr

	r := 0.0
	if pos.RiskBudget > 0 {
		r = pos.UnrealizedPnL(bar.Close) / pos.RiskBudget
	}

	result := PyramidResult{Level: level, R: r, OldStop: pos.Stop, NewStop: pos.Stop}

	if r < pyramid.MinR {
		result.Reason = "below-min-r"

		return result, false
	}

	if bar.Close <= level {
		result.Reason = "no-breakout"

		return result, false
	}

	add := pyramid.AddFraction * pos.InitialSize
	if headroom := utils.CalculateMaxQuantity(b.maxNotional(), bar.Close) - pos.Size; add > headroom {
		add = headroom
	}

	add = utils.RoundToDecimalPrecision(add, utils.QuantityDecimals)
	if !utils.IsFinitePositive(add) {
		result.Reason = "notional-cap"

		return result, false
	}

	fill := b.slip(bar.Close)
	size := decimal.NewFromFloat(pos.Size).Add(decimal.NewFromFloat(add))
	avg := decimal.NewFromFloat(pos.Entry).Mul(decimal.NewFromFloat(pos.Size)).
		Add(decimal.NewFromFloat(fill).Mul(decimal.NewFromFloat(add))).
		Div(size)

	newSize := size.InexactFloat64()
	newAvg := avg.InexactFloat64()
	stop := pos.Stop

	if openRisk := (newAvg - stop) * newSize; openRisk > pos.RiskBudget {
		stop = avg.Sub(decimal.NewFromFloat(pos.RiskBudget).Div(size)).InexactFloat64()
		if stop >= bar.Close {
			result.Reason = "stop-above-close"

			return result, false
		}

		result.StopRaised = stop > pos.Stop
		stop = max(stop, pos.Stop)
	}

	b.position.Size = newSize
	b.position.Entry = newAvg
	b.position.Stop = stop
	b.position.Adds++

	trade := types.Trade{Time: bar.Time, Side: types.SideBuy, Price: fill, Qty: add, Fee: 0, PnL: 0, Note: NotePyramid}
	b.trades = append(b.trades, trade)

	result.Trade = trade
	result.NewStop = stop

	return result, true
}

func (b *Broker) maxNotional() float64 {
	if b.cfg.MaxNotional > 0 {
		return b.cfg.MaxNotional
	}

	return b.equity
}

func (b *Broker) fee() float64 {
	notional := decimal.NewFromFloat(b.position.Entry).Mul(decimal.NewFromFloat(b.position.Size))

	return b.commission.Calculate(notional.InexactFloat64())
}

// netPnL is the realized P&L if the position closed at price.
func (b *Broker) netPnL(price float64) float64 {
	gross := decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(b.position.Entry)).
		Mul(decimal.NewFromFloat(b.position.Size))

	return gross.Sub(decimal.NewFromFloat(b.fee())).InexactFloat64()
}

// slip moves price by a uniform draw inside the slippage band.
func (b *Broker) slip(price float64) float64 {
	if b.cfg.SlippageBps <= 0 {
		return price
	}

	return price * (1 + b.cfg.SlippageBps/bpsDenominator*(b.rng.Float64()*2-1))
}
