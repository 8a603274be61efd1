// Package guard decides whether a new entry is admitted. Checks run in a fixed
// order and the first failing check is the reported reason.
package guard

import (
	"time"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Sub-reasons reported under ReasonSignal.
const (
	SignalRSINotReady  = "rsi-not-ready"
	SignalEMANotReady  = "ema-not-ready"
	SignalRSIBelow     = "rsi-below"
	SignalBelowCushion = "below-cushion"
	SignalNoCross      = "no-cross"
)

// Input is everything one evaluation looks at.
type Input struct {
	Bar     types.Bar
	Prev    *types.Bar
	HTFPass bool
	Open    *types.Position
	Equity  float64
}

// Decision is the outcome of Evaluate. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  Reason
	Details map[string]any
}

func allow(details map[string]any) Decision {
	return Decision{Allowed: true, Reason: "", Details: details}
}

func block(reason Reason, details map[string]any) Decision {
	return Decision{Allowed: false, Reason: reason, Details: details}
}

// Guard owns the counters and evaluates the admission checks against them.
type Guard struct {
	cfg          config.RunConfig
	dayLoc       *time.Location
	sessionLoc   *time.Location
	hasSession   bool
	sessionStart config.Clock
	sessionEnd   config.Clock
	state        State
}

// New creates a guard with fresh counters.
func New(cfg config.RunConfig) *Guard {
	g := &Guard{
		cfg:          cfg,
		dayLoc:       cfg.DayLocation(),
		sessionLoc:   cfg.SessionLocation(),
		hasSession:   false,
		sessionStart: 0,
		sessionEnd:   0,
		state:        NewState(cfg.Guards.MinBarsBetween),
	}

	if cfg.Session.Start != "" && cfg.Session.End != "" {
		start, errStart := config.ParseClock(cfg.Session.Start)
		end, errEnd := config.ParseClock(cfg.Session.End)

		if errStart == nil && errEnd == nil {
			g.hasSession = true
			g.sessionStart = start
			g.sessionEnd = end
		}
	}

	return g
}

// State returns a copy of the counters for persistence.
func (g *Guard) State() State {
	state := g.state
	state.Blocked = make(map[Reason]int, len(g.state.Blocked))

	for reason, count := range g.state.Blocked {
		state.Blocked[reason] = count
	}

	return state
}

// Restore replaces the counters with a persisted snapshot.
func (g *Guard) Restore(state State) {
	if state.Blocked == nil {
		state.Blocked = map[Reason]int{}
	}

	g.state = state
}

// Evaluate runs Check and counts a block in its diagnostic bucket.
func (g *Guard) Evaluate(in Input) Decision {
	decision := g.Check(in)
	if !decision.Allowed {
		g.state.Blocked[decision.Reason]++
	}

	return decision
}

// Check runs the ordered checks without touching any counter.
func (g *Guard) Check(in Input) Decision {
	bar := in.Bar

	atr, ok := bar.ATRValue()
	if !ok {
		return block(ReasonATRNotReady, nil)
	}

	sub, signalDetails := g.signal(bar, in.Prev, atr)
	if sub != "" {
		signalDetails["sub"] = sub

		return block(ReasonSignal, signalDetails)
	}

	if !in.HTFPass {
		return block(ReasonHTFVeto, nil)
	}

	if g.hasSession && !g.inSession(bar.Time) {
		return block(ReasonOutsideSession, map[string]any{
			"local": bar.Time.In(g.sessionLoc).Format("15:04"),
			"start": g.sessionStart.String(),
			"end":   g.sessionEnd.String(),
		})
	}

	s := g.state
	guards := g.cfg.Guards

	if s.CooldownLeft > 0 {
		return block(ReasonCooldown, map[string]any{"left": s.CooldownLeft})
	}

	if s.BarsSinceEntry < guards.MinBarsBetween {
		return block(ReasonMinBarsBetween, map[string]any{"barsSinceEntry": s.BarsSinceEntry, "min": guards.MinBarsBetween})
	}

	if s.TradesToday >= guards.MaxTradesPerDay {
		return block(ReasonMaxTradesDay, map[string]any{"tradesToday": s.TradesToday, "max": guards.MaxTradesPerDay})
	}

	if s.ConsecutiveLosses >= guards.MaxConsecutiveLosses {
		return block(ReasonMaxConsecLosses, map[string]any{"losses": s.ConsecutiveLosses, "max": guards.MaxConsecutiveLosses})
	}

	if in.Open != nil && in.Open.IsOpen() && in.Open.HoldBars < guards.MinHoldBars {
		return block(ReasonMinHold, map[string]any{"holdBars": in.Open.HoldBars, "min": guards.MinHoldBars})
	}

	if drawdown := g.dailyDrawdownPct(in.Equity); drawdown >= guards.DailyLossLimitPct {
		return block(ReasonDailyLossLimit, map[string]any{"drawdownPct": drawdown, "limitPct": guards.DailyLossLimitPct})
	}

	if s.HasLastExit {
		mult := guards.ReentryATRAfterLoss
		if s.LastExitProfitable {
			mult = guards.ReentryATRAfterWin
		}

		// only a move up and away from the last exit re-arms entries
		if need := s.LastExitPrice + mult*atr; bar.Close < need {
			return block(ReasonReentryTooClose, map[string]any{
				"lastExit":   s.LastExitPrice,
				"need":       need,
				"atrMult":    mult,
				"atr":        atr,
				"profitable": s.LastExitProfitable,
			})
		}
	}

	signalDetails["atr"] = atr

	return allow(signalDetails)
}

// CanAdd gates a pyramid add on an open position: the daily cap and the minimum hold.
func (g *Guard) CanAdd(open types.Position) (bool, Reason) {
	if g.state.TradesToday >= g.cfg.Guards.MaxTradesPerDay {
		return false, ReasonMaxTradesDay
	}

	if open.HoldBars < g.cfg.Guards.MinHoldBars {
		return false, ReasonMinHold
	}

	return true, ""
}

// signal returns the failing sub-reason, or "" when the strategy signal is present.
func (g *Guard) signal(bar types.Bar, prev *types.Bar, atr float64) (string, map[string]any) {
	details := map[string]any{}

	rsi, ok := types.Float(bar.RSI)
	if !ok {
		return SignalRSINotReady, details
	}

	details["rsi"] = rsi

	if g.cfg.Strategy == config.StrategyMeanReversion {
		oversold := g.cfg.MeanReversion.RSIOversold
		if prev == nil {
			return SignalRSINotReady, details
		}

		prevRSI, ok := types.Float(prev.RSI)
		if !ok {
			return SignalRSINotReady, details
		}

		details["prevRsi"] = prevRSI

		if prevRSI < oversold && rsi >= oversold {
			return "", details
		}

		return SignalNoCross, details
	}

	trend := g.cfg.Trend

	emaFast, ok := types.Float(bar.EMAFast)
	if !ok {
		return SignalEMANotReady, details
	}

	details["emaFast"] = emaFast

	hard := rsi > trend.RSILong
	soft := false

	if emaSlow, ok := types.Float(bar.EMASlow); ok && rsi >= trend.RSILongSoft && emaFast > emaSlow {
		soft = !trend.RequireEMARising || emaRising(emaFast, prev)
	}

	if !hard && !soft {
		return SignalRSIBelow, details
	}

	details["soft"] = !hard

	cushion := emaFast + trend.EntryCushionATR*atr
	if bar.Close <= cushion {
		details["cushion"] = cushion

		return SignalBelowCushion, details
	}

	return "", details
}

// emaRising treats an unknown previous fast EMA as rising.
func emaRising(emaFast float64, prev *types.Bar) bool {
	if prev == nil {
		return true
	}

	prevFast, ok := types.Float(prev.EMAFast)

	return !ok || emaFast >= prevFast
}

func (g *Guard) inSession(t time.Time) bool {
	local := t.In(g.sessionLoc)
	minute := local.Hour()*60 + local.Minute()
	grace := g.cfg.Session.GraceMinutes
	start := int(g.sessionStart) - grace
	end := int(g.sessionEnd) + grace

	if g.sessionStart <= g.sessionEnd {
		return minute >= start && minute <= end
	}

	// overnight session wraps midnight
	return minute >= start || minute <= end
}

func (g *Guard) dailyDrawdownPct(equity float64) float64 {
	if g.state.DayStartEquity <= 0 || equity >= g.state.DayStartEquity {
		return 0
	}

	return (g.state.DayStartEquity - equity) / g.state.DayStartEquity * 100
}

// RollDay starts a new trading day when t falls on a different day than the
// stored stamp. It reports whether a transition happened. The first call of a
// run only records the day.
func (g *Guard) RollDay(t time.Time, equity float64) bool {
	stamp := DayStamp(t, g.dayLoc)
	if stamp == g.state.DayStamp {
		return false
	}

	first := g.state.DayStamp == ""
	g.state.DayStamp = stamp
	g.state.DayStartEquity = equity

	if first {
		return false
	}

	g.state.TradesToday = 0
	g.state.ConsecutiveLosses = max(0, g.state.ConsecutiveLosses-g.cfg.Guards.LossDecayPerDay)

	return true
}

// OnBar advances the per-bar counters.
func (g *Guard) OnBar() {
	g.state.BarsSinceEntry++

	if g.state.CooldownLeft > 0 {
		g.state.CooldownLeft--
	}
}

// OnEntry records a new position.
func (g *Guard) OnEntry() {
	g.state.TradesToday++
	g.state.BarsSinceEntry = 0
}

// OnAdd records a pyramid add. Adds count toward the daily cap only.
func (g *Guard) OnAdd() {
	g.state.TradesToday++
}

// OnExit records a closed position. A loss extends the streak and starts the cooldown.
func (g *Guard) OnExit(price float64, atr float64, pnl float64) {
	g.state.HasLastExit = true
	g.state.LastExitPrice = price
	g.state.LastExitATR = atr
	g.state.LastExitProfitable = pnl > 0

	if pnl > 0 {
		g.state.ConsecutiveLosses = 0

		return
	}

	g.state.ConsecutiveLosses++
	g.state.CooldownLeft = g.cfg.Guards.CooldownBars
}
