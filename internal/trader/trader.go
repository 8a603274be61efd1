// Package trader runs one bar through exits, entry admission and pyramiding.
// A Trader is either Flat or Long; an exit moves it to Flat and ends the tick,
// so a bar that closes a position never opens another.
package trader

import (
	"time"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/htf"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/position"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"go.uber.org/zap"
)

type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "long"
	}

	return "flat"
}

// HTFLookup answers the higher-timeframe question for a bar close time.
type HTFLookup interface {
	Enabled() bool
	Pass(t time.Time) (bool, htf.Verdict)
}

// Journal receives the trade and entry records as they happen.
type Journal interface {
	RecordTrade(trade types.Trade) error
	RecordEntry(entry types.EntryExecution) error
}

// Tick is the outcome of one processed bar.
type Tick struct {
	Time     time.Time
	Exited   bool
	Exit     types.Trade
	Entered  bool
	Entry    position.Entry
	Added    bool
	Pyramid  position.PyramidResult
	Decision guard.Decision
	DayRoll  bool
	Equity   float64
}

// Trader wires the guard, the broker and the HTF filter together.
type Trader struct {
	cfg     config.RunConfig
	broker  *position.Broker
	guard   *guard.Guard
	htf     HTFLookup
	journal Journal
	events  *logger.EventLog
	logger  *logger.Logger
	state   State
}

// New creates a flat trader. htf, journal and events may be nil.
func New(
	cfg config.RunConfig,
	broker *position.Broker,
	g *guard.Guard,
	lookup HTFLookup,
	journal Journal,
	events *logger.EventLog,
	log *logger.Logger,
) *Trader {
	t := &Trader{
		cfg:     cfg,
		broker:  broker,
		guard:   g,
		htf:     lookup,
		journal: journal,
		events:  events,
		logger:  log,
		state:   Flat,
	}
	t.syncState()

	return t
}

func (t *Trader) State() State {
	return t.state
}

func (t *Trader) Broker() *position.Broker {
	return t.broker
}

func (t *Trader) Guard() *guard.Guard {
	return t.guard
}

// Restore loads persisted broker and guard state and resumes Long when a
// position was open.
func (t *Trader) Restore(broker position.State, guards guard.State) {
	t.broker.Restore(broker)
	t.guard.Restore(guards)
	t.syncState()
}

// OnClosedBar processes bars[i], which must have closed.
func (t *Trader) OnClosedBar(bars []types.Bar, i int, rule position.MomentumRule) Tick {
	bar := bars[i]
	tick := Tick{Time: bar.Time}

	t.guard.OnBar()
	t.broker.OnBar()

	if t.state == Long {
		if t.checkExits(bar, rule, &tick) {
			tick.Equity = t.broker.MarkToMarket(bar.Close)

			return tick
		}
	}

	if t.guard.RollDay(bar.Time, t.broker.MarkToMarket(bar.Close)) {
		tick.DayRoll = true
		t.emit(bar.Time, logger.EventDayRoll, logger.Fields{
			"day":          t.guard.State().DayStamp,
			"equity":       t.broker.MarkToMarket(bar.Close),
			"consecLosses": t.guard.State().ConsecutiveLosses,
		})
	}

	justEntered := false

	if t.state == Flat {
		justEntered = t.tryEnter(bars, i, &tick)
	}

	if t.state == Long && !justEntered {
		t.tryPyramid(bars, i, &tick)
	}

	tick.Equity = t.broker.MarkToMarket(bar.Close)

	return tick
}

// OnFormingBar checks the resting stop against a bar that has not closed.
// The stop only moves here when trailing is not restricted to closes.
func (t *Trader) OnFormingBar(bar types.Bar) Tick {
	tick := Tick{Time: bar.Time}

	if t.state != Long {
		tick.Equity = t.broker.Equity()

		return tick
	}

	if exit, hit := t.broker.CheckStop(bar); hit {
		t.exit(bar, exit, &tick)
	} else if !t.cfg.Trailing.UpdateOnClose {
		t.trail(bar)
	}

	tick.Equity = t.broker.MarkToMarket(bar.Close)

	return tick
}

// Flatten closes any open position at the bar close.
func (t *Trader) Flatten(bar types.Bar, note string) (Tick, bool) {
	tick := Tick{Time: bar.Time}
	if t.state != Long {
		tick.Equity = t.broker.Equity()

		return tick, false
	}

	t.exit(bar, position.Exit{Price: 0, Note: note}, &tick)
	tick.Equity = t.broker.Equity()

	return tick, tick.Exited
}

// checkExits runs the hard stop, the trail and the strategy exits in that order.
func (t *Trader) checkExits(bar types.Bar, rule position.MomentumRule, tick *Tick) bool {
	if exit, hit := t.broker.CheckStop(bar); hit {
		return t.exit(bar, exit, tick)
	}

	t.trail(bar)

	if t.broker.MeanReversionExit(bar) {
		return t.exit(bar, position.Exit{Price: 0, Note: position.NoteMeanReversion}, tick)
	}

	if hit, _ := t.broker.MomentumExit(rule, bar); hit {
		return t.exit(bar, position.Exit{Price: 0, Note: position.NoteMomentum}, tick)
	}

	return false
}

// exit closes the position. A zero price means a market fill at the close.
func (t *Trader) exit(bar types.Bar, exit position.Exit, tick *Tick) bool {
	pos := t.broker.Position()

	var (
		trade types.Trade
		err   error
	)

	if exit.Price > 0 {
		trade, err = t.broker.Close(bar, exit.Price, exit.Note)
	} else {
		trade, err = t.broker.MarketExit(bar, exit.Note)
	}

	if err != nil {
		t.logger.Error("Failed to close position", zap.String("note", exit.Note), zap.Error(err))

		return false
	}

	atr, ok := bar.ATRValue()
	if !ok {
		atr = pos.EntryATR
	}

	t.guard.OnExit(trade.Price, atr, trade.PnL)
	t.state = Flat

	tick.Exited = true
	tick.Exit = trade

	t.emit(bar.Time, logger.EventExitExec, logger.Fields{
		"note":     trade.Note,
		"px":       trade.Price,
		"qty":      trade.Qty,
		"pnl":      trade.PnL,
		"fee":      trade.Fee,
		"entry":    pos.Entry,
		"stop":     pos.Stop,
		"holdBars": pos.HoldBars,
		"equity":   t.broker.Equity(),
	})
	t.recordTrade(trade)

	t.logger.Info("Position closed",
		zap.String("note", trade.Note),
		zap.Float64("price", trade.Price),
		zap.Float64("pnl", trade.PnL),
		zap.Float64("equity", t.broker.Equity()),
	)

	return true
}

func (t *Trader) trail(bar types.Bar) {
	if moved, old, next := t.broker.Trail(bar); moved {
		t.emit(bar.Time, logger.EventTrailMove, logger.Fields{
			"old":  old,
			"stop": next,
			"peak": t.broker.Position().Peak,
			"mode": t.cfg.Trailing.Mode,
		})
	}
}

func (t *Trader) tryEnter(bars []types.Bar, i int, tick *Tick) bool {
	bar := bars[i]

	var prev *types.Bar
	if i > 0 {
		prev = &bars[i-1]
	}

	htfPass := true

	if t.htf != nil && t.htf.Enabled() {
		pass, verdict := t.htf.Pass(bar.Time)
		htfPass = pass

		event := logger.EventHTFPass
		if !pass {
			event = logger.EventHTFVeto
		}

		t.emit(bar.Time, event, verdict.Fields())
	}

	decision := t.guard.Evaluate(guard.Input{
		Bar:     bar,
		Prev:    prev,
		HTFPass: htfPass,
		Open:    nil,
		Equity:  t.broker.Equity(),
	})
	tick.Decision = decision

	if !decision.Allowed {
		fields := logger.Fields{"why": decision.Reason}
		for key, value := range decision.Details {
			fields[key] = value
		}

		t.emit(bar.Time, logger.EventEntryBlocked, fields)

		return false
	}

	entry, err := t.broker.Enter(bar, entryReason(t.cfg.Strategy, decision))
	if err != nil {
		t.logger.Warn("Entry skipped", zap.Time("bar_time", bar.Time), zap.Error(err))
		t.emit(bar.Time, logger.EventEntryBlocked, logger.Fields{
			"why":   "sizing",
			"code":  errors.GetCode(err),
			"error": err.Error(),
		})

		return false
	}

	t.guard.OnEntry()
	t.state = Long

	tick.Entered = true
	tick.Entry = entry

	t.emit(bar.Time, logger.EventEnterExec, logger.Fields{
		"px":           entry.Trade.Price,
		"rawClose":     bar.Close,
		"qty":          entry.Trade.Qty,
		"stop":         entry.Execution.Stop,
		"stopDist":     entry.StopDistance,
		"qtyRisk":      entry.QtyRisk,
		"qtyCap":       entry.QtyCap,
		"capped":       entry.Capped,
		"equityBefore": entry.Execution.EquityBefore,
		"reason":       entry.Execution.Reason,
	})
	t.recordTrade(entry.Trade)

	if t.journal != nil {
		if err := t.journal.RecordEntry(entry.Execution); err != nil {
			t.logger.Warn("Failed to record entry execution", zap.Error(err))
		}
	}

	t.logger.Info("Position opened",
		zap.Float64("price", entry.Trade.Price),
		zap.Float64("qty", entry.Trade.Qty),
		zap.Float64("stop", entry.Execution.Stop),
	)

	return true
}

func (t *Trader) tryPyramid(bars []types.Bar, i int, tick *Tick) {
	if !t.cfg.Pyramid.Enabled {
		return
	}

	if ok, _ := t.guard.CanAdd(t.broker.Position()); !ok {
		return
	}

	result, ok := t.broker.TryPyramid(bars, i)
	if !ok {
		return
	}

	t.guard.OnAdd()

	tick.Added = true
	tick.Pyramid = result

	bar := bars[i]
	if result.StopRaised {
		t.emit(bar.Time, logger.EventStopRaisePyramid, logger.Fields{"old": result.OldStop, "new": result.NewStop})
	}

	pos := t.broker.Position()
	t.emit(bar.Time, logger.EventPyramidAdd, logger.Fields{
		"qtyAdd":      result.Trade.Qty,
		"px":          result.Trade.Price,
		"level":       result.Level,
		"r":           result.R,
		"size":        pos.Size,
		"avgEntry":    pos.Entry,
		"adds":        pos.Adds,
		"tradesToday": t.guard.State().TradesToday,
	})
	t.recordTrade(result.Trade)
}

func (t *Trader) recordTrade(trade types.Trade) {
	if t.journal == nil {
		return
	}

	if err := t.journal.RecordTrade(trade); err != nil {
		t.logger.Warn("Failed to record trade", zap.String("note", trade.Note), zap.Error(err))
	}
}

func (t *Trader) emit(at time.Time, event logger.Event, fields logger.Fields) {
	t.events.Emit(at, event, fields)
}

func (t *Trader) syncState() {
	if t.broker.IsOpen() {
		t.state = Long

		return
	}

	t.state = Flat
}

func entryReason(strategy config.Strategy, decision guard.Decision) string {
	if strategy == config.StrategyMeanReversion {
		return "oversold-cross"
	}

	if soft, ok := decision.Details["soft"].(bool); ok && soft {
		return "soft"
	}

	return "hard"
}
