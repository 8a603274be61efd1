package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/htf"
	"github.com/rxtech-lab/argo-guard/internal/indicator"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/position"
	"github.com/rxtech-lab/argo-guard/internal/session"
	"github.com/rxtech-lab/argo-guard/internal/state"
	"github.com/rxtech-lab/argo-guard/internal/trader"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/internal/version"
	"github.com/rxtech-lab/argo-guard/internal/writers"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"go.uber.org/zap"
)

const (
	// DebugLogFile is the event log inside the run folder.
	DebugLogFile = "debug.log"
	// LiveStatsFile is rewritten on every save.
	LiveStatsFile = "live_stats.yaml"

	// extra bars fetched past the warm-up: the previous bar and the forming one, plus slack
	// for a venue that returns a short window
	fetchMarginBars = 5
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Live polls the backend and trades one symbol on closed bars.
type Live struct {
	cfg      config.RunConfig
	backend  marketdata.Backend
	logger   *logger.Logger
	store    *state.Store
	sessions *session.Manager
	now      func() time.Time
	sleep    Sleeper
}

// NewLive creates a live engine. backend should already be retry-wrapped.
func NewLive(cfg config.RunConfig, backend marketdata.Backend, log *logger.Logger) *Live {
	return &Live{
		cfg:      cfg,
		backend:  backend,
		logger:   log,
		store:    state.NewStore(cfg.StateFile(), log),
		sessions: session.NewManager(log),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetClock replaces the wall clock.
func (l *Live) SetClock(now func() time.Time) {
	l.now = now
}

// SetSleeper replaces the poll wait.
func (l *Live) SetSleeper(sleep Sleeper) {
	l.sleep = sleep
}

// Session exposes the run folder manager.
func (l *Live) Session() *session.Manager {
	return l.sessions
}

// Run implements LiveTradingEngine.
func (l *Live) Run(ctx context.Context, callbacks LiveTradingCallbacks) (err error) {
	var run *liveRun

	defer func() {
		if run != nil {
			run.shutdown()
		}

		l.status(callbacks, types.EngineStatusStopped)

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(err)
		}
	}()

	l.status(callbacks, types.EngineStatusRestoring)

	run, err = l.start()
	if err != nil {
		return err
	}

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(l.sessions.RunID(), l.cfg.Symbol, run.restored); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "OnEngineStart callback failed", err)
		}
	}

	l.status(callbacks, types.EngineStatusRunning)

	poll := time.Duration(l.cfg.Live.PollSeconds) * time.Second
	backoff := time.Duration(l.cfg.Live.ErrorSleepSeconds) * time.Second

	for number := 1; ctx.Err() == nil; number++ {
		iteration, iterErr := run.iterate(ctx, number)
		if iterErr != nil {
			if ctx.Err() != nil {
				break
			}

			run.fail(number, iterErr)

			if callbacks.OnError != nil {
				(*callbacks.OnError)(iterErr)
			}

			l.status(callbacks, types.EngineStatusBackingOff)

			if l.sleep(ctx, backoff) != nil {
				break
			}

			l.status(callbacks, types.EngineStatusRunning)

			continue
		}

		if callbacks.OnIteration != nil {
			if err := (*callbacks.OnIteration)(iteration); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "OnIteration callback failed", err)
			}
		}

		if l.sleep(ctx, poll) != nil {
			break
		}
	}

	l.logger.Info("Shutdown requested", zap.String("run_id", l.sessions.RunID()))

	return nil
}

func (l *Live) status(callbacks LiveTradingCallbacks, status types.EngineStatus) {
	if callbacks.OnStatusUpdate == nil {
		return
	}

	if err := (*callbacks.OnStatusUpdate)(status); err != nil {
		l.logger.Warn("Status callback failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// start creates the run folder and its writers, then restores the snapshot.
func (l *Live) start() (*liveRun, error) {
	now := l.now()
	tf := l.cfg.TimeframeValue()
	venue := l.backend.Venue()

	if err := l.sessions.Initialize(l.cfg.InstrumentDir(), now); err != nil {
		return nil, err
	}

	recorder, err := writers.NewRecorder(l.sessions.RunPath(), true)
	if err != nil {
		return nil, err
	}

	events := logger.NewEventLog(l.sessions.FilePath(DebugLogFile), logger.DefaultRotation(), l.logger)
	filter := htf.NewFilter(l.cfg, l.backend)
	broker := position.NewBroker(l.cfg)
	guards := guard.New(l.cfg)

	run := &liveRun{
		live:      l,
		timeframe: tf,
		pipeline: indicator.NewPipeline(indicator.Periods{
			EMAFast: l.cfg.Indicators.EMAFast,
			EMASlow: l.cfg.Indicators.EMASlow,
			RSI:     l.cfg.Indicators.RSILen,
			ATR:     l.cfg.Indicators.ATRLen,
		}),
		aligner:     indicator.AlignerFor(venue, tf),
		filter:      filter,
		recorder:    recorder,
		events:      events,
		trader:      trader.New(l.cfg, broker, guards, filter, recorder, events, l.logger),
		lastBarTime: time.Time{},
		restored:    false,
		diagnosed:   false,
		stats: types.NewLiveTradeStats(
			l.sessions.RunID(), l.cfg.Symbol, l.cfg.Timeframe, now, l.cfg.StrategyInfo(),
		),
	}
	run.stats.SessionID = l.sessions.SessionID()
	run.stats.Equity = broker.Equity()
	run.stats.TradesFilePath = recorder.TradesPath()
	run.stats.EquityFilePath = recorder.EquityPath()
	run.stats.EntriesFilePath = recorder.EntriesPath()
	run.stats.StateFilePath = l.store.Path()

	events.Emit(now, logger.EventStartup, logger.Fields{
		"mode":       "live",
		"version":    version.GetVersion(),
		"runId":      l.sessions.RunID(),
		"sessionId":  l.sessions.SessionID(),
		"symbol":     l.cfg.Symbol,
		"timeframe":  l.cfg.Timeframe,
		"venue":      venue,
		"strategy":   l.cfg.Strategy,
		"htf":        l.cfg.HTF.Mode,
		"pollSec":    l.cfg.Live.PollSeconds,
		"warmup":     l.cfg.WarmupBars(),
		"stateFile":  l.store.Path(),
		"riskPct":    l.cfg.RiskPct,
		"stopAtr":    l.cfg.StopATRMult,
		"trailMode":  l.cfg.Trailing.Mode,
		"pyramiding": l.cfg.Pyramid.Enabled,
	})

	if err := run.restore(now); err != nil {
		run.close()

		return nil, err
	}

	return run, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// liveRun is the mutable state of one Run call. Only the loop goroutine touches it.
type liveRun struct {
	live        *Live
	timeframe   marketdata.Timeframe
	pipeline    *indicator.Pipeline
	aligner     indicator.CloseAligner
	filter      *htf.Filter
	recorder    *writers.Recorder
	events      *logger.EventLog
	trader      *trader.Trader
	lastBarTime time.Time
	restored    bool
	diagnosed   bool
	stats       types.LiveTradeStats
}

// restore loads the snapshot. A snapshot for another symbol, timeframe or
// strategy, or from an incompatible version, stops the run rather than starting cold.
func (r *liveRun) restore(now time.Time) error {
	l := r.live

	snapshot, found, err := l.store.Load()
	if err != nil {
		return err
	}

	if !found {
		l.logger.Info("No snapshot found, starting flat", zap.String("path", l.store.Path()))

		return nil
	}

	if snapshot.Symbol != l.cfg.Symbol {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"snapshot %s belongs to %s, not %s", l.store.Path(), snapshot.Symbol, l.cfg.Symbol)
	}

	if snapshot.Timeframe != l.cfg.Timeframe {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"snapshot %s was taken on %q bars, not %q", l.store.Path(), snapshot.Timeframe, l.cfg.Timeframe)
	}

	if snapshot.Strategy.Name != string(l.cfg.Strategy) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"snapshot %s belongs to strategy %q, not %q", l.store.Path(), snapshot.Strategy.Name, l.cfg.Strategy)
	}

	r.trader.Restore(snapshot.Broker, snapshot.Guards)
	r.lastBarTime = snapshot.LastBarTime
	r.restored = true

	pos := r.trader.Broker().Position()
	guards := r.trader.Guard().State()

	r.events.Emit(now, logger.EventRestore, logger.Fields{
		"savedAt":      snapshot.SavedAt,
		"fromRun":      snapshot.RunID,
		"version":      snapshot.Version,
		"state":        r.trader.State().String(),
		"entry":        pos.Entry,
		"stop":         pos.Stop,
		"size":         pos.Size,
		"equity":       r.trader.Broker().Equity(),
		"lastBarTime":  snapshot.LastBarTime,
		"tradesToday":  guards.TradesToday,
		"consecLosses": guards.ConsecutiveLosses,
		"cooldownLeft": guards.CooldownLeft,
	})

	l.logger.Info("Snapshot restored",
		zap.String("state", r.trader.State().String()),
		zap.Float64("equity", r.trader.Broker().Equity()),
		zap.Time("last_bar_time", snapshot.LastBarTime),
	)

	return nil
}

// iterate runs one poll. Bars are processed in time order and lastBarTime only
// advances past bars that were handed to the trader.
func (r *liveRun) iterate(ctx context.Context, number int) (Iteration, error) {
	l := r.live
	now := l.now()
	warmup := l.cfg.WarmupBars()

	rows, err := l.backend.FetchRecent(ctx, l.cfg.Symbol, r.timeframe, warmup+fetchMarginBars)
	if err != nil {
		return Iteration{}, errors.Wrapf(errors.GetCode(err), err, "failed to fetch %s %s bars", l.cfg.Symbol, r.timeframe)
	}

	bars := r.pipeline.Compute(rows, r.aligner)

	if !r.diagnosed && len(rows) > 0 {
		r.diagnose(now, rows[len(rows)-1].Time, bars[len(bars)-1].Time)
	}

	closed := 0
	for closed < len(bars) && !bars[closed].Time.After(now) {
		closed++
	}

	if closed <= warmup {
		return Iteration{}, errors.NewInsufficientDataErrorf(warmup+1, closed, l.cfg.Symbol,
			"need more than %d closed %s bars, got %d", warmup, r.timeframe, closed)
	}

	if r.filter.NeedsRefresh(now) {
		if err := r.filter.Refresh(ctx, now); err != nil {
			return Iteration{}, err
		}

		r.events.Emit(now, logger.EventHTFRefresh, logger.Fields{
			"timeframe": l.cfg.HTF.Timeframe,
			"bars":      len(r.filter.Bars()),
		})
	}

	iteration := Iteration{Number: number, At: now}

	// a cold start trades from the newest closed bar only
	if r.lastBarTime.IsZero() {
		r.lastBarTime = bars[closed-2].Time
	}

	for i := 1; i < closed; i++ {
		if !bars[i].Time.After(r.lastBarTime) {
			continue
		}

		iteration.Closed = append(iteration.Closed, r.trader.OnClosedBar(bars[:closed], i, position.MomentumEntryATR))
		r.lastBarTime = bars[i].Time
	}

	price := bars[closed-1].Close
	if closed < len(bars) {
		iteration.Forming = r.trader.OnFormingBar(bars[closed])
		iteration.HasForming = true
		price = bars[closed].Close
	}

	iteration.LastBarTime = r.lastBarTime
	iteration.State = r.trader.State()
	iteration.Equity = r.trader.Broker().MarkToMarket(price)

	r.stats.Iterations = number
	r.stats.LastUpdated = now
	r.stats.State = iteration.State.String()
	r.stats.Equity = iteration.Equity
	r.stats.LastBarTime = r.lastBarTime

	if number%l.cfg.Live.EquityEvery == 0 {
		iteration.Mark = r.markEquity(now, iteration, price)
		iteration.Marked = true
	}

	if number%l.cfg.Live.SaveEvery == 0 {
		if err := r.save(now); err != nil {
			return iteration, err
		}

		iteration.Saved = true
	}

	return iteration, nil
}

// diagnose records once per run how the venue's newest row maps onto the
// aligned close time, which exposes a timeframe or clock mismatch early.
func (r *liveRun) diagnose(now time.Time, rawLast time.Time, alignedLast time.Time) {
	l := r.live
	r.diagnosed = true

	r.events.Emit(now, logger.EventStartupInfo, logger.Fields{
		"timeframe":   l.cfg.Timeframe,
		"tfMs":        r.timeframe.Duration().Milliseconds(),
		"rawLast":     rawLast.UTC(),
		"alignedLast": alignedLast.UTC(),
		"offsetMs":    alignedLast.Sub(rawLast).Milliseconds(),
	})

	l.logger.Debug("Bar alignment",
		zap.String("timeframe", l.cfg.Timeframe),
		zap.Time("raw_last", rawLast),
		zap.Time("aligned_last", alignedLast),
	)
}

func (r *liveRun) markEquity(now time.Time, iteration Iteration, price float64) Mark {
	l := r.live

	point := types.EquityPoint{Time: now, Equity: iteration.Equity}
	if err := r.recorder.RecordEquity(point); err != nil {
		l.logger.Warn("Failed to record equity", zap.Error(err))
	}

	broker := r.trader.Broker()
	mark := newMark(broker.Position(), price, iteration.Equity, l.cfg.InitialEquity, broker.Trades())

	fields := logger.Fields{
		"equity":    mark.Equity,
		"returnPct": mark.ReturnPct,
		"price":     price,
		"state":     iteration.State.String(),
		"open":      mark.Open,
		"trades":    mark.Exits,
	}
	zapFields := []zap.Field{
		zap.Float64("equity", mark.Equity),
		zap.Float64("return_pct", mark.ReturnPct),
		zap.Bool("open", mark.Open),
		zap.Int("trades", mark.Exits),
	}

	if mark.Open {
		fields["uPnL"] = mark.UPnL
		fields["uRetPct"] = mark.URetPct
		fields["r"] = mark.R
		zapFields = append(zapFields,
			zap.Float64("upnl", mark.UPnL),
			zap.Float64("uret_pct", mark.URetPct),
			zap.Float64("r", mark.R),
		)
	}

	r.events.Emit(now, logger.EventEquity, fields)
	l.logger.Info("Live", zapFields...)

	return mark
}

func newMark(pos types.Position, price float64, equity float64, initial float64, trades []types.Trade) Mark {
	mark := Mark{Equity: equity}

	if initial > 0 {
		mark.ReturnPct = (equity - initial) / initial * 100
	}

	for _, trade := range trades {
		if trade.Side == types.SideSell {
			mark.Exits++
		}
	}

	if !pos.IsOpen() {
		return mark
	}

	mark.Open = true
	mark.UPnL = (price - pos.Entry) * pos.Size

	if cost := pos.Entry * pos.Size; cost > 0 {
		mark.URetPct = mark.UPnL / cost * 100
	}

	if risk := pos.Entry - pos.Stop; risk > 0 {
		mark.R = (price - pos.Entry) / risk
	}

	return mark
}

// save writes the snapshot and refreshes live_stats.yaml.
func (r *liveRun) save(now time.Time) error {
	l := r.live
	snapshot := state.Snapshot{
		Version:     version.GetVersion(),
		RunID:       l.sessions.RunID(),
		SavedAt:     now,
		Symbol:      l.cfg.Symbol,
		Timeframe:   l.cfg.Timeframe,
		Broker:      r.trader.Broker().Snapshot(),
		Guards:      r.trader.Guard().State(),
		Strategy:    l.cfg.StrategyInfo(),
		LastBarTime: r.lastBarTime,
	}

	if err := l.store.Save(snapshot); err != nil {
		return err
	}

	r.events.Emit(now, logger.EventStateSave, logger.Fields{
		"path":        l.store.Path(),
		"state":       r.trader.State().String(),
		"equity":      r.trader.Broker().Equity(),
		"lastBarTime": r.lastBarTime,
	})

	r.writeStats(now)

	return nil
}

func (r *liveRun) writeStats(now time.Time) {
	l := r.live

	summary, err := r.recorder.Summary()
	if err != nil {
		l.logger.Warn("Failed to summarize trades", zap.Error(err))
	}

	r.stats.LastUpdated = now
	r.stats.TradeResult.NumberOfTrades = summary.RoundTrips
	r.stats.TradeResult.NumberOfEntries = summary.Entries
	r.stats.TradeResult.NumberOfWinningTrades = summary.Winning
	r.stats.TradeResult.NumberOfLosingTrades = summary.Losing

	if summary.RoundTrips > 0 {
		r.stats.TradeResult.WinRate = float64(summary.Winning) / float64(summary.RoundTrips)
	}

	r.stats.TradePnl = types.TradePnl{
		RealizedPnL:   summary.RealizedPnL,
		MaximumLoss:   summary.MaximumLoss,
		MaximumProfit: summary.MaximumProfit,
	}
	r.stats.TotalFees = summary.TotalFees

	blocked := r.trader.Guard().State().Blocked
	for _, reason := range guard.Reasons {
		r.stats.EntriesBlocked[string(reason)] = blocked[reason]
	}

	if err := types.WriteLiveTradeStats(l.sessions.FilePath(LiveStatsFile), r.stats); err != nil {
		l.logger.Warn("Failed to write live stats", zap.Error(err))
	}
}

// fail logs an iteration error. The loop continues after the back-off sleep.
func (r *liveRun) fail(number int, err error) {
	l := r.live
	now := l.now()
	r.stats.IterationErrors++

	l.logger.Error("Iteration failed",
		zap.Int("iteration", number),
		zap.Int("code", int(errors.GetCode(err))),
		zap.Bool("transient", errors.IsTransient(err)),
		zap.Error(err),
	)

	r.events.Emit(now, logger.EventIterationError, logger.Fields{
		"iteration": number,
		"code":      errors.GetCode(err),
		"transient": errors.IsTransient(err),
		"error":     err.Error(),
		"sleepSec":  l.cfg.Live.ErrorSleepSeconds,
	})
}

// shutdown does the best-effort final save and closes the writers.
func (r *liveRun) shutdown() {
	l := r.live
	now := l.now()

	if err := r.save(now); err != nil {
		l.logger.Error("Final state save failed", zap.String("path", l.store.Path()), zap.Error(err))
	} else {
		l.logger.Info("Final state saved", zap.String("path", l.store.Path()))
	}

	r.close()
}

func (r *liveRun) close() {
	if err := r.recorder.Close(); err != nil {
		r.live.logger.Warn("Failed to close recorder", zap.Error(err))
	}

	if err := r.events.Close(); err != nil {
		r.live.logger.Warn("Failed to close event log", zap.Error(err))
	}
}
