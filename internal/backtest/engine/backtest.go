package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/htf"
	"github.com/rxtech-lab/argo-guard/internal/indicator"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/position"
	"github.com/rxtech-lab/argo-guard/internal/trader"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/internal/writers"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"go.uber.org/zap"
)

// Backtest replays one symbol over the configured lookback window.
type Backtest struct {
	cfg     config.RunConfig
	backend marketdata.Backend
	logger  *logger.Logger
	now     func() time.Time
}

// NewBacktest creates a backtest reading bars from backend.
func NewBacktest(cfg config.RunConfig, backend marketdata.Backend, log *logger.Logger) *Backtest {
	return &Backtest{
		cfg:     cfg,
		backend: backend,
		logger:  log,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock used when no end time is configured.
func (b *Backtest) SetClock(now func() time.Time) {
	b.now = now
}

// Run implements Engine.
//
//nolint:funlen // Run is the whole driver and reads top to bottom
func (b *Backtest) Run(ctx context.Context, callbacks LifecycleCallbacks) (result Result, err error) {
	result = Result{
		RunID:   uuid.New().String(),
		Blocked: map[guard.Reason]int{},
	}

	defer func() {
		if callbacks.OnRunEnd != nil {
			(*callbacks.OnRunEnd)(result, err)
		}
	}()

	bars, err := b.loadBars(ctx)
	if err != nil {
		return result, err
	}

	result.Bars = len(bars)

	warmup := b.cfg.WarmupBars()
	if len(bars) <= warmup {
		return result, errors.NewInsufficientDataErrorf(warmup+1, len(bars), b.cfg.Symbol,
			"need more than %d bars of %s to warm up the indicators, got %d", warmup, b.cfg.Symbol, len(bars))
	}

	filter := htf.NewFilter(b.cfg, b.backend)
	if err := filter.RefreshRange(ctx, bars[0].Time, bars[len(bars)-1].Time); err != nil {
		return result, err
	}

	result.OutputDir = filepath.Join(b.cfg.InstrumentDir(), "backtest", result.RunID)

	recorder, err := writers.NewRecorder(result.OutputDir, false)
	if err != nil {
		return result, err
	}
	defer recorder.Close()

	events := logger.NewEventLog(filepath.Join(result.OutputDir, "debug.log"), logger.DefaultRotation(), b.logger)
	defer events.Close()

	broker := position.NewBroker(b.cfg)
	guards := guard.New(b.cfg)
	tr := trader.New(b.cfg, broker, guards, filter, recorder, events, b.logger)

	start := max(1, len(bars)-b.cfg.Backtest.LookbackBars)
	total := len(bars) - start

	events.Emit(bars[start].Time, logger.EventStartup, logger.Fields{
		"mode":      "backtest",
		"runId":     result.RunID,
		"symbol":    b.cfg.Symbol,
		"timeframe": b.cfg.Timeframe,
		"strategy":  b.cfg.Strategy,
		"bars":      total,
		"warmup":    warmup,
		"htf":       b.cfg.HTF.Mode,
		"equity":    broker.Equity(),
	})

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(result.RunID, b.cfg.Symbol, total); err != nil {
			return result, errors.Wrap(errors.ErrCodeCallbackFailed, "OnRunStart callback failed", err)
		}
	}

	result.Equity = make([]types.EquityPoint, 0, total)

	for i := start; i < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tick := tr.OnClosedBar(bars, i, position.MomentumRiskBudget)
		point := types.EquityPoint{Time: bars[i].Time, Equity: tick.Equity}

		if i == len(bars)-1 {
			if flat, ok := tr.Flatten(bars[i], position.NoteEndOfData); ok {
				point.Equity = flat.Equity
			}
		}

		result.Equity = append(result.Equity, point)

		if err := recorder.RecordEquity(point); err != nil {
			b.logger.Warn("Failed to record equity", zap.Time("bar_time", point.Time), zap.Error(err))
		}

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(i-start+1, total); err != nil {
				return result, errors.Wrap(errors.ErrCodeCallbackFailed, "OnProcessData callback failed", err)
			}
		}
	}

	result.Trades = broker.Trades()
	result.FinalEquity = broker.Equity()
	result.Blocked = guards.State().Blocked
	result.TradesPath = recorder.TradesPath()
	result.EquityPath = recorder.EquityPath()
	result.EntriesPath = recorder.EntriesPath()
	result.ParquetPath = recorder.ParquetPath()

	summary, err := recorder.Summary()
	if err != nil {
		return result, err
	}

	result.Stats = writers.BuildStats(writers.StatsInput{
		Symbol:        b.cfg.Symbol,
		Timeframe:     b.cfg.Timeframe,
		BarDuration:   b.cfg.TimeframeValue().Duration(),
		Strategy:      b.cfg.StrategyInfo(),
		InitialEquity: b.cfg.InitialEquity,
		FinalEquity:   result.FinalEquity,
		Trades:        result.Trades,
		Equity:        result.Equity,
		FirstClose:    bars[start].Close,
		LastClose:     bars[len(bars)-1].Close,
		Blocked:       result.Blocked,
		Summary:       summary,
		TradesPath:    result.TradesPath,
		EquityPath:    result.EquityPath,
		Now:           b.now().UTC(),
	})
	result.Stats.ID = result.RunID

	result.StatsPath, err = writers.WriteStats(result.OutputDir, result.Stats)
	if err != nil {
		return result, err
	}

	b.logger.Info("Backtest finished",
		zap.String("run_id", result.RunID),
		zap.Int("bars", total),
		zap.Int("trades", summary.RoundTrips),
		zap.Float64("final_equity", result.FinalEquity),
		zap.String("output", result.OutputDir),
	)

	return result, nil
}

// loadBars fetches warm-up plus lookback bars ending at the configured end and
// drops any bar that had not closed by then.
func (b *Backtest) loadBars(ctx context.Context) ([]types.Bar, error) {
	tf := b.cfg.TimeframeValue()
	venue := b.backend.Venue()

	end := b.now().UTC()
	if configured := b.cfg.BacktestEnd(); configured.IsSome() {
		end = configured.Unwrap()
	}

	total := b.cfg.WarmupBars() + b.cfg.Backtest.LookbackBars
	span := marketdata.CalendarSpan(venue, tf, total)
	since := end.Add(-span)

	limit := total
	if venue == marketdata.VenueEquities {
		// the window is padded for closed sessions, so it can hold more than total bars
		limit = int(span/tf.Duration()) + 1
	}

	rows, err := b.backend.FetchRange(ctx, b.cfg.Symbol, tf, since.UnixMilli(), limit)
	if err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "failed to load %s %s bars", b.cfg.Symbol, tf)
	}

	if len(rows) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no %s %s bars before %s", b.cfg.Symbol, tf, end.Format(time.RFC3339))
	}

	pipeline := indicator.NewPipeline(indicator.Periods{
		EMAFast: b.cfg.Indicators.EMAFast,
		EMASlow: b.cfg.Indicators.EMASlow,
		RSI:     b.cfg.Indicators.RSILen,
		ATR:     b.cfg.Indicators.ATRLen,
	})
	bars := pipeline.Compute(rows, indicator.AlignerFor(venue, tf))

	closed := len(bars)
	for closed > 0 && bars[closed-1].Time.After(end) {
		closed--
	}

	bars = bars[:closed]
	if len(bars) > total {
		bars = bars[len(bars)-total:]
	}

	b.logger.Debug("Bars loaded",
		zap.String("symbol", b.cfg.Symbol),
		zap.String("timeframe", tf.String()),
		zap.Int("rows", len(rows)),
		zap.Int("closed", len(bars)),
		zap.Time("end", end),
	)

	return bars, nil
}
