// Package htf evaluates a higher-timeframe trend filter for lower-timeframe bars
// without lookahead.
package htf

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/indicator"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
)

// Verdict explains one Pass evaluation.
type Verdict struct {
	Mode    config.HTFMode
	Index   int
	BarTime time.Time
	EMAFast optional.Option[float64]
	EMASlow optional.Option[float64]
	RSI     optional.Option[float64]
	Reason  string
}

// Fields renders the verdict for the event log.
func (v Verdict) Fields() map[string]any {
	fields := map[string]any{
		"mode":   v.Mode,
		"index":  v.Index,
		"reason": v.Reason,
	}

	if v.Index >= 0 {
		fields["barTime"] = v.BarTime
	}

	for name, value := range map[string]optional.Option[float64]{"emaFast": v.EMAFast, "emaSlow": v.EMASlow, "rsi": v.RSI} {
		if f, ok := types.Float(value); ok {
			fields[name] = f
		}
	}

	return fields
}

// Filter holds the HTF bar series and answers Pass lookups against it.
type Filter struct {
	backend      marketdata.Backend
	symbol       string
	timeframe    marketdata.Timeframe
	mode         config.HTFMode
	rsiThreshold float64
	fetchBars    int
	refreshEvery time.Duration
	pipeline     *indicator.Pipeline
	aligner      indicator.CloseAligner

	bars        []types.Bar
	lastRefresh optional.Option[time.Time]
}

// NewFilter builds the filter described by cfg. It holds no bars until Refresh.
func NewFilter(cfg config.RunConfig, backend marketdata.Backend) *Filter {
	tf := cfg.HTFTimeframeValue()

	return &Filter{
		backend:      backend,
		symbol:       cfg.Symbol,
		timeframe:    tf,
		mode:         cfg.HTF.Mode,
		rsiThreshold: cfg.HTF.RSIThreshold,
		fetchBars:    cfg.Indicators.EMASlow + cfg.HTF.SafetyBars,
		refreshEvery: time.Duration(cfg.HTF.RefreshMinutes) * time.Minute,
		pipeline: indicator.NewPipeline(indicator.Periods{
			EMAFast: cfg.Indicators.EMAFast,
			EMASlow: cfg.Indicators.EMASlow,
			RSI:     cfg.Indicators.RSILen,
			ATR:     cfg.Indicators.ATRLen,
		}),
		aligner:     indicator.AlignerFor(backend.Venue(), tf),
		bars:        nil,
		lastRefresh: optional.None[time.Time](),
	}
}

// Enabled reports whether the filter can veto entries.
func (f *Filter) Enabled() bool {
	return f.mode != config.HTFOff
}

// NeedsRefresh is true before the first refresh and once the refresh interval has elapsed.
func (f *Filter) NeedsRefresh(now time.Time) bool {
	if !f.Enabled() {
		return false
	}

	if f.lastRefresh.IsNone() {
		return true
	}

	return now.Sub(f.lastRefresh.Unwrap()) >= f.refreshEvery
}

// Refresh fetches the most recent HTF bars. A bar still forming closes in the
// future so IndexAtOrBefore never selects it early.
func (f *Filter) Refresh(ctx context.Context, now time.Time) error {
	if !f.Enabled() {
		return nil
	}

	rows, err := f.backend.FetchRecent(ctx, f.symbol, f.timeframe, f.fetchBars)
	if err != nil {
		return errors.Wrapf(errors.GetCode(err), err, "failed to refresh %s HTF bars", f.timeframe)
	}

	f.bars = f.pipeline.Compute(rows, f.aligner)
	f.lastRefresh = optional.Some(now)

	return nil
}

// RefreshRange loads HTF bars covering [from, to] plus enough history to warm up.
// Backtests call it once.
func (f *Filter) RefreshRange(ctx context.Context, from time.Time, to time.Time) error {
	if !f.Enabled() {
		return nil
	}

	since := from.Add(-time.Duration(f.fetchBars) * f.timeframe.Duration())
	limit := int(to.Sub(since)/f.timeframe.Duration()) + 2

	rows, err := f.backend.FetchRange(ctx, f.symbol, f.timeframe, since.UnixMilli(), limit)
	if err != nil {
		return errors.Wrapf(errors.GetCode(err), err, "failed to load %s HTF bars", f.timeframe)
	}

	f.bars = f.pipeline.Compute(rows, f.aligner)
	f.lastRefresh = optional.Some(to)

	return nil
}

// Bars returns the current HTF series.
func (f *Filter) Bars() []types.Bar {
	return f.bars
}

// IndexAtOrBefore returns the last HTF bar whose close time is at or before t, or -1.
func (f *Filter) IndexAtOrBefore(t time.Time) int {
	// first index closing strictly after t
	upper := sort.Search(len(f.bars), func(i int) bool {
		return f.bars[i].Time.After(t)
	})

	return upper - 1
}

// Pass evaluates the mode against the HTF bar closed at or before t.
func (f *Filter) Pass(t time.Time) (bool, Verdict) {
	verdict := Verdict{
		Mode:    f.mode,
		Index:   -1,
		BarTime: time.Time{},
		EMAFast: optional.None[float64](),
		EMASlow: optional.None[float64](),
		RSI:     optional.None[float64](),
		Reason:  "",
	}

	if !f.Enabled() {
		verdict.Reason = "off"

		return true, verdict
	}

	if idx := f.IndexAtOrBefore(t); idx >= 0 {
		bar := f.bars[idx]
		verdict.Index = idx
		verdict.BarTime = bar.Time
		verdict.EMAFast = bar.EMAFast
		verdict.EMASlow = bar.EMASlow
		verdict.RSI = bar.RSI
	}

	emaKnown, emaUp := f.emaUp(verdict)
	rsiKnown, rsiAbove := f.rsiAbove(verdict)

	switch f.mode {
	case config.HTFEmaUp:
		if !emaKnown {
			verdict.Reason = "ema-warmup"

			return true, verdict
		}

		verdict.Reason = pick(emaUp, "ema-up", "ema-down")

		return emaUp, verdict
	case config.HTFRsiAbove:
		if !rsiKnown {
			verdict.Reason = "rsi-missing"

			return false, verdict
		}

		verdict.Reason = pick(rsiAbove, "rsi-above", "rsi-below")

		return rsiAbove, verdict
	case config.HTFEmaUpOrRsi:
		if !emaKnown {
			verdict.Reason = "ema-warmup"

			return true, verdict
		}

		pass := emaUp || (rsiKnown && rsiAbove)
		verdict.Reason = pick(pass, pick(emaUp, "ema-up", "rsi-above"), "ema-down-rsi-below")

		return pass, verdict
	default:
		verdict.Reason = "off"

		return true, verdict
	}
}

func (f *Filter) emaUp(v Verdict) (known bool, up bool) {
	fast, okFast := types.Float(v.EMAFast)
	slow, okSlow := types.Float(v.EMASlow)

	if !okFast || !okSlow {
		return false, false
	}

	return true, fast >= slow
}

func (f *Filter) rsiAbove(v Verdict) (known bool, above bool) {
	rsi, ok := types.Float(v.RSI)
	if !ok {
		return false, false
	}

	return true, rsi >= f.rsiThreshold
}

func pick(cond bool, yes string, no string) string {
	if cond {
		return yes
	}

	return no
}
