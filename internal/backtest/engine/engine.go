package engine

import (
	"context"

	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Lifecycle callback types for a backtest run.
// Callbacks returning an error abort the run.

// OnRunStartCallback is called once the bars are loaded, before the first bar is processed.
// totalBars is the number of bars that will be iterated, warm-up excluded.
type OnRunStartCallback func(runID string, symbol string, totalBars int) error

// OnProcessDataCallback is called after each processed bar.
type OnProcessDataCallback func(current int, total int) error

// OnRunEndCallback is called when the run finishes (always called via defer).
type OnRunEndCallback func(result Result, err error)

// LifecycleCallbacks holds the backtest callbacks.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnRunStart    *OnRunStartCallback
	OnProcessData *OnProcessDataCallback
	OnRunEnd      *OnRunEndCallback
}

// Result is what a finished backtest produced.
type Result struct {
	RunID       string
	OutputDir   string
	Bars        int
	Trades      []types.Trade
	Equity      []types.EquityPoint
	FinalEquity float64
	Blocked     map[guard.Reason]int
	Stats       types.TradeStats
	StatsPath   string
	TradesPath  string
	EquityPath  string
	EntriesPath string
	ParquetPath string
}

// Engine replays history through the trader.
type Engine interface {
	// Run loads the bars, processes them in order and writes the run artifacts.
	// The context can be used to cancel the run.
	Run(ctx context.Context, callbacks LifecycleCallbacks) (Result, error)
}
