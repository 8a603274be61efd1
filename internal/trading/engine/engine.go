package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/trader"
	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Lifecycle callback types for live trading phases.
// All callbacks with error return can abort execution if they return an error.

// OnEngineStartCallback is called once the snapshot has been restored and the run folder exists.
// restored is true when a persisted snapshot was loaded.
type OnEngineStartCallback func(runID string, symbol string, restored bool) error

// OnEngineStopCallback is called when the engine stops (always called via defer).
type OnEngineStopCallback func(err error)

// OnIterationCallback is called after each successful poll iteration.
type OnIterationCallback func(iteration Iteration) error

// OnErrorCallback is called when an iteration fails. The loop keeps running.
type OnErrorCallback func(err error)

// OnStatusUpdateCallback is called when engine status changes.
type OnStatusUpdateCallback func(status types.EngineStatus) error

// LiveTradingCallbacks holds all lifecycle callback functions for the live trading engine.
// All fields are pointers - nil means no callback will be invoked.
type LiveTradingCallbacks struct {
	// OnEngineStart is called when the engine starts successfully.
	OnEngineStart *OnEngineStartCallback

	// OnEngineStop is called when the engine stops (always called via defer).
	OnEngineStop *OnEngineStopCallback

	// OnIteration is called after each successful poll iteration.
	OnIteration *OnIterationCallback

	// OnError is called when a non-fatal error occurs.
	OnError *OnErrorCallback

	// OnStatusUpdate is called when engine status changes.
	OnStatusUpdate *OnStatusUpdateCallback
}

// Iteration summarizes one poll.
type Iteration struct {
	Number int
	At     time.Time
	// Closed holds the ticks of bars that closed since the previous poll, oldest first.
	Closed []trader.Tick
	// Forming is the tick of the in-progress bar. Zero when the window had none.
	Forming     trader.Tick
	HasForming  bool
	LastBarTime time.Time
	State       trader.State
	Equity      float64
	Saved       bool
	// Mark is set on the iterations that record an equity point.
	Mark   Mark
	Marked bool
}

// Mark is the periodic account line of a live session. The unrealized fields
// are zero while flat.
type Mark struct {
	Equity    float64
	ReturnPct float64
	Open      bool
	Exits     int
	UPnL      float64
	URetPct   float64
	// R is the open move in units of the entry-to-stop distance. Zero once the
	// stop sits at or above the entry.
	R float64
}

// LiveTradingEngine polls the market data backend and trades one symbol.
type LiveTradingEngine interface {
	// Run restores the persisted state and polls until ctx is cancelled.
	// A cancelled context is a clean shutdown and returns nil after a final save.
	Run(ctx context.Context, callbacks LiveTradingCallbacks) error
}
