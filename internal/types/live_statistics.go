package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineStatus represents the current state of the live trading engine.
type EngineStatus string

const (
	// EngineStatusRestoring indicates the engine is loading the persisted snapshot.
	EngineStatusRestoring EngineStatus = "restoring"

	// EngineStatusRunning indicates the engine is polling the market data backend.
	EngineStatusRunning EngineStatus = "running"

	// EngineStatusBackingOff indicates the last iteration failed and the engine is waiting before retrying.
	EngineStatusBackingOff EngineStatus = "backing_off"

	// EngineStatusStopped indicates the engine has stopped.
	EngineStatusStopped EngineStatus = "stopped"
)

// LiveTradeStats contains statistics for a live trading session.
type LiveTradeStats struct {
	// ID is the run folder name for this session (e.g., "run_1").
	ID string `yaml:"id" json:"id"`

	// SessionID is the unique identifier of the process lifetime.
	SessionID string `yaml:"session_id" json:"session_id"`

	// Date is the run folder date in YYYY-MM-DD format.
	Date string `yaml:"date" json:"date"`

	// SessionStart is when this trading session started.
	SessionStart time.Time `yaml:"session_start" json:"session_start"`

	// LastUpdated is when these statistics were last updated.
	LastUpdated time.Time `yaml:"last_updated" json:"last_updated"`

	Symbol    string `yaml:"symbol" json:"symbol"`
	Timeframe string `yaml:"timeframe" json:"timeframe"`

	// State is flat or long.
	State string `yaml:"state" json:"state"`

	// Equity is the mark-to-market equity at LastUpdated.
	Equity float64 `yaml:"equity" json:"equity"`

	// LastBarTime is the close time of the last processed bar.
	LastBarTime time.Time `yaml:"last_bar_time" json:"last_bar_time"`

	Iterations      int `yaml:"iterations" json:"iterations"`
	IterationErrors int `yaml:"iteration_errors" json:"iteration_errors"`

	// TradeResult contains trade counts and win rate for this session.
	TradeResult TradeResult `yaml:"trade_result" json:"trade_result"`

	// TradePnl contains profit/loss breakdown for this session.
	TradePnl TradePnl `yaml:"trade_pnl" json:"trade_pnl"`

	// TotalFees is the sum of all trading fees paid in this session.
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`

	// EntriesBlocked counts guard rejections per reason over the life of the snapshot.
	EntriesBlocked map[string]int `yaml:"entries_blocked" json:"entries_blocked"`

	TradesFilePath  string `yaml:"trades_file_path" json:"trades_file_path"`
	EquityFilePath  string `yaml:"equity_file_path" json:"equity_file_path"`
	EntriesFilePath string `yaml:"entries_file_path" json:"entries_file_path"`
	StateFilePath   string `yaml:"state_file_path" json:"state_file_path"`

	// Strategy contains the thresholds in effect.
	Strategy StrategyInfo `yaml:"strategy" json:"strategy"`
}

// WriteLiveTradeStats writes live trade statistics to a YAML file.
func WriteLiveTradeStats(path string, stats LiveTradeStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal live trade stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write live trade stats to file: %w", err)
	}

	return nil
}

// ReadLiveTradeStats reads live trade statistics from a YAML file.
func ReadLiveTradeStats(path string) (LiveTradeStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LiveTradeStats{}, fmt.Errorf("failed to read live trade stats file: %w", err)
	}

	var stats LiveTradeStats
	if err := yaml.Unmarshal(data, &stats); err != nil {
		return LiveTradeStats{}, fmt.Errorf("failed to unmarshal live trade stats: %w", err)
	}

	return stats, nil
}

// NewLiveTradeStats creates a new LiveTradeStats for a session started at start.
func NewLiveTradeStats(runID string, symbol string, timeframe string, start time.Time, strategy StrategyInfo) LiveTradeStats {
	return LiveTradeStats{
		ID:              runID,
		SessionID:       "",
		Date:            start.UTC().Format("2006-01-02"),
		SessionStart:    start,
		LastUpdated:     start,
		Symbol:          symbol,
		Timeframe:       timeframe,
		State:           "flat",
		Equity:          0,
		LastBarTime:     time.Time{},
		Iterations:      0,
		IterationErrors: 0,
		TradeResult: TradeResult{
			NumberOfTrades:        0,
			NumberOfEntries:       0,
			NumberOfWinningTrades: 0,
			NumberOfLosingTrades:  0,
			WinRate:               0,
			MaxDrawdown:           0,
		},
		TradePnl: TradePnl{
			RealizedPnL:   0,
			MaximumLoss:   0,
			MaximumProfit: 0,
		},
		TotalFees:       0,
		EntriesBlocked:  map[string]int{},
		TradesFilePath:  "",
		EquityFilePath:  "",
		EntriesFilePath: "",
		StateFilePath:   "",
		Strategy:        strategy,
	}
}
