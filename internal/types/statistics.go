package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a trade in bars
	Min int `yaml:"min"`
	// Maximum holding time of a trade in bars
	Max int `yaml:"max"`
	// Average holding time of a trade in bars
	Avg int `yaml:"avg"`
}

type TradePnl struct {
	// Realized PnL net of fees, summed over all closing trades.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Maximum loss. The smallest realized pnl of a single round trip.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. The largest realized pnl of a single round trip.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of closed round trips.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of entries including pyramid adds.
	NumberOfEntries int `yaml:"number_of_entries"`
	// Count of winning trades that has positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of losing trades that has negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
	// Maximum drawdown of the equity curve, in percent of the running peak.
	MaxDrawdown float64 `yaml:"max_drawdown"`
}

// StrategyInfo contains the thresholds in effect for the run.
type StrategyInfo struct {
	Name        string  `yaml:"name" json:"name"`
	RSILong     float64 `yaml:"rsi_long" json:"rsiLong"`
	RSILongSoft float64 `yaml:"rsi_long_soft" json:"rsiLongSoft"`
}

type TradeStats struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Symbol    string    `yaml:"symbol"`
	Timeframe string    `yaml:"timeframe"`
	// Result of all trades.
	TradeResult      TradeResult      `yaml:"trade_result"`
	TotalFees        float64          `yaml:"total_fees"`
	TradeHoldingTime TradeHoldingTime `yaml:"trade_holding_time"`
	TradePnl         TradePnl         `yaml:"trade_pnl"`
	InitialEquity    float64          `yaml:"initial_equity"`
	FinalEquity      float64          `yaml:"final_equity"`
	// Buy and hold PnL over the same window with the same starting equity.
	BuyAndHoldPnl float64 `yaml:"buy_and_hold_pnl"`
	// EntriesBlocked counts guard rejections per reason.
	EntriesBlocked map[string]int `yaml:"entries_blocked"`
	TradesFilePath string         `yaml:"trades_file_path" json:"trades_file_path"`
	EquityFilePath string         `yaml:"equity_file_path" json:"equity_file_path"`
	Strategy       StrategyInfo   `yaml:"strategy" json:"strategy"`
}

func WriteTradeStats(path string, stats TradeStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal trade stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trade stats to file: %w", err)
	}

	return nil
}
