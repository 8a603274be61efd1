package writers

import (
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/shopspring/decimal"
)

// StatsInput is everything a run summary is computed from.
type StatsInput struct {
	Symbol        string
	Timeframe     string
	BarDuration   time.Duration
	Strategy      types.StrategyInfo
	InitialEquity float64
	FinalEquity   float64
	Trades        []types.Trade
	Equity        []types.EquityPoint
	FirstClose    float64
	LastClose     float64
	Blocked       map[guard.Reason]int
	Summary       TradeSummary
	TradesPath    string
	EquityPath    string
	Now           time.Time
}

// BuildStats assembles the run summary written to stats.yaml.
func BuildStats(in StatsInput) types.TradeStats {
	winRate := 0.0
	if in.Summary.RoundTrips > 0 {
		winRate = float64(in.Summary.Winning) / float64(in.Summary.RoundTrips)
	}

	blocked := make(map[string]int, len(guard.Reasons))
	for _, reason := range guard.Reasons {
		blocked[string(reason)] = in.Blocked[reason]
	}

	return types.TradeStats{
		ID:        uuid.New().String(),
		Timestamp: in.Now,
		Symbol:    in.Symbol,
		Timeframe: in.Timeframe,
		TradeResult: types.TradeResult{
			NumberOfTrades:        in.Summary.RoundTrips,
			NumberOfEntries:       in.Summary.Entries,
			NumberOfWinningTrades: in.Summary.Winning,
			NumberOfLosingTrades:  in.Summary.Losing,
			WinRate:               winRate,
			MaxDrawdown:           MaxDrawdownPct(in.Equity),
		},
		TotalFees:        in.Summary.TotalFees,
		TradeHoldingTime: HoldingBars(in.Trades, in.BarDuration),
		TradePnl: types.TradePnl{
			RealizedPnL:   in.Summary.RealizedPnL,
			MaximumLoss:   in.Summary.MaximumLoss,
			MaximumProfit: in.Summary.MaximumProfit,
		},
		InitialEquity:  in.InitialEquity,
		FinalEquity:    in.FinalEquity,
		BuyAndHoldPnl:  BuyAndHoldPnL(in.InitialEquity, in.FirstClose, in.LastClose),
		EntriesBlocked: blocked,
		TradesFilePath: in.TradesPath,
		EquityFilePath: in.EquityPath,
		Strategy:       in.Strategy,
	}
}

// WriteStats writes stats.yaml under dir and returns its path.
func WriteStats(dir string, stats types.TradeStats) (string, error) {
	path := filepath.Join(dir, StatsFile)
	if err := types.WriteTradeStats(path, stats); err != nil {
		return "", errors.Wrap(errors.ErrCodeWriterFailed, "failed to write stats", err)
	}

	return path, nil
}

// MaxDrawdownPct is the largest drop from a running equity peak, in percent of that peak.
func MaxDrawdownPct(points []types.EquityPoint) float64 {
	peak := 0.0
	worst := 0.0

	for _, point := range points {
		if point.Equity > peak {
			peak = point.Equity
		}

		if peak <= 0 {
			continue
		}

		if dd := (peak - point.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}

	return worst
}

// HoldingBars measures each round trip from its first buy to the closing sell,
// in bars of the given duration. Pyramid buys do not restart the clock.
func HoldingBars(trades []types.Trade, bar time.Duration) types.TradeHoldingTime {
	var (
		holding types.TradeHoldingTime
		opened  time.Time
		open    bool
		total   int
		count   int
	)

	if bar <= 0 {
		return holding
	}

	for _, trade := range trades {
		switch trade.Side {
		case types.SideBuy:
			if !open {
				opened = trade.Time
				open = true
			}
		case types.SideSell:
			if !open {
				continue
			}

			bars := int(math.Round(float64(trade.Time.Sub(opened)) / float64(bar)))
			if count == 0 || bars < holding.Min {
				holding.Min = bars
			}

			if bars > holding.Max {
				holding.Max = bars
			}

			total += bars
			count++
			open = false
		}
	}

	if count > 0 {
		holding.Avg = int(math.Round(float64(total) / float64(count)))
	}

	return holding
}

// BuyAndHoldPnL is the profit of putting the whole initial equity into the
// instrument at the first close and holding to the last.
func BuyAndHoldPnL(initialEquity, firstClose, lastClose float64) float64 {
	if firstClose <= 0 {
		return 0
	}

	equity := decimal.NewFromFloat(initialEquity)

	return equity.
		Mul(decimal.NewFromFloat(lastClose)).
		Div(decimal.NewFromFloat(firstClose)).
		Sub(equity).
		InexactFloat64()
}
