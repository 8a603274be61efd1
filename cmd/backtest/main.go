package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/backtest/engine"
	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata/provider"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if symbol := cmd.String("symbol"); symbol != "" {
		cfg.Symbol = symbol
	}

	if lookback := cmd.Int("lookback"); lookback > 0 {
		cfg.Backtest.LookbackBars = int(lookback)
	}

	if end := cmd.Timestamp("end"); !end.IsZero() {
		cfg.Backtest.EndTime = end.UTC().Format(time.RFC3339)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // stderr sync fails on some terminals

	backend, err := provider.NewBackend(cfg.BackendConfig(), log)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onStart := engine.OnRunStartCallback(func(runID string, symbol string, totalBars int) error {
		bar = progressbar.NewOptions(totalBars,
			progressbar.OptionSetDescription(fmt.Sprintf("Backtesting %s", symbol)),
			progressbar.OptionShowCount(),
		)
		log.Debug("Backtest started", zap.String("run_id", runID), zap.Int("bars", totalBars))

		return nil
	})
	onProcess := engine.OnProcessDataCallback(func(current int, _ int) error {
		return bar.Set(current)
	})

	result, err := engine.NewBacktest(cfg, backend, log).Run(ctx, engine.LifecycleCallbacks{
		OnRunStart:    &onStart,
		OnProcessData: &onProcess,
		OnRunEnd:      nil,
	})
	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil {
		return err
	}

	stats := result.Stats
	fmt.Printf("\nRun %s\n", result.RunID)
	fmt.Printf("  bars:          %d\n", result.Bars)
	fmt.Printf("  round trips:   %d (win rate %.1f%%)\n", stats.TradeResult.NumberOfTrades, stats.TradeResult.WinRate*100)
	fmt.Printf("  realized pnl:  %.2f (fees %.2f)\n", stats.TradePnl.RealizedPnL, stats.TotalFees)
	fmt.Printf("  final equity:  %.2f (buy and hold pnl %.2f)\n", result.FinalEquity, stats.BuyAndHoldPnl)
	fmt.Printf("  max drawdown:  %.2f%%\n", stats.TradeResult.MaxDrawdown)
	fmt.Printf("  output:        %s\n", result.OutputDir)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay the guarded long-only strategy over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or JSON run config. Defaults apply when omitted",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "Override the configured symbol",
			},
			&cli.IntFlag{
				Name:    "lookback",
				Aliases: []string{"n"},
				Usage:   "Override the number of bars to trade after warm-up",
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End of the window in `YYYY-MM-DD` format. Defaults to now",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02", time.RFC3339},
				},
			},
		},
		Action: backtestAction,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
