package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/trading/engine"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata/provider"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func tradingAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if stateFile := cmd.String("state"); stateFile != "" {
		cfg.Live.StateFile = stateFile
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

	onStart := engine.OnEngineStartCallback(func(runID string, symbol string, restored bool) error {
		log.Info("Live trading started",
			zap.String("run_id", runID),
			zap.String("symbol", symbol),
			zap.Bool("restored", restored),
		)

		return nil
	})
	onIteration := engine.OnIterationCallback(func(iteration engine.Iteration) error {
		for _, tick := range iteration.Closed {
			if tick.Entered || tick.Exited || tick.Added {
				log.Info("Bar acted on",
					zap.Time("bar_time", tick.Time),
					zap.Bool("entered", tick.Entered),
					zap.Bool("exited", tick.Exited),
					zap.Bool("added", tick.Added),
				)
			}
		}

		log.Debug("Iteration done",
			zap.Int("iteration", iteration.Number),
			zap.Int("closed_bars", len(iteration.Closed)),
			zap.String("state", iteration.State.String()),
			zap.Float64("equity", iteration.Equity),
		)

		return nil
	})
	onStatus := engine.OnStatusUpdateCallback(func(status types.EngineStatus) error {
		log.Debug("Engine status", zap.String("status", string(status)))

		return nil
	})
	onStop := engine.OnEngineStopCallback(func(err error) {
		if err != nil {
			log.Error("Live trading stopped", zap.Error(err))

			return
		}

		log.Info("Live trading stopped")
	})

	live := engine.NewLive(cfg, backend, log)

	return live.Run(ctx, engine.LiveTradingCallbacks{
		OnEngineStart:  &onStart,
		OnEngineStop:   &onStop,
		OnIteration:    &onIteration,
		OnError:        nil,
		OnStatusUpdate: &onStatus,
	})
}

func main() {
	cmd := &cli.Command{
		Name:  "trading",
		Usage: "Poll the market data backend and paper trade one symbol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or JSON run config. Defaults apply when omitted",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Override the snapshot file",
			},
		},
		Action: tradingAction,
	}

	// SIGTERM and SIGINT cancel the context; the engine saves state before Run returns
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
