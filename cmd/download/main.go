package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata/provider"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// downloadAction builds the backend, pages the range into parquet and reports progress.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	backendType := provider.ProviderType(cmd.String("provider"))
	if backendType == provider.ProviderParquet {
		return fmt.Errorf("download needs a network provider, not %s", backendType)
	}

	if _, err := provider.GetProviderInfo(string(backendType)); err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // stderr sync fails on some terminals

	cfg := config.Default()
	cfg.Backend = backendType
	cfg.RateLimit.PerSecond = cmd.Float("rate")

	backend, err := provider.NewBackend(cfg.BackendConfig(), log)
	if err != nil {
		return err
	}

	params := provider.DownloadParams{
		Symbol:    cmd.String("ticker"),
		Timeframe: cmd.String("timeframe"),
		StartDate: cmd.Timestamp("start").UTC(),
		EndDate:   cmd.Timestamp("end").UTC(),
		DataPath:  cmd.String("data"),
	}

	var bar *progressbar.ProgressBar

	onProgress := func(current float64, total float64, message string) {
		if bar == nil {
			bar = progressbar.NewOptions(int(total),
				progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", params.Symbol)),
				progressbar.OptionShowCount(),
			)
		}

		bar.Describe(message)
		_ = bar.Set(int(current))
	}

	log.Sugar().Infof("Starting download for %s %s from %s to %s using %s",
		params.Symbol, params.Timeframe,
		params.StartDate.Format(time.DateOnly), params.EndDate.Format(time.DateOnly), backendType)

	path, err := provider.NewDownloader(backend, onProgress, log).Download(ctx, params)
	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("\nDownloaded data to %s\n", path)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "download",
		Usage: "Download historical bars into a parquet file for backend=parquet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ticker",
				Aliases:  []string{"t"},
				Usage:    "Symbol such as BTCUSDT or SPY",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "timeframe",
				Aliases: []string{"i"},
				Usage:   "Bar interval such as 15m, 1h or 1d",
				Value:   "1h",
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format (or other RFC3339 compatible)",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02", time.RFC3339},
				},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format (or other RFC3339 compatible). Defaults to today.",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02", time.RFC3339},
				},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Data provider to use (%s or %s)", provider.ProviderBinance, provider.ProviderPolygon),
				Value:   string(provider.ProviderBinance),
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Requests per second. 0 disables limiting",
				Value: 5,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the data output directory",
				Value:   "data",
			},
		},
		Action: downloadAction,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
