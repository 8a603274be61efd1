package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata/writer"
	"github.com/rxtech-lab/argo-guard/pkg/utils"
	"go.uber.org/zap"
)

// downloadPageSize is the number of bars requested per backend call.
const downloadPageSize = 1000

// OnDownloadProgress reports progress as bars written against the estimated total.
type OnDownloadProgress = func(current float64, total float64, message string)

// ProviderInfo describes a market data backend for the CLI.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
}

var providerRegistry = []ProviderInfo{
	{
		Name:         string(ProviderBinance),
		DisplayName:  "Binance",
		Description:  "Crypto spot klines from the public market data API",
		RequiresAuth: false,
	},
	{
		Name:         string(ProviderPolygon),
		DisplayName:  "Polygon.io",
		Description:  "US equities aggregates, adjusted for splits",
		RequiresAuth: true,
	},
	{
		Name:         string(ProviderParquet),
		DisplayName:  "Parquet",
		Description:  "Local parquet files written by the download command",
		RequiresAuth: false,
	},
}

// GetSupportedProviders lists the backends in display order.
func GetSupportedProviders() []ProviderInfo {
	out := make([]ProviderInfo, len(providerRegistry))
	copy(out, providerRegistry)

	return out
}

// GetProviderInfo returns metadata for one backend.
func GetProviderInfo(name string) (ProviderInfo, error) {
	for _, info := range providerRegistry {
		if info.Name == name {
			return info, nil
		}
	}

	return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidBackend, "unsupported provider: %s", name)
}

// DownloadParams describes one historical download.
type DownloadParams struct {
	Symbol    string    `json:"symbol" jsonschema:"title=Symbol,description=Instrument to download (e.g. BTCUSDT or SPY),required" validate:"required"`
	Timeframe string    `json:"timeframe" jsonschema:"title=Timeframe,description=Bar interval such as 15m or 1d,required" validate:"required"`
	StartDate time.Time `json:"startDate" jsonschema:"title=Start Date,format=date-time,required" validate:"required"`
	EndDate   time.Time `json:"endDate" jsonschema:"title=End Date,format=date-time,required" validate:"required,gtfield=StartDate"`
	DataPath  string    `json:"dataPath" jsonschema:"title=Data Path,description=Directory receiving the parquet file,required" validate:"required"`
}

// GetDownloadParamsSchema returns the JSON schema of DownloadParams.
func GetDownloadParamsSchema() (string, error) {
	//nolint:exhaustruct // Empty struct is intentional for schema generation
	return utils.GetSchemaFromConfig(DownloadParams{})
}

// OutputPath is SYMBOL_START_END_TIMEFRAME.parquet under DataPath.
func (p DownloadParams) OutputPath() string {
	name := fmt.Sprintf("%s_%s_%s_%s.parquet",
		p.Symbol,
		p.StartDate.Format("2006-01-02"),
		p.EndDate.Format("2006-01-02"),
		p.Timeframe)

	return filepath.Join(p.DataPath, name)
}

// Downloader pages a backend over a date range into a parquet file.
type Downloader struct {
	backend    marketdata.Backend
	validate   *validator.Validate
	onProgress OnDownloadProgress
	logger     *logger.Logger
}

// NewDownloader creates a downloader. onProgress may be nil.
func NewDownloader(backend marketdata.Backend, onProgress OnDownloadProgress, log *logger.Logger) *Downloader {
	return &Downloader{
		backend:    backend,
		validate:   validator.New(),
		onProgress: onProgress,
		logger:     log,
	}
}

// Download fetches [StartDate, EndDate) and writes it to params.OutputPath().
func (d *Downloader) Download(ctx context.Context, params DownloadParams) (string, error) {
	if err := d.validate.Struct(params); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	tf, err := marketdata.ParseTimeframe(params.Timeframe)
	if err != nil {
		return "", err
	}

	marketWriter := writer.NewDuckDBWriter(params.OutputPath(), d.logger)
	if err := marketWriter.Initialize(); err != nil {
		return "", err
	}

	defer func() {
		if err := marketWriter.Close(); err != nil && d.logger != nil {
			d.logger.Warn("Failed to close writer", zap.Error(err))
		}
	}()

	total := float64(params.EndDate.Sub(params.StartDate) / tf.Duration())
	since := params.StartDate.UnixMilli()
	end := params.EndDate.UTC()

	for since < end.UnixMilli() {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "download cancelled", err)
		}

		rows, err := d.backend.FetchRange(ctx, params.Symbol, tf, since, downloadPageSize)
		if err != nil {
			return "", err
		}

		page := keepBefore(rows, end)
		if err := marketWriter.WriteBatch(page); err != nil {
			return "", err
		}

		if d.onProgress != nil {
			d.onProgress(float64(marketWriter.Count()), total, fmt.Sprintf("Downloaded %d bars", marketWriter.Count()))
		}

		if len(page) == 0 || len(page) < len(rows) {
			break
		}

		since = page[len(page)-1].Time.Add(tf.Duration()).UnixMilli()
	}

	if marketWriter.Count() == 0 {
		return "", errors.Newf(errors.ErrCodeNoDataFound, "no %s bars for %s between %s and %s",
			tf, params.Symbol, params.StartDate.Format(time.RFC3339), params.EndDate.Format(time.RFC3339))
	}

	return marketWriter.Finalize()
}

func keepBefore(rows []types.MarketData, end time.Time) []types.MarketData {
	for i, row := range rows {
		if !row.Time.Before(end) {
			return rows[:i]
		}
	}

	return rows
}
