package provider

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"golang.org/x/time/rate"
)

// ProviderType selects a market data backend.
type ProviderType string

const (
	ProviderBinance ProviderType = "crypto"
	ProviderPolygon ProviderType = "equities"
	ProviderParquet ProviderType = "parquet"
)

// BackendConfig carries everything needed to construct one backend.
type BackendConfig struct {
	Type          ProviderType `validate:"required,oneof=crypto equities parquet"`
	PolygonApiKey string       `validate:"required_if=Type equities"`
	// ParquetPath is a file or glob of files written by the download command.
	ParquetPath string `validate:"required_if=Type parquet"`
	// ParquetVenue tells the pipeline how the stored bars close.
	ParquetVenue marketdata.Venue
	// ParquetBaseTimeframe is the interval stored in the files. Empty means the files
	// already hold the requested interval.
	ParquetBaseTimeframe string
	// RequestsPerSecond and Burst bound network calls. Zero disables limiting.
	RequestsPerSecond float64 `validate:"min=0"`
	Burst             int     `validate:"min=0"`
	Retry             marketdata.RetryConfig
}

// NewBackend creates the backend selected by config and wraps it with retry.
func NewBackend(config BackendConfig, log *logger.Logger) (marketdata.Backend, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidBackend, "invalid backend configuration", err)
	}

	var (
		backend marketdata.Backend
		err     error
	)

	limiter := newLimiter(config.RequestsPerSecond, config.Burst)

	switch config.Type {
	case ProviderBinance:
		backend = NewBinanceClient(limiter)
	case ProviderPolygon:
		backend, err = NewPolygonClient(config.PolygonApiKey, limiter)
	case ProviderParquet:
		backend, err = NewParquetBackend(config.ParquetPath, config.ParquetVenue, config.ParquetBaseTimeframe, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidBackend, "unsupported market data backend: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", config.Type, err)
	}

	return marketdata.NewRetryBackend(backend, config.Retry, log), nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
