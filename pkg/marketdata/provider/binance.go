package provider

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"golang.org/x/time/rate"
)

// binancePageSize is the maximum number of klines per request.
const binancePageSize = 1000

// binanceIntervals are the kline intervals the exchange offers.
var binanceIntervals = map[string]bool{
	"1s": true, "1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// BinanceKlinesService is the subset of the klines request builder we use.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Limit(limit int) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceAPIClient abstracts the exchange client so tests can inject responses.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

// BinanceClient is the crypto exchange backend.
type BinanceClient struct {
	apiClient BinanceAPIClient
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewBinanceClient creates a backend using the public market data API.
func NewBinanceClient(limiter *rate.Limiter) *BinanceClient {
	return NewBinanceClientWithAPI(&binanceAPIAdapter{client: binance.NewClient("", "")}, limiter)
}

// NewBinanceClientWithAPI creates a backend around an injected API client.
func NewBinanceClientWithAPI(apiClient BinanceAPIClient, limiter *rate.Limiter) *BinanceClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &BinanceClient{
		apiClient: apiClient,
		limiter:   limiter,
		now:       time.Now,
	}
}

func (c *BinanceClient) Venue() marketdata.Venue {
	return marketdata.VenueCrypto
}

// FetchRange pages forward from sinceMs until limit bars are collected or the
// exchange runs out of data.
func (c *BinanceClient) FetchRange(ctx context.Context, symbol string, tf marketdata.Timeframe, sinceMs int64, limit int) ([]types.MarketData, error) {
	interval, err := convertTimeframeToBinanceInterval(tf)
	if err != nil {
		return nil, err
	}

	out := make([]types.MarketData, 0, limit)
	start := sinceMs
	end := c.now().UnixMilli()

	for len(out) < limit && start < end {
		pageSize := min(binancePageSize, limit-len(out))

		klines, err := c.fetchPage(ctx, symbol, interval, start, end, pageSize)
		if err != nil {
			return nil, err
		}

		rows, err := processKlines(symbol, klines)
		if err != nil {
			return nil, err
		}

		out = append(out, rows...)

		if len(klines) < pageSize {
			break
		}

		// Continue after the close of the last kline to avoid duplicates
		start = klines[len(klines)-1].CloseTime + 1
	}

	return out, nil
}

// FetchRecent returns the newest limit bars, including the forming one.
func (c *BinanceClient) FetchRecent(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]types.MarketData, error) {
	interval, err := convertTimeframeToBinanceInterval(tf)
	if err != nil {
		return nil, err
	}

	if limit <= binancePageSize {
		klines, err := c.fetchPage(ctx, symbol, interval, 0, 0, limit)
		if err != nil {
			return nil, err
		}

		return processKlines(symbol, klines)
	}

	since := c.now().Add(-time.Duration(limit) * tf.Duration()).UnixMilli()

	rows, err := c.FetchRange(ctx, symbol, tf, since, limit+1)
	if err != nil {
		return nil, err
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	return rows, nil
}

func (c *BinanceClient) fetchPage(ctx context.Context, symbol string, interval string, start int64, end int64, limit int) ([]*binance.Kline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "rate limiter wait aborted", err)
	}

	service := c.apiClient.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit)

	if start > 0 {
		service = service.StartTime(start)
	}

	if end > 0 {
		service = service.EndTime(end)
	}

	klines, err := service.Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s %s klines", symbol, interval)
	}

	return klines, nil
}

// processKlines converts exchange klines to rows. Time is the kline open time.
func processKlines(symbol string, klines []*binance.Kline) ([]types.MarketData, error) {
	rows := make([]types.MarketData, 0, len(klines))

	for _, k := range klines {
		values := [5]float64{}

		for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid kline value %q", raw)
			}

			values[i] = v
		}

		rows = append(rows, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	return rows, nil
}

// convertTimeframeToBinanceInterval validates tf against the exchange intervals.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func convertTimeframeToBinanceInterval(tf marketdata.Timeframe) (string, error) {
	interval := tf.String()
	if !binanceIntervals[interval] {
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe for Binance: %q", interval)
	}

	return interval, nil
}

type binanceAPIAdapter struct {
	client *binance.Client
}

func (a *binanceAPIAdapter) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesAdapter{service: a.client.NewKlinesService()}
}

type binanceKlinesAdapter struct {
	service *binance.KlinesService
}

func (a *binanceKlinesAdapter) Symbol(symbol string) BinanceKlinesService {
	a.service.Symbol(symbol)

	return a
}

func (a *binanceKlinesAdapter) Interval(interval string) BinanceKlinesService {
	a.service.Interval(interval)

	return a
}

func (a *binanceKlinesAdapter) StartTime(startTime int64) BinanceKlinesService {
	a.service.StartTime(startTime)

	return a
}

func (a *binanceKlinesAdapter) EndTime(endTime int64) BinanceKlinesService {
	a.service.EndTime(endTime)

	return a
}

func (a *binanceKlinesAdapter) Limit(limit int) BinanceKlinesService {
	a.service.Limit(limit)

	return a
}

func (a *binanceKlinesAdapter) Do(ctx context.Context) ([]*binance.Kline, error) {
	return a.service.Do(ctx)
}
