package provider

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"golang.org/x/time/rate"
)

// nativeMultipliers lists the aggregate sizes requested directly. Anything else
// is built client-side from the unit-sized bars.
var nativeMultipliers = map[string]map[int]bool{
	"m": {1: true, 5: true, 15: true, 30: true},
	"h": {1: true},
	"d": {1: true},
	"w": {1: true},
	"M": {1: true},
}

// PolygonAggsIterator is the iterator returned by ListAggs.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient abstracts the REST client so tests can inject responses.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

// PolygonClient is the equities backend.
type PolygonClient struct {
	apiClient PolygonAPIClient
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewPolygonClient creates a backend for the given API key.
func NewPolygonClient(apiKey string, limiter *rate.Limiter) (*PolygonClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "apiKey is required")
	}

	return NewPolygonClientWithAPI(&polygonAPIAdapter{client: polygon.New(apiKey)}, limiter), nil
}

// NewPolygonClientWithAPI creates a backend around an injected API client.
func NewPolygonClientWithAPI(apiClient PolygonAPIClient, limiter *rate.Limiter) *PolygonClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &PolygonClient{
		apiClient: apiClient,
		limiter:   limiter,
		now:       time.Now,
	}
}

func (c *PolygonClient) Venue() marketdata.Venue {
	return marketdata.VenueEquities
}

// FetchRange returns up to limit bars opening at or after sinceMs.
func (c *PolygonClient) FetchRange(ctx context.Context, symbol string, tf marketdata.Timeframe, sinceMs int64, limit int) ([]types.MarketData, error) {
	from := time.UnixMilli(sinceMs).UTC()
	to := from.Add(marketdata.CalendarSpan(marketdata.VenueEquities, tf, limit))

	if now := c.now(); to.After(now) {
		to = now
	}

	rows, err := c.fetch(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, err
	}

	if len(rows) > limit {
		rows = rows[:limit]
	}

	return rows, nil
}

// FetchRecent returns the newest limit bars up to now.
func (c *PolygonClient) FetchRecent(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]types.MarketData, error) {
	to := c.now()
	from := to.Add(-marketdata.CalendarSpan(marketdata.VenueEquities, tf, limit))

	rows, err := c.fetch(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, err
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	return rows, nil
}

func (c *PolygonClient) fetch(ctx context.Context, symbol string, tf marketdata.Timeframe, from time.Time, to time.Time) ([]types.MarketData, error) {
	request := tf
	native := nativeMultipliers[tf.Unit()][tf.Multiplier()]

	if !native {
		base, err := marketdata.ParseTimeframe("1" + tf.Unit())
		if err != nil {
			return nil, err
		}

		request = base
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "rate limiter wait aborted", err)
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: request.Multiplier(),
		Timespan:   request.Timespan(),
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithAdjusted(true).WithOrder(models.Asc).WithLimit(50000)

	iter := c.apiClient.ListAggs(ctx, params)

	rows := make([]types.MarketData, 0)

	for iter.Next() {
		agg := iter.Item()
		rows = append(rows, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if iter.Err() != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, iter.Err(), "error iterating polygon aggregates for %s", symbol)
	}

	if !native {
		rows = marketdata.Aggregate(rows, request, tf)
	}

	return rows, nil
}

type polygonAPIAdapter struct {
	client *polygon.Client
}

func (a *polygonAPIAdapter) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return a.client.ListAggs(ctx, params, options...)
}
