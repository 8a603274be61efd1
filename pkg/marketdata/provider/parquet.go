package provider

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"go.uber.org/zap"
)

// ParquetBackend serves bars from parquet files written by the download command.
// It lets backtests run offline against a fixed data set.
type ParquetBackend struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	venue  marketdata.Venue
	base   marketdata.Timeframe
	logger *logger.Logger
}

// NewParquetBackend opens an in-memory DuckDB and exposes path (a file or glob)
// as the market_data view. baseTimeframe is the interval stored in the files;
// when empty the files are assumed to hold the requested interval.
func NewParquetBackend(path string, venue marketdata.Venue, baseTimeframe string, log *logger.Logger) (*ParquetBackend, error) {
	if venue == "" {
		venue = marketdata.VenueCrypto
	}

	var base marketdata.Timeframe

	if baseTimeframe != "" {
		parsed, err := marketdata.ParseTimeframe(baseTimeframe)
		if err != nil {
			return nil, err
		}

		base = parsed
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open DuckDB connection", err)
	}

	// Create a view from the parquet file - using raw SQL as Squirrel doesn't support CREATE VIEW
	query := fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM read_parquet('%s');`, strings.ReplaceAll(path, "'", "''"))
	if _, err := db.Exec(query); err != nil {
		db.Close()

		return nil, errors.Wrapf(errors.ErrCodeNoDataFound, err, "failed to read parquet data at %s", path)
	}

	return &ParquetBackend{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		venue:  venue,
		base:   base,
		logger: log,
	}, nil
}

func (p *ParquetBackend) Venue() marketdata.Venue {
	return p.venue
}

// FetchRange returns up to limit bars opening at or after sinceMs.
func (p *ParquetBackend) FetchRange(ctx context.Context, symbol string, tf marketdata.Timeframe, sinceMs int64, limit int) ([]types.MarketData, error) {
	ratio := p.ratio(tf)

	builder := p.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.And{
			squirrel.Eq{"symbol": symbol},
			squirrel.GtOrEq{"time": time.UnixMilli(sinceMs).UTC()},
		}).
		OrderBy("time ASC").
		Limit(uint64(limit * ratio)) //nolint:gosec // limit and ratio are positive

	rows, err := p.query(ctx, builder)
	if err != nil {
		return nil, err
	}

	rows = p.aggregate(rows, tf)
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return rows, nil
}

// FetchRecent returns the newest limit bars in the files.
func (p *ParquetBackend) FetchRecent(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) ([]types.MarketData, error) {
	ratio := p.ratio(tf)

	builder := p.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time DESC").
		Limit(uint64((limit + 1) * ratio)) //nolint:gosec // limit and ratio are positive

	rows, err := p.query(ctx, builder)
	if err != nil {
		return nil, err
	}

	slices.Reverse(rows)

	rows = p.aggregate(rows, tf)
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	return rows, nil
}

// Close releases the DuckDB connection.
func (p *ParquetBackend) Close() error {
	return p.db.Close()
}

func (p *ParquetBackend) ratio(tf marketdata.Timeframe) int {
	if p.base.IsZero() || p.base.Duration() <= 0 || tf.Duration() <= p.base.Duration() {
		return 1
	}

	return int(tf.Duration() / p.base.Duration())
}

func (p *ParquetBackend) aggregate(rows []types.MarketData, tf marketdata.Timeframe) []types.MarketData {
	if p.base.IsZero() {
		return rows
	}

	return marketdata.Aggregate(rows, p.base, tf)
}

func (p *ParquetBackend) query(ctx context.Context, builder squirrel.SelectBuilder) ([]types.MarketData, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	if p.logger != nil {
		p.logger.Debug("Querying parquet bars", zap.String("query", query))
	}

	result, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query parquet bars", err)
	}
	defer result.Close()

	rows := make([]types.MarketData, 0)

	for result.Next() {
		var row types.MarketData

		if err := result.Scan(&row.Time, &row.Symbol, &row.Open, &row.High, &row.Low, &row.Close, &row.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan parquet bar", err)
		}

		row.Time = row.Time.UTC()
		rows = append(rows, row)
	}

	if err := result.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate parquet bars", err)
	}

	return rows, nil
}
