package writers

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
)

// TradeSummary aggregates the closing trades held by a TradesWriter.
type TradeSummary struct {
	RoundTrips    int
	Entries       int
	Winning       int
	Losing        int
	RealizedPnL   float64
	TotalFees     float64
	MaximumLoss   float64
	MaximumProfit float64
}

// TradesWriter mirrors the trade log into a parquet file through an in-memory DuckDB table.
type TradesWriter struct {
	db            *sql.DB
	sq            squirrel.StatementBuilderType
	outputPath    string
	exportOnWrite bool
	mu            sync.Mutex
}

// NewTradesWriter creates a writer exporting to outputPath.
func NewTradesWriter(outputPath string) *TradesWriter {
	return &TradesWriter{
		db:            nil,
		sq:            squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		outputPath:    outputPath,
		exportOnWrite: true,
		mu:            sync.Mutex{},
	}
}

// SetExportOnWrite controls whether every write rewrites the parquet file.
// Backtests turn it off and Flush once at the end.
func (w *TradesWriter) SetExportOnWrite(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.exportOnWrite = enabled
}

// Initialize opens DuckDB and creates the trades table. Rows from an existing
// parquet file at the output path are loaded so a resumed session keeps appending.
func (w *TradesWriter) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(w.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeWriterFailed, "failed to create data directory", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriterFailed, "failed to open DuckDB connection", err)
	}

	w.db = db

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			time TIMESTAMP,
			side TEXT,
			px DOUBLE,
			qty DOUBLE,
			fee DOUBLE,
			pnl DOUBLE,
			note TEXT
		)
	`)
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeWriterFailed, "failed to create trades table", err)
	}

	if _, err := os.Stat(w.outputPath); err == nil {
		// COPY and read_parquet take no bind parameters
		_, err = w.db.Exec(fmt.Sprintf(`INSERT INTO trades SELECT * FROM read_parquet('%s')`, w.outputPath))
		if err != nil {
			w.db.Close()
			w.db = nil

			return errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to load existing trades from %s", w.outputPath)
		}
	}

	return nil
}

// Write stores one trade and, unless disabled, re-exports the parquet file.
func (w *TradesWriter) Write(trade types.Trade) error {
	return w.WriteBatch([]types.Trade{trade})
}

// WriteBatch stores trades in order and exports once.
func (w *TradesWriter) WriteBatch(trades []types.Trade) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodeWriterFailed, "writer not initialized")
	}

	if len(trades) == 0 {
		return nil
	}

	insert := w.sq.Insert("trades").Columns("time", "side", "px", "qty", "fee", "pnl", "note")
	for _, trade := range trades {
		insert = insert.Values(trade.Time, string(trade.Side), trade.Price, trade.Qty, trade.Fee, trade.PnL, trade.Note)
	}

	if _, err := insert.RunWith(w.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeWriterFailed, "failed to insert trades", err)
	}

	if !w.exportOnWrite {
		return nil
	}

	return w.exportToParquet()
}

// Flush forces an export to parquet.
func (w *TradesWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodeWriterFailed, "writer not initialized")
	}

	return w.exportToParquet()
}

func (w *TradesWriter) GetOutputPath() string {
	return w.outputPath
}

// Close releases database resources. It is safe to call more than once.
func (w *TradesWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			return errors.Wrap(errors.ErrCodeWriterFailed, "failed to close database", err)
		}

		w.db = nil
	}

	return nil
}

// GetTradeCount returns the number of stored rows, buys and sells alike.
func (w *TradesWriter) GetTradeCount() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return 0, errors.New(errors.ErrCodeWriterFailed, "writer not initialized")
	}

	var count int

	if err := w.sq.Select("COUNT(*)").From("trades").RunWith(w.db).QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeWriterFailed, "failed to count trades", err)
	}

	return count, nil
}

// Summary aggregates closing trades. Fees and P&L live on the sells only.
func (w *TradesWriter) Summary() (TradeSummary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var summary TradeSummary

	if w.db == nil {
		return summary, errors.New(errors.ErrCodeWriterFailed, "writer not initialized")
	}

	err := w.sq.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(pnl), 0)",
			"COALESCE(SUM(fee), 0)",
			"COALESCE(MIN(pnl), 0)",
			"COALESCE(MAX(pnl), 0)",
		).
		From("trades").
		Where(squirrel.Eq{"side": string(types.SideSell)}).
		RunWith(w.db).
		QueryRow().
		Scan(
			&summary.RoundTrips,
			&summary.Winning,
			&summary.Losing,
			&summary.RealizedPnL,
			&summary.TotalFees,
			&summary.MaximumLoss,
			&summary.MaximumProfit,
		)
	if err != nil {
		return summary, errors.Wrap(errors.ErrCodeWriterFailed, "failed to summarize trades", err)
	}

	err = w.sq.
		Select("COUNT(*)").
		From("trades").
		Where(squirrel.Eq{"side": string(types.SideBuy)}).
		RunWith(w.db).
		QueryRow().
		Scan(&summary.Entries)
	if err != nil {
		return summary, errors.Wrap(errors.ErrCodeWriterFailed, "failed to count entries", err)
	}

	return summary, nil
}

//nolint:funcorder // helper used by WriteBatch and Flush
func (w *TradesWriter) exportToParquet() error {
	_, err := w.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM trades ORDER BY time ASC) TO '%s' (FORMAT PARQUET)`, w.outputPath))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to export trades to %s", w.outputPath)
	}

	return nil
}
