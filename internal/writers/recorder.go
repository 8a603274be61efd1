package writers

import (
	"path/filepath"

	"github.com/rxtech-lab/argo-guard/internal/types"
)

// Recorder is the journal handed to the trader. Trades go to trades.csv and to
// the parquet mirror; entries and equity marks go to their CSV logs.
type Recorder struct {
	*CSVJournal
	parquet *TradesWriter
	closed  bool
}

// NewRecorder opens every artifact of a run under dir.
func NewRecorder(dir string, exportOnWrite bool) (*Recorder, error) {
	journal, err := NewCSVJournal(dir)
	if err != nil {
		return nil, err
	}

	parquet := NewTradesWriter(filepath.Join(dir, ParquetFile))
	parquet.SetExportOnWrite(exportOnWrite)

	if err := parquet.Initialize(); err != nil {
		journal.Close()

		return nil, err
	}

	return &Recorder{CSVJournal: journal, parquet: parquet, closed: false}, nil
}

func (r *Recorder) RecordTrade(trade types.Trade) error {
	if err := r.CSVJournal.RecordTrade(trade); err != nil {
		return err
	}

	return r.parquet.Write(trade)
}

func (r *Recorder) ParquetPath() string {
	return r.parquet.GetOutputPath()
}

// Summary flushes the parquet mirror and aggregates it.
func (r *Recorder) Summary() (TradeSummary, error) {
	if err := r.parquet.Flush(); err != nil {
		return TradeSummary{}, err
	}

	return r.parquet.Summary()
}

// Close flushes and releases everything. The first error wins.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	journalErr := r.CSVJournal.Close()

	if err := r.parquet.Flush(); err != nil && journalErr == nil {
		journalErr = err
	}

	if err := r.parquet.Close(); err != nil && journalErr == nil {
		journalErr = err
	}

	return journalErr
}
