// Package writers produces the run artifacts: the CSV logs, the parquet trade
// mirror and the yaml summary.
package writers

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
)

const (
	TradesFile  = "trades.csv"
	EquityFile  = "equity.csv"
	EntriesFile = "entries.csv"
	ParquetFile = "trades.parquet"
	StatsFile   = "stats.yaml"
)

var (
	tradesHeader  = []string{"time", "side", "px", "qty", "fee", "note"}
	equityHeader  = []string{"time", "equity"}
	entriesHeader = []string{
		"time", "t", "symbol", "timeframe", "side", "price", "rawClose", "qty", "stop",
		"equityBefore", "riskPct", "atr", "entryAtr", "atrPeriod", "stopAtrMult",
		"trailAtrMult", "trailingMode", "trailStartR", "htfTimeframe", "htfMode",
		"reentryAtrAfterWin", "reentryAtrAfterLoss", "rsi", "rsiLong", "rsiLongSoft",
		"strategy", "reason",
	}
)

type csvFile struct {
	file   *os.File
	writer *csv.Writer
}

// CSVJournal appends the trade, equity and entry logs of one run directory.
// Files that already exist are appended to without repeating the header.
type CSVJournal struct {
	dir     string
	trades  csvFile
	equity  csvFile
	entries csvFile
	mu      sync.Mutex
}

// NewCSVJournal opens the three logs under dir, creating dir if needed.
func NewCSVJournal(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to create output directory %s", dir)
	}

	j := &CSVJournal{
		dir:     dir,
		trades:  csvFile{file: nil, writer: nil},
		equity:  csvFile{file: nil, writer: nil},
		entries: csvFile{file: nil, writer: nil},
		mu:      sync.Mutex{},
	}

	var err error

	if j.trades, err = openCSV(filepath.Join(dir, TradesFile), tradesHeader); err != nil {
		return nil, err
	}

	if j.equity, err = openCSV(filepath.Join(dir, EquityFile), equityHeader); err != nil {
		j.trades.file.Close()

		return nil, err
	}

	if j.entries, err = openCSV(filepath.Join(dir, EntriesFile), entriesHeader); err != nil {
		j.trades.file.Close()
		j.equity.file.Close()

		return nil, err
	}

	return j, nil
}

func openCSV(path string, header []string) (csvFile, error) {
	//nolint:gosec // path is built from the configured output directory
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return csvFile{}, errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to open %s", path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return csvFile{}, errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to stat %s", path)
	}

	writer := csv.NewWriter(file)

	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			file.Close()

			return csvFile{}, errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to write header of %s", path)
		}

		writer.Flush()
	}

	return csvFile{file: file, writer: writer}, nil
}

func (j *CSVJournal) Dir() string {
	return j.dir
}

func (j *CSVJournal) TradesPath() string {
	return filepath.Join(j.dir, TradesFile)
}

func (j *CSVJournal) EquityPath() string {
	return filepath.Join(j.dir, EquityFile)
}

func (j *CSVJournal) EntriesPath() string {
	return filepath.Join(j.dir, EntriesFile)
}

// RecordTrade appends one trade row.
func (j *CSVJournal) RecordTrade(trade types.Trade) error {
	return j.append(&j.trades, TradesFile, []string{
		formatTime(trade.Time),
		string(trade.Side),
		formatFloat(trade.Price),
		formatFloat(trade.Qty),
		formatFloat(trade.Fee),
		trade.Note,
	})
}

// RecordEquity appends one equity mark.
func (j *CSVJournal) RecordEquity(point types.EquityPoint) error {
	return j.append(&j.equity, EquityFile, []string{
		formatTime(point.Time),
		formatFloat(point.Equity),
	})
}

// RecordEntry appends the sizing rationale of one entry.
func (j *CSVJournal) RecordEntry(entry types.EntryExecution) error {
	return j.append(&j.entries, EntriesFile, []string{
		formatTime(entry.Time),
		strconv.FormatInt(entry.Time.UnixMilli(), 10),
		entry.Symbol,
		entry.Timeframe,
		string(entry.Side),
		formatFloat(entry.Price),
		formatFloat(entry.RawClose),
		formatFloat(entry.Qty),
		formatFloat(entry.Stop),
		formatFloat(entry.EquityBefore),
		formatFloat(entry.RiskPct),
		formatFloat(entry.ATR),
		formatFloat(entry.EntryATR),
		strconv.Itoa(entry.ATRPeriod),
		formatFloat(entry.StopAtrMult),
		formatFloat(entry.TrailAtrMult),
		entry.TrailingMode,
		formatFloat(entry.TrailStartR),
		entry.HTFTimeframe,
		entry.HTFMode,
		formatFloat(entry.ReentryATRAfterWin),
		formatFloat(entry.ReentryATRAfterLoss),
		formatFloat(entry.RSI),
		formatFloat(entry.RSILong),
		formatFloat(entry.RSILongSoft),
		entry.Strategy,
		entry.Reason,
	})
}

// Close flushes and closes every file. It is safe to call more than once.
func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var first error

	for _, f := range []*csvFile{&j.trades, &j.equity, &j.entries} {
		if f.file == nil {
			continue
		}

		f.writer.Flush()

		if err := f.writer.Error(); err != nil && first == nil {
			first = errors.Wrap(errors.ErrCodeWriterFailed, "failed to flush csv", err)
		}

		if err := f.file.Close(); err != nil && first == nil {
			first = errors.Wrap(errors.ErrCodeWriterFailed, "failed to close csv", err)
		}

		f.file = nil
	}

	return first
}

// append writes and flushes so that a crash loses at most the row in flight.
func (j *CSVJournal) append(f *csvFile, name string, record []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if f.file == nil {
		return errors.Newf(errors.ErrCodeWriterFailed, "%s is closed", name)
	}

	if err := f.writer.Write(record); err != nil {
		return errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to write %s", name)
	}

	f.writer.Flush()

	if err := f.writer.Error(); err != nil {
		return errors.Wrapf(errors.ErrCodeWriterFailed, err, "failed to flush %s", name)
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
