package writer

import (
	"github.com/rxtech-lab/argo-guard/internal/types"
)

// MarketDataWriter persists downloaded bars.
type MarketDataWriter interface {
	// Initialize creates the staging table and opens a transaction.
	Initialize() error
	// Write stages a single bar.
	Write(data types.MarketData) error
	// WriteBatch stages many bars in order.
	WriteBatch(rows []types.MarketData) error
	// Finalize commits and exports. It returns the written file path.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// Count is the number of staged rows.
	Count() int
	GetOutputPath() string
}
