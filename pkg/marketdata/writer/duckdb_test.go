package writer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type DuckDBWriterTestSuite struct {
	suite.Suite
	tempDir string
}

func TestDuckDBWriterSuite(t *testing.T) {
	suite.Run(t, new(DuckDBWriterTestSuite))
}

func (suite *DuckDBWriterTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func bar(symbol string, at time.Time, price float64) types.MarketData {
	return types.MarketData{
		Id:     "",
		Symbol: symbol,
		Time:   at,
		Open:   price - 1,
		High:   price + 1,
		Low:    price - 2,
		Close:  price,
		Volume: 1000,
	}
}

func (suite *DuckDBWriterTestSuite) TestNewDuckDBWriter() {
	outputPath := filepath.Join(suite.tempDir, "test.parquet")
	writer := NewDuckDBWriter(outputPath, nil)

	suite.Equal(outputPath, writer.GetOutputPath())
	suite.Nil(writer.db)
	suite.Nil(writer.tx)
	suite.Nil(writer.stmt)
	suite.Zero(writer.Count())
}

func (suite *DuckDBWriterTestSuite) TestWriteWithoutInitialize() {
	writer := NewDuckDBWriter(filepath.Join(suite.tempDir, "no_init.parquet"), nil)

	err := writer.Write(bar("AAPL", time.Now(), 150))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataWriteFailed))
	suite.Contains(err.Error(), "not initialized")
}

func (suite *DuckDBWriterTestSuite) TestFinalizeWithoutInitialize() {
	writer := NewDuckDBWriter(filepath.Join(suite.tempDir, "no_init.parquet"), nil)

	_, err := writer.Finalize()
	suite.Error(err)
}

func (suite *DuckDBWriterTestSuite) TestWriteBatchAndFinalize() {
	outputPath := filepath.Join(suite.tempDir, "nested", "batch.parquet")
	writer := NewDuckDBWriter(outputPath, nil)
	suite.Require().NoError(writer.Initialize())

	defer writer.Close()

	base := time.Date(2023, 6, 15, 9, 30, 0, 0, time.UTC)
	rows := make([]types.MarketData, 0, 10)

	// written newest first; the export orders by time
	for i := 9; i >= 0; i-- {
		rows = append(rows, bar("AAPL", base.Add(time.Duration(i)*time.Minute), 150+float64(i)))
	}

	suite.Require().NoError(writer.WriteBatch(rows))
	suite.Equal(10, writer.Count())

	path, err := writer.Finalize()
	suite.Require().NoError(err)
	suite.Equal(outputPath, path)

	_, err = os.Stat(outputPath)
	suite.Require().NoError(err)

	db, err := sql.Open("duckdb", "")
	suite.Require().NoError(err)

	defer db.Close()

	var (
		count int
		first float64
	)

	err = db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM read_parquet('%s')`, outputPath)).Scan(&count)
	suite.Require().NoError(err)
	suite.Equal(10, count)

	err = db.QueryRow(fmt.Sprintf(`SELECT close FROM read_parquet('%s') LIMIT 1`, outputPath)).Scan(&first)
	suite.Require().NoError(err)
	suite.Equal(150.0, first)
}

func (suite *DuckDBWriterTestSuite) TestCloseIsIdempotent() {
	writer := NewDuckDBWriter(filepath.Join(suite.tempDir, "close.parquet"), nil)
	suite.Require().NoError(writer.Initialize())

	suite.NoError(writer.Close())
	suite.NoError(writer.Close())
}
