package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type StatisticsTestSuite struct {
	suite.Suite
	tempDir string
}

func TestStatisticsSuite(t *testing.T) {
	suite.Run(t, new(StatisticsTestSuite))
}

func (suite *StatisticsTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "statistics_test")
	suite.NoError(err)
	suite.tempDir = tempDir
}

func (suite *StatisticsTestSuite) TearDownTest() {
	os.RemoveAll(suite.tempDir)
}

func (suite *StatisticsTestSuite) TestWriteTradeStats() {
	stats := TradeStats{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		TradeResult: TradeResult{
			NumberOfTrades:        10,
			NumberOfEntries:       12,
			NumberOfWinningTrades: 6,
			NumberOfLosingTrades:  4,
			WinRate:               0.6,
			MaxDrawdown:           4.5,
		},
		TotalFees: 50.0,
		TradeHoldingTime: TradeHoldingTime{
			Min: 2,
			Max: 40,
			Avg: 12,
		},
		TradePnl: TradePnl{
			RealizedPnL:   1000.0,
			MaximumLoss:   -100.0,
			MaximumProfit: 500.0,
		},
		BuyAndHoldPnl:  800.0,
		EntriesBlocked: map[string]int{"cooldown": 7, "htf-veto": 3},
		Strategy:       StrategyInfo{Name: "trend", RSILong: 55, RSILongSoft: 48},
	}

	filePath := filepath.Join(suite.tempDir, "stats.yaml")
	err := WriteTradeStats(filePath, stats)
	suite.NoError(err)

	data, err := os.ReadFile(filePath)
	suite.NoError(err)

	var readStats TradeStats
	err = yaml.Unmarshal(data, &readStats)
	suite.NoError(err)

	suite.Equal("BTCUSDT", readStats.Symbol)
	suite.Equal(10, readStats.TradeResult.NumberOfTrades)
	suite.Equal(12, readStats.TradeResult.NumberOfEntries)
	suite.Equal(0.6, readStats.TradeResult.WinRate)
	suite.Equal(50.0, readStats.TotalFees)
	suite.Equal(40, readStats.TradeHoldingTime.Max)
	suite.Equal(-100.0, readStats.TradePnl.MaximumLoss)
	suite.Equal(800.0, readStats.BuyAndHoldPnl)
	suite.Equal(7, readStats.EntriesBlocked["cooldown"])
	suite.Equal(55.0, readStats.Strategy.RSILong)
}

func (suite *StatisticsTestSuite) TestWriteTradeStatsInvalidPath() {
	filePath := filepath.Join(suite.tempDir, "nonexistent", "dir", "stats.yaml")
	err := WriteTradeStats(filePath, TradeStats{Symbol: "BTCUSDT"})
	suite.Error(err)
}
