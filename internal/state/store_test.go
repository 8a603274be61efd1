package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/guard"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/position"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/internal/version"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	dir   string
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (suite *StoreTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.store = NewStore(filepath.Join(suite.dir, "nested", "state.json"), logger.NewNopLogger())
}

func (suite *StoreTestSuite) snapshot() Snapshot {
	guards := guard.NewState(3)
	guards.ConsecutiveLosses = 2
	guards.CooldownLeft = 4
	guards.DayStamp = "2024-03-01"
	guards.Blocked[guard.ReasonCooldown] = 7

	entry := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	return Snapshot{
		Version:   "",
		RunID:     "run-1",
		SavedAt:   entry.Add(time.Hour),
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Broker: position.State{
			Equity: 10125.5,
			Position: types.Position{
				Size:        2.5,
				Entry:       100,
				Stop:        97,
				EntryATR:    1.5,
				Peak:        104,
				HoldBars:    6,
				Adds:        1,
				RiskBudget:  100,
				InitialSize: 2,
				EntryTime:   entry,
			},
			Trades: []types.Trade{
				{Time: entry, Side: types.SideBuy, Price: 100, Qty: 2, Fee: 0, PnL: 0, Note: position.NoteEnter},
			},
		},
		Guards:      guards,
		Strategy:    types.StrategyInfo{Name: "trend", RSILong: 55, RSILongSoft: 48},
		LastBarTime: entry.Add(6 * time.Hour),
	}
}

func (suite *StoreTestSuite) TestLoadMissingFile() {
	_, found, err := suite.store.Load()
	suite.Require().NoError(err)
	suite.False(found)
}

func (suite *StoreTestSuite) TestSaveAndLoad() {
	want := suite.snapshot()
	suite.Require().NoError(suite.store.Save(want))

	got, found, err := suite.store.Load()
	suite.Require().NoError(err)
	suite.Require().True(found)

	suite.Equal(version.GetVersion(), got.Version)
	suite.Equal(want.Timeframe, got.Timeframe)
	suite.Equal(want.RunID, got.RunID)
	suite.Equal(want.Broker.Position, got.Broker.Position)
	suite.Equal(want.Broker.Equity, got.Broker.Equity)
	suite.Len(got.Broker.Trades, 1)
	suite.Equal(want.Guards.ConsecutiveLosses, got.Guards.ConsecutiveLosses)
	suite.Equal(want.Guards.CooldownLeft, got.Guards.CooldownLeft)
	suite.Equal(7, got.Guards.Blocked[guard.ReasonCooldown])
	suite.Equal(want.Strategy, got.Strategy)
	suite.True(want.LastBarTime.Equal(got.LastBarTime))
}

func (suite *StoreTestSuite) TestSaveLeavesNoTempFiles() {
	suite.Require().NoError(suite.store.Save(suite.snapshot()))
	suite.Require().NoError(suite.store.Save(suite.snapshot()))

	entries, err := os.ReadDir(filepath.Dir(suite.store.Path()))
	suite.Require().NoError(err)
	suite.Len(entries, 1)
	suite.Equal("state.json", entries[0].Name())
}

func (suite *StoreTestSuite) TestLoadRejectsIncompatibleVersion() {
	snap := suite.snapshot()
	snap.Version = "v99.0.0"
	suite.Require().NoError(suite.store.Save(snap))

	_, found, err := suite.store.Load()
	suite.Require().Error(err)
	suite.False(found)
	suite.True(errors.HasCode(err, errors.ErrCodeVersionMismatch))
}

func (suite *StoreTestSuite) TestLoadCorruptFile() {
	suite.Require().NoError(os.MkdirAll(filepath.Dir(suite.store.Path()), 0755))
	suite.Require().NoError(os.WriteFile(suite.store.Path(), []byte("{not json"), 0644))

	_, _, err := suite.store.Load()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeStateReadFailed))
}

func (suite *StoreTestSuite) TestLoadFillsBlockedMap() {
	snap := suite.snapshot()
	snap.Guards.Blocked = nil
	suite.Require().NoError(suite.store.Save(snap))

	got, _, err := suite.store.Load()
	suite.Require().NoError(err)
	suite.NotNil(got.Guards.Blocked)
}
