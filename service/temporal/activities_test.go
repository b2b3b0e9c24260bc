package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/db"
	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRaisedSnapshots(ctx context.Context, snaps []*db.RaisedSnapshot) error {
	args := m.Called(ctx, snaps)
	return args.Error(0)
}

func (m *MockStore) DeleteRaisedSnapshotsOlderThan(ctx context.Context, before time.Time) error {
	args := m.Called(ctx, before)
	return args.Error(0)
}

type fakeOracle struct {
	balances balance.Balances
	addrs    map[chains.Asset]string
	testnet  bool
}

func (f *fakeOracle) PollAll(ctx context.Context, addrs map[chains.Asset]string, testnet bool) balance.Balances {
	f.addrs = addrs
	f.testnet = testnet
	return f.balances
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestActivities_PollBalances(t *testing.T) {
	oracle := &fakeOracle{balances: balance.Balances{
		chains.AssetETH: decimalPtr("1.25"),
		chains.AssetBNB: nil,
		chains.AssetSOL: decimalPtr("0.5"),
	}}
	activities := NewActivities(oracle, chains.DefaultRegistry(), nil, nil, nil, quietLogger())
	polledAt := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	activities.now = func() time.Time { return polledAt }

	result, err := activities.PollBalances(context.Background(), PollBalancesInput{})
	require.NoError(t, err)

	assert.False(t, oracle.testnet)
	assert.Equal(t, "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7", oracle.addrs[chains.AssetETH])
	assert.Equal(t, polledAt, result.PolledAt)
	require.Len(t, result.Balances, 3)

	eth := result.Balances[0]
	assert.Equal(t, "ETH", eth.Asset)
	assert.Equal(t, "ETH", eth.Network)
	require.NotNil(t, eth.Balance)
	assert.Equal(t, "1.25", *eth.Balance)

	bnb := result.Balances[1]
	assert.Equal(t, "BSC", bnb.Network)
	assert.Nil(t, bnb.Balance)

	sol := result.Balances[2]
	assert.Equal(t, "SOL", sol.Network)
	assert.Equal(t, "0.5", *sol.Balance)
}

func TestActivities_PollBalances_AddressOverride(t *testing.T) {
	oracle := &fakeOracle{balances: balance.Balances{}}
	activities := NewActivities(oracle, chains.DefaultRegistry(), nil, nil, nil, quietLogger())

	result, err := activities.PollBalances(context.Background(), PollBalancesInput{
		Testnet:   true,
		Addresses: map[string]string{"SOL": "2moCDRhmTKQW32q5XMp9MraaLLEyCiFNg7NbCp3NdV5A"},
	})
	require.NoError(t, err)

	assert.True(t, oracle.testnet)
	assert.Equal(t, "2moCDRhmTKQW32q5XMp9MraaLLEyCiFNg7NbCp3NdV5A", oracle.addrs[chains.AssetSOL])
	for _, b := range result.Balances {
		if b.Asset == "SOL" {
			assert.Equal(t, "SOL_TEST", b.Network)
		}
	}
}

func TestActivities_RecordSnapshot(t *testing.T) {
	polledAt := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	t.Run("writes and prunes", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateRaisedSnapshots", mock.Anything, mock.MatchedBy(func(snaps []*db.RaisedSnapshot) bool {
			return len(snaps) == 3 && snaps[1].Balance == nil && snaps[0].PolledAt.Equal(polledAt)
		})).Return(nil)
		store.On("DeleteRaisedSnapshotsOlderThan", mock.Anything, polledAt.Add(-DefaultSnapshotRetention)).Return(nil)

		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), store, nil, nil, quietLogger())
		result, err := activities.RecordSnapshot(context.Background(), RecordSnapshotInput{
			Balances: testReadings(),
			PolledAt: polledAt,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Recorded)
		store.AssertExpectations(t)
	})

	t.Run("prune failure is not fatal", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateRaisedSnapshots", mock.Anything, mock.Anything).Return(nil)
		store.On("DeleteRaisedSnapshotsOlderThan", mock.Anything, mock.Anything).Return(errors.New("lock timeout"))

		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), store, nil, nil, quietLogger())
		result, err := activities.RecordSnapshot(context.Background(), RecordSnapshotInput{
			Balances: testReadings(),
			PolledAt: polledAt,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Recorded)
	})

	t.Run("write failure", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateRaisedSnapshots", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), store, nil, nil, quietLogger())
		_, err := activities.RecordSnapshot(context.Background(), RecordSnapshotInput{Balances: testReadings()})
		assert.Error(t, err)
		store.AssertNotCalled(t, "DeleteRaisedSnapshotsOlderThan", mock.Anything, mock.Anything)
	})

	t.Run("no store", func(t *testing.T) {
		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), nil, nil, nil, quietLogger())
		result, err := activities.RecordSnapshot(context.Background(), RecordSnapshotInput{Balances: testReadings()})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Recorded)
	})
}

func TestActivities_PublishSnapshot(t *testing.T) {
	polledAt := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	t.Run("publishes every reading", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), nil, pub, nil, quietLogger())

		err := activities.PublishSnapshot(context.Background(), PublishSnapshotInput{
			Testnet:  true,
			Balances: testReadings(),
			PolledAt: polledAt,
		})
		require.NoError(t, err)

		events := pub.GetRaised()
		require.Len(t, events, 1)
		assert.True(t, events[0].Testnet)
		assert.Equal(t, polledAt, events[0].PolledAt)
		require.Len(t, events[0].Balances, 3)
		assert.Nil(t, events[0].Balances[1].Balance)
	})

	t.Run("publish error", func(t *testing.T) {
		pub := natspkg.NewMockPublisher()
		pub.SetPublishError(errors.New("no responders"))
		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), nil, pub, nil, quietLogger())

		err := activities.PublishSnapshot(context.Background(), PublishSnapshotInput{Balances: testReadings()})
		assert.Error(t, err)
	})

	t.Run("no publisher", func(t *testing.T) {
		activities := NewActivities(&fakeOracle{}, chains.DefaultRegistry(), nil, nil, nil, quietLogger())
		assert.NoError(t, activities.PublishSnapshot(context.Background(), PublishSnapshotInput{Balances: testReadings()}))
	})
}

func TestPollStatus(t *testing.T) {
	assert.Equal(t, "partial", pollStatus(testReadings()))
	assert.Equal(t, "success", pollStatus(testReadings()[:1]))
	assert.Equal(t, "success", pollStatus(nil))
}

func TestEnsureSchedules(t *testing.T) {
	s := NewMockScheduler()

	require.NoError(t, EnsureSchedules(context.Background(), s, 2*time.Minute, false, true))
	assert.Equal(t, 2, s.ScheduleCount())
	interval, ok := s.GetScheduleInterval(true)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, interval)

	// upserting again updates in place
	require.NoError(t, EnsureSchedules(context.Background(), s, 5*time.Minute, false))
	assert.Equal(t, 2, s.ScheduleCount())
	interval, _ = s.GetScheduleInterval(false)
	assert.Equal(t, 5*time.Minute, interval)
	assert.Equal(t, 3, s.Upserts())

	require.NoError(t, s.DeleteRaisedSchedule(context.Background(), true))
	assert.False(t, s.ScheduleExists(true))
	assert.Error(t, s.DeleteRaisedSchedule(context.Background(), true))

	s.SetCreateError(errors.New("temporal down"))
	err := EnsureSchedules(context.Background(), s, time.Minute, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testnet")
	assert.Equal(t, "poll-raised-testnet", ScheduleID(true))
	assert.Equal(t, "poll-raised-mainnet", ScheduleID(false))
}
