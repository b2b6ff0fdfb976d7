package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clickregen/portal-workers/pkg/models"
	"github.com/clickregen/portal-workers/pkg/store"
)

// MockSource is a testify mock of ledger.Source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockSource) IntentLogs(ctx context.Context, from, to uint64) ([]models.Intent, error) {
	args := m.Called(ctx, from, to)
	intents, _ := args.Get(0).([]models.Intent)
	return intents, args.Error(1)
}

// failingStore fails every commit
type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) Commit(context.Context, uint64, models.Leaderboard) error {
	return errors.New("disk full")
}

const senderA = "0x0000000000000000000000000000000000000AAA"

func intentFrom(sender string, block uint64) models.Intent {
	return models.Intent{Sender: common.HexToAddress(sender), BlockNumber: block}
}

func seededStore(t *testing.T, cursor uint64, lb models.Leaderboard) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Commit(context.Background(), cursor, lb))
	return st
}

func TestInitialCursor(t *testing.T) {
	assert.Equal(t, uint64(55), InitialCursor(55, true, 1000))
	assert.Equal(t, uint64(999), InitialCursor(0, false, 1000))
	assert.Equal(t, uint64(0), InitialCursor(0, false, 0))
}

func TestScanOnceEmptyRange(t *testing.T) {
	ctx := context.Background()
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	s, err := NewScanner(ctx, src, seededStore(t, 100, nil), Options{})
	require.NoError(t, err)

	res, err := s.ScanOnce(ctx)
	require.NoError(t, err)
	assert.False(t, res.Scanned)
	assert.Equal(t, uint64(100), s.Cursor())
	src.AssertNotCalled(t, "IntentLogs", mock.Anything, mock.Anything, mock.Anything)
}

func TestScanOnceSingleEvent(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, 100, nil)

	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).
		Return([]models.Intent{intentFrom(senderA, 101)}, nil).Once()

	s, err := NewScanner(ctx, src, st, Options{})
	require.NoError(t, err)

	res, err := s.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{From: 101, To: 101, Events: 1, Scanned: true}, res)
	assert.Equal(t, uint64(101), s.Cursor())

	lb, err := st.LoadLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Leaderboard{"0x0000000000000000000000000000000000000aaa": 1}, lb)

	cursor, ok, err := st.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(101), cursor)
	src.AssertExpectations(t)
}

func TestScanOnceStartsFromConfiguredBlock(t *testing.T) {
	ctx := context.Background()
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(1005), nil)
	src.On("IntentLogs", mock.Anything, uint64(1000), uint64(1005)).Return(nil, nil).Once()

	s, err := NewScanner(ctx, src, store.NewMemoryStore(), Options{FromBlock: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(999), s.Cursor())

	_, err = s.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1005), s.Cursor())
	src.AssertExpectations(t)
}

func TestReplayAfterPartialWriteDoubleCounts(t *testing.T) {
	ctx := context.Background()
	// leaderboard already holds block 101 but the cursor was never advanced
	st := seededStore(t, 100, models.Leaderboard{"0x0000000000000000000000000000000000000aaa": 1})

	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).
		Return([]models.Intent{intentFrom(senderA, 101)}, nil)

	s, err := NewScanner(ctx, src, st, Options{})
	require.NoError(t, err)

	_, err = s.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Aggregator().Snapshot()["0x0000000000000000000000000000000000000aaa"])
}

func TestScanOnceCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(110), nil).Once()
	src.On("BlockNumber", mock.Anything).Return(uint64(105), nil).Once()
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(110)).Return(nil, nil).Once()

	s, err := NewScanner(ctx, src, seededStore(t, 100, nil), Options{})
	require.NoError(t, err)

	_, err = s.ScanOnce(ctx)
	require.NoError(t, err)
	_, err = s.ScanOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(110), s.Cursor())
	src.AssertExpectations(t)
}

func TestScanOnceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("head error", func(t *testing.T) {
		src := new(MockSource)
		src.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("connection refused"))

		s, err := NewScanner(ctx, src, seededStore(t, 100, nil), Options{})
		require.NoError(t, err)

		_, err = s.ScanOnce(ctx)
		assert.Error(t, err)
		assert.Equal(t, uint64(100), s.Cursor())
	})

	t.Run("logs error", func(t *testing.T) {
		src := new(MockSource)
		src.On("BlockNumber", mock.Anything).Return(uint64(120), nil)
		src.On("IntentLogs", mock.Anything, uint64(101), uint64(120)).Return(nil, errors.New("timeout"))

		s, err := NewScanner(ctx, src, seededStore(t, 100, nil), Options{})
		require.NoError(t, err)

		_, err = s.ScanOnce(ctx)
		assert.Error(t, err)
		assert.Equal(t, uint64(100), s.Cursor())
	})

	t.Run("commit error keeps cursor and counts", func(t *testing.T) {
		src := new(MockSource)
		src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
		src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).
			Return([]models.Intent{intentFrom(senderA, 101)}, nil).Twice()

		st := failingStore{seededStore(t, 100, nil)}
		s, err := NewScanner(ctx, src, st, Options{})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err = s.ScanOnce(ctx)
			assert.Error(t, err)
		}
		assert.Equal(t, uint64(100), s.Cursor())
		assert.Empty(t, s.Aggregator().Snapshot())
		src.AssertExpectations(t)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	s, err := NewScanner(context.Background(), src, seededStore(t, 100, nil), Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAggregator(t *testing.T) {
	const (
		keyA = "0x0000000000000000000000000000000000000aaa"
		keyB = "0x0000000000000000000000000000000000000bbb"
	)
	agg := NewAggregator(models.Leaderboard{keyB: 5})

	n := agg.Fold([]models.Intent{intentFrom(senderA, 1), intentFrom(keyA, 2), intentFrom(keyB, 3)})
	assert.Equal(t, 3, n)
	assert.Equal(t, models.Leaderboard{keyA: 2, keyB: 6}, agg.Snapshot())

	// staging leaves the published board alone
	staged, n := agg.Stage([]models.Intent{intentFrom(senderA, 4)})
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(3), staged[keyA])
	assert.Equal(t, uint64(2), agg.Snapshot()[keyA])

	assert.Equal(t, []models.LeaderboardEntry{{Address: keyB, Count: 6}}, agg.Top(1))
}
