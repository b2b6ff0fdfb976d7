package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/models"
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

// MockFinalizer is a testify mock of ledger.Finalizer
type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) SubmitFinalize(ctx context.Context, intentID [32]byte, res models.ExecutionResult) (common.Hash, error) {
	args := m.Called(ctx, intentID, res)
	return args.Get(0).(common.Hash), args.Error(1)
}

func testIntent(seed string, block uint64) models.Intent {
	payload := []byte(seed)
	return models.Intent{
		ID:          crypto.Keccak256Hash([]byte(seed)),
		Sender:      common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Action:      models.ActionClick,
		Payload:     payload,
		PayloadHash: crypto.Keccak256Hash(payload),
		BlockNumber: block,
	}
}

func startedRelayer(t *testing.T, src *MockSource, fin *MockFinalizer, start uint64, opts Options) *Relayer {
	t.Helper()
	src.On("BlockNumber", mock.Anything).Return(start, nil).Once()
	r := New(src, fin, opts)
	require.NoError(t, r.Start(context.Background()))
	return r
}

func TestStartUsesHead(t *testing.T) {
	src := new(MockSource)
	r := startedRelayer(t, src, new(MockFinalizer), 500, Options{})
	assert.Equal(t, uint64(500), r.LastBlock())
}

func TestStartRetries(t *testing.T) {
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("connection refused")).Once()
	src.On("BlockNumber", mock.Anything).Return(uint64(9), nil).Once()

	r := New(src, new(MockFinalizer), Options{StartupAttempts: 2})
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, uint64(9), r.LastBlock())
}

func TestPollOnceFinalizes(t *testing.T) {
	ctx := context.Background()
	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{})

	intent := testIntent("one", 101)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).Return([]models.Intent{intent}, nil)

	expected, err := MockExecutor{}.Execute(ctx, intent.ID)
	require.NoError(t, err)
	fin.On("SubmitFinalize", mock.Anything, intent.ID, expected).Return(common.HexToHash("0x01"), nil).Once()

	res, err := r.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, uint64(101), r.LastBlock())
	fin.AssertExpectations(t)
}

func TestPollOnceNothingNew(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{})
	src.On("BlockNumber", mock.Anything).Return(uint64(100), nil)

	_, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	src.AssertNotCalled(t, "IntentLogs", mock.Anything, mock.Anything, mock.Anything)
}

func TestPolicySkipSubmitsNothing(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{Policy: NewPolicy(false, 0, nil)})

	src.On("BlockNumber", mock.Anything).Return(uint64(102), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(102)).
		Return([]models.Intent{testIntent("a", 101), testIntent("b", 102)}, nil)

	res, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, uint64(102), r.LastBlock())
	fin.AssertNotCalled(t, "SubmitFinalize", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutorResultPassedThrough(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	failed := models.ExecutionResult{Success: false, ErrorCode: 7, ExecRef: "job:42"}
	exec := ExecutorFunc(func(context.Context, [32]byte) (models.ExecutionResult, error) {
		return failed, nil
	})
	r := startedRelayer(t, src, fin, 100, Options{Executor: exec})

	intent := testIntent("x", 101)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).Return([]models.Intent{intent}, nil)
	fin.On("SubmitFinalize", mock.Anything, intent.ID, failed).Return(common.HexToHash("0x02"), nil).Once()

	_, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	fin.AssertExpectations(t)
}

func TestExecutorErrorAbandonsIntent(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	exec := ExecutorFunc(func(context.Context, [32]byte) (models.ExecutionResult, error) {
		return models.ExecutionResult{}, errors.New("backend down")
	})
	r := startedRelayer(t, src, fin, 100, Options{Executor: exec})

	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).Return([]models.Intent{testIntent("x", 101)}, nil)

	res, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, uint64(101), r.LastBlock())
	fin.AssertNotCalled(t, "SubmitFinalize", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitFailureContinues(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{})

	first, second := testIntent("first", 101), testIntent("second", 101)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).Return([]models.Intent{first, second}, nil)
	fin.On("SubmitFinalize", mock.Anything, first.ID, mock.Anything).
		Return(common.Hash{}, errors.New("execution reverted")).Once()
	fin.On("SubmitFinalize", mock.Anything, second.ID, mock.Anything).
		Return(common.HexToHash("0x03"), nil).Once()

	res, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, uint64(101), r.LastBlock())
	fin.AssertExpectations(t)
}

func TestDuplicateIntentFinalizedOnce(t *testing.T) {
	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{})

	intent := testIntent("dup", 101)
	src.On("BlockNumber", mock.Anything).Return(uint64(101), nil).Once()
	src.On("BlockNumber", mock.Anything).Return(uint64(102), nil).Once()
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(101)).Return([]models.Intent{intent, intent}, nil)
	src.On("IntentLogs", mock.Anything, uint64(102), uint64(102)).Return([]models.Intent{intent}, nil)
	fin.On("SubmitFinalize", mock.Anything, intent.ID, mock.Anything).Return(common.HexToHash("0x04"), nil).Once()

	res, err := r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)

	res, err = r.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	fin.AssertNumberOfCalls(t, "SubmitFinalize", 1)
}

func TestReadFailuresKeepLastBlock(t *testing.T) {
	t.Run("head", func(t *testing.T) {
		src := new(MockSource)
		r := startedRelayer(t, src, new(MockFinalizer), 100, Options{})
		src.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("timeout"))

		_, err := r.PollOnce(context.Background())
		assert.Error(t, err)
		assert.Equal(t, uint64(100), r.LastBlock())
	})

	t.Run("logs", func(t *testing.T) {
		src := new(MockSource)
		r := startedRelayer(t, src, new(MockFinalizer), 100, Options{})
		src.On("BlockNumber", mock.Anything).Return(uint64(105), nil)
		src.On("IntentLogs", mock.Anything, uint64(101), uint64(105)).Return(nil, errors.New("EOF"))

		_, err := r.PollOnce(context.Background())
		assert.Error(t, err)
		assert.Equal(t, uint64(100), r.LastBlock())
	})
}

func TestPollOnceStopsBatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, fin := new(MockSource), new(MockFinalizer)
	r := startedRelayer(t, src, fin, 100, Options{})

	batch := []models.Intent{testIntent("first", 101), testIntent("second", 101), testIntent("third", 102)}
	src.On("BlockNumber", mock.Anything).Return(uint64(102), nil)
	src.On("IntentLogs", mock.Anything, uint64(101), uint64(102)).Return(batch, nil)
	fin.On("SubmitFinalize", mock.Anything, batch[0].ID, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(common.HexToHash("0x01"), nil).Once()

	res, err := r.PollOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, uint64(100), r.LastBlock())
	fin.AssertNumberOfCalls(t, "SubmitFinalize", 1)
}

func TestStatusReportsBreakerFailures(t *testing.T) {
	breaker := circuitbreaker.NewCircuitBreaker(true, 5, time.Minute, time.Minute, nil)
	src := new(MockSource)
	r := startedRelayer(t, src, new(MockFinalizer), 100, Options{Breaker: breaker})

	breaker.RecordFailure()
	breaker.RecordFailure()

	status := r.Status()
	assert.Equal(t, 2, status["rpcFailures"])
	assert.Equal(t, "closed", status["circuit"])
}

func TestRunStopsOnCancel(t *testing.T) {
	src := new(MockSource)
	src.On("BlockNumber", mock.Anything).Return(uint64(7), nil)
	r := New(src, new(MockFinalizer), Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, uint64(7), r.LastBlock())
}
