package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clickregen/portal-workers/pkg/models"
)

// Executor performs the off-chain work for an intent
type Executor interface {
	Execute(ctx context.Context, intentID [32]byte) (models.ExecutionResult, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, intentID [32]byte) (models.ExecutionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, intentID [32]byte) (models.ExecutionResult, error) {
	return f(ctx, intentID)
}

// MockExecutor reports success without doing any work
type MockExecutor struct{}

// execRefPrefixLen covers "0x" and the first four id bytes
const execRefPrefixLen = 10

func (MockExecutor) Execute(_ context.Context, intentID [32]byte) (models.ExecutionResult, error) {
	execRef := "mock:" + hexutil.Encode(intentID[:])[:execRefPrefixLen]
	return models.ExecutionResult{
		Success:       true,
		ErrorCode:     0,
		ExecRef:       execRef,
		ExecRefHash:   crypto.Keccak256Hash([]byte(execRef)),
		ResultPayload: []byte{},
	}, nil
}
