// Package ledger defines the narrow views of the portal contract the workers depend on.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clickregen/portal-workers/pkg/models"
)

// Source reads the chain head and decoded IntentSubmitted events
type Source interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// IntentLogs returns the portal's IntentSubmitted events in [from, to],
	// ordered by block number then log index. from > to yields no events.
	IntentLogs(ctx context.Context, from, to uint64) ([]models.Intent, error)
}

// Finalizer submits finalizeReceipt transactions
type Finalizer interface {
	SubmitFinalize(ctx context.Context, intentID [32]byte, result models.ExecutionResult) (common.Hash, error)
}
