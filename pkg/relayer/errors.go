package relayer

import (
	"context"
	"errors"
	"strings"

	"github.com/clickregen/portal-workers/pkg/chainclient"
)

// classifyError buckets a finalize failure for metrics and logs. The bool
// reports whether a later attempt could plausibly succeed.
func classifyError(err error) (bool, string) {
	if errors.Is(err, chainclient.ErrGasPriceTooHigh) {
		return true, "gas_error"
	}
	if errors.Is(err, chainclient.ErrReceiptReverted) {
		return false, "contract_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "network_error"
	}

	errStr := err.Error()

	// Already finalized on-chain
	if strings.Contains(errStr, "already finalized") ||
		strings.Contains(errStr, "Receipt already") ||
		strings.Contains(errStr, "already processed") {
		return false, "already_processed"
	}

	// Network/RPC errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// Gas-related errors
	if strings.Contains(errStr, "gas required exceeds allowance") ||
		strings.Contains(errStr, "insufficient funds for gas") ||
		strings.Contains(errStr, "gas price too low") {
		return true, "gas_error"
	}

	// Nonce-related errors
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, "nonce_error"
	}

	if strings.Contains(errStr, "insufficient balance") ||
		strings.Contains(errStr, "insufficient funds") {
		return false, "insufficient_funds"
	}

	if strings.Contains(errStr, "execution reverted") {
		return false, "contract_error"
	}

	return true, "unknown_error"
}
