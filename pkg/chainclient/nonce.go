package chainclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PendingNonceReader is satisfied by any Ethereum client
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// TransactionInfo holds information about a tracked transaction
type TransactionInfo struct {
	Address common.Address
	Nonce   uint64
	Time    time.Time
}

// NonceManager hands out nonces for the relayer account so that back to back
// sends do not wait for the node's pending pool to catch up.
type NonceManager struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64
	txs    map[common.Hash]*TransactionInfo
	now    func() time.Time
}

// NewNonceManager creates a new nonce manager
func NewNonceManager() *NonceManager {
	return &NonceManager{
		nonces: make(map[common.Address]uint64),
		txs:    make(map[common.Hash]*TransactionInfo),
		now:    time.Now,
	}
}

// Next returns the nonce to use for the next transaction from address
func (nm *NonceManager) Next(ctx context.Context, reader PendingNonceReader, address common.Address) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nonce, err := reader.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	if stored, exists := nm.nonces[address]; !exists || nonce > stored {
		nm.nonces[address] = nonce
	}
	return nm.nonces[address], nil
}

// Track records a sent transaction and advances the local nonce past it
func (nm *NonceManager) Track(txHash common.Hash, address common.Address, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if stored := nm.nonces[address]; nonce+1 > stored {
		nm.nonces[address] = nonce + 1
	}
	nm.txs[txHash] = &TransactionInfo{Address: address, Nonce: nonce, Time: nm.now()}
}

// MarkConfirmed forgets a mined transaction
func (nm *NonceManager) MarkConfirmed(txHash common.Hash) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.txs, txHash)
}

// Reset drops the cached nonce so the next call resyncs from the node
func (nm *NonceManager) Reset(address common.Address) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.nonces, address)
}

// Pending returns the number of sent transactions not yet confirmed
func (nm *NonceManager) Pending() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.txs)
}

// CleanupOld removes tracked transactions older than maxAge
func (nm *NonceManager) CleanupOld(maxAge time.Duration) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	now := nm.now()
	for hash, info := range nm.txs {
		if now.Sub(info.Time) > maxAge {
			delete(nm.txs, hash)
		}
	}
}
