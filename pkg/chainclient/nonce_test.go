package chainclient

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticNonce uint64

func (s staticNonce) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(s), nil
}

func TestNonceManager(t *testing.T) {
	addr := common.HexToAddress("0x01")
	nm := NewNonceManager()
	ctx := context.Background()

	n, err := nm.Next(ctx, staticNonce(5), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	nm.Track(common.HexToHash("0xaa"), addr, n)

	// node has not seen the tx yet
	n, err = nm.Next(ctx, staticNonce(5), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)

	// node ahead of local view
	n, err = nm.Next(ctx, staticNonce(9), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)

	nm.Reset(addr)
	n, err = nm.Next(ctx, staticNonce(3), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestNonceManagerTracking(t *testing.T) {
	nm := NewNonceManager()
	now := time.Unix(1_700_000_000, 0)
	nm.now = func() time.Time { return now }

	nm.Track(common.HexToHash("0x01"), common.Address{}, 0)
	nm.Track(common.HexToHash("0x02"), common.Address{}, 1)
	assert.Equal(t, 2, nm.Pending())

	nm.MarkConfirmed(common.HexToHash("0x01"))
	assert.Equal(t, 1, nm.Pending())

	now = now.Add(time.Hour)
	nm.CleanupOld(time.Minute)
	assert.Equal(t, 0, nm.Pending())
}
