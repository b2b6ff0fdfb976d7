package chainclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/clickregen/portal-workers/pkg/contracts"
	"github.com/clickregen/portal-workers/pkg/ledger"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/metrics"
	"github.com/clickregen/portal-workers/pkg/models"
)

var (
	ErrChainIDMismatch = errors.New("chain id mismatch")
	ErrNoSigner        = errors.New("client has no signing key")
	ErrGasPriceTooHigh = errors.New("gas price exceeds configured maximum")
	ErrReceiptReverted = errors.New("finalize transaction reverted")
)

// Backend is the subset of an Ethereum client used here. Both *ethclient.Client
// and the simulated backend's client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options configures a Client
type Options struct {
	RPCURL        string
	ChainID       int64
	PortalAddress common.Address
	// PrivateKey is optional; without it the client is read-only
	PrivateKey string

	RPCTimeout      time.Duration
	RPCRetryMax     int
	StartupAttempts uint

	MaxBlockRange  uint64
	GasMultiplier  float64
	MaxGasPrice    *big.Int
	WaitForReceipt bool
	ReceiptTimeout time.Duration
}

// Client reads IntentSubmitted events from the portal and submits finalize transactions
type Client struct {
	backend        Backend
	closer         func()
	portal         *contracts.Portal
	filterer       *contracts.PortalFilterer
	portalAddress  common.Address
	chainID        *big.Int
	auth           *bind.TransactOpts
	nonces         *NonceManager
	gasMultiplier  float64
	maxGasPrice    *big.Int
	maxBlockRange  uint64
	waitForReceipt bool
	receiptTimeout time.Duration
	logger         logger.Logger

	// serializes nonce allocation and sending
	sendMu sync.Mutex
}

var (
	_ ledger.Source    = (*Client)(nil)
	_ ledger.Finalizer = (*Client)(nil)
)

// Dial connects to opts.RPCURL, retrying with backoff until StartupAttempts is exhausted
func Dial(ctx context.Context, opts Options, log logger.Logger) (*Client, error) {
	attempts := opts.StartupAttempts
	if attempts == 0 {
		attempts = 1
	}

	var client *Client
	err := retry.Do(
		func() error {
			rpcClient, err := dialRPC(ctx, opts)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", opts.RPCURL, err)
			}
			c, err := NewWithBackend(ctx, ethclient.NewClient(rpcClient), opts, log)
			if err != nil {
				rpcClient.Close()
				return err
			}
			c.closer = rpcClient.Close
			client = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrChainIDMismatch) && !errors.Is(err, errBadKey)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Notice("RPC connection attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// dialRPC routes HTTP RPC traffic through a retrying transport. Websocket and IPC
// endpoints are dialed directly.
func dialRPC(ctx context.Context, opts Options) (*rpc.Client, error) {
	if !strings.HasPrefix(opts.RPCURL, "http://") && !strings.HasPrefix(opts.RPCURL, "https://") {
		return rpc.DialContext(ctx, opts.RPCURL)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RPCRetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	if opts.RPCTimeout > 0 {
		rc.HTTPClient.Timeout = opts.RPCTimeout
	}
	return rpc.DialOptions(ctx, opts.RPCURL, rpc.WithHTTPClient(rc.StandardClient()))
}

var errBadKey = errors.New("invalid private key")

const trackedTxMaxAge = 30 * time.Minute

// NewWithBackend builds a client on an already connected backend
func NewWithBackend(ctx context.Context, backend Backend, opts Options, log logger.Logger) (*Client, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		metrics.RPCErrors.WithLabelValues("eth_chainId").Inc()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if opts.ChainID != 0 && chainID.Cmp(big.NewInt(opts.ChainID)) != 0 {
		return nil, fmt.Errorf("%w: rpc reports %s, configured %d", ErrChainIDMismatch, chainID, opts.ChainID)
	}

	gasMultiplier := opts.GasMultiplier
	if gasMultiplier <= 0 {
		gasMultiplier = 1.0
	}

	c := &Client{
		backend:        backend,
		closer:         func() {},
		portal:         contracts.NewPortal(opts.PortalAddress, backend),
		filterer:       contracts.NewPortalFilterer(opts.PortalAddress),
		portalAddress:  opts.PortalAddress,
		chainID:        chainID,
		nonces:         NewNonceManager(),
		gasMultiplier:  gasMultiplier,
		maxGasPrice:    opts.MaxGasPrice,
		maxBlockRange:  opts.MaxBlockRange,
		waitForReceipt: opts.WaitForReceipt,
		receiptTimeout: opts.ReceiptTimeout,
		logger:         log,
	}

	if opts.PrivateKey != "" {
		auth, err := createAuthenticator(opts.PrivateKey, chainID)
		if err != nil {
			return nil, err
		}
		c.auth = auth
	}

	return c, nil
}

// Helper function to create authenticator
func createAuthenticator(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadKey, err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	return auth, nil
}

// ChainID returns the chain id reported by the RPC endpoint
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// From returns the relayer account, or the zero address for a read-only client
func (c *Client) From() common.Address {
	if c.auth == nil {
		return common.Address{}
	}
	return c.auth.From
}

// Close releases the underlying RPC connection
func (c *Client) Close() {
	c.closer()
}

// BlockNumber gets the latest block number from the chain
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		metrics.RPCErrors.WithLabelValues("eth_blockNumber").Inc()
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// IntentLogs fetches IntentSubmitted events in [from, to] in chunks of at most maxBlockRange blocks, or in one request when it is 0
func (c *Client) IntentLogs(ctx context.Context, from, to uint64) ([]models.Intent, error) {
	if from > to {
		return nil, nil
	}

	var intents []models.Intent
	for start := from; ; {
		end := to
		if c.maxBlockRange > 0 {
			end = start + c.maxBlockRange - 1
		}
		if end < start || end > to {
			end = to
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.portalAddress},
			Topics:    [][]common.Hash{{contracts.IntentSubmittedTopic()}},
		}
		logs, err := c.backend.FilterLogs(ctx, query)
		if err != nil {
			metrics.RPCErrors.WithLabelValues("eth_getLogs").Inc()
			return nil, fmt.Errorf("failed to get logs for blocks %d-%d: %w", start, end, err)
		}

		for _, l := range logs {
			if l.Removed {
				continue
			}
			ev, err := c.filterer.ParseIntentSubmitted(l)
			if err != nil {
				c.logger.Notice("Skipping undecodable log in tx %s index %d: %v", l.TxHash.Hex(), l.Index, err)
				continue
			}
			intents = append(intents, toIntent(ev))
		}

		if end == to {
			break
		}
		start = end + 1
	}

	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].BlockNumber != intents[j].BlockNumber {
			return intents[i].BlockNumber < intents[j].BlockNumber
		}
		return intents[i].LogIndex < intents[j].LogIndex
	})
	return intents, nil
}

func toIntent(ev *contracts.PortalIntentSubmitted) models.Intent {
	return models.Intent{
		ID:          ev.IntentId,
		Sender:      ev.Sender,
		Action:      models.Action(ev.Action),
		Expiry:      ev.Expiry,
		Nonce:       ev.Nonce,
		Payload:     ev.Payload,
		PayloadHash: ev.PayloadHash,
		BlockNumber: ev.Raw.BlockNumber,
		TxHash:      ev.Raw.TxHash,
		LogIndex:    ev.Raw.Index,
	}
}

// GasPrice returns the suggested gas price with the multiplier applied
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gasPrice, err := c.backend.SuggestGasPrice(timeoutCtx)
	if err != nil {
		metrics.RPCErrors.WithLabelValues("eth_gasPrice").Inc()
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	finalGasPrice := applyMultiplier(gasPrice, c.gasMultiplier)
	if c.maxGasPrice != nil && c.maxGasPrice.Sign() > 0 && finalGasPrice.Cmp(c.maxGasPrice) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrGasPriceTooHigh, finalGasPrice, c.maxGasPrice)
	}

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(finalGasPrice), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.Set(gwei)

	return finalGasPrice, nil
}

func applyMultiplier(price *big.Int, multiplier float64) *big.Int {
	multiplied := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier))
	out := new(big.Int)
	multiplied.Int(out)
	return out
}

// SubmitFinalize sends finalizeReceipt for intentID and returns the transaction hash.
// When receipt waiting is enabled a reverted transaction yields ErrReceiptReverted.
func (c *Client) SubmitFinalize(ctx context.Context, intentID [32]byte, result models.ExecutionResult) (common.Hash, error) {
	if c.auth == nil {
		return common.Hash{}, ErrNoSigner
	}

	tx, err := c.send(ctx, intentID, result)
	if err != nil {
		return common.Hash{}, err
	}

	if !c.waitForReceipt {
		return tx.Hash(), nil
	}
	return tx.Hash(), c.awaitReceipt(ctx, tx)
}

func (c *Client) send(ctx context.Context, intentID [32]byte, result models.ExecutionResult) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	from := c.auth.From
	nonce, err := c.nonces.Next(ctx, c.backend, from)
	if err != nil {
		metrics.RPCErrors.WithLabelValues("eth_getTransactionCount").Inc()
		return nil, err
	}

	txOpts := *c.auth
	txOpts.Context = ctx
	txOpts.Nonce = new(big.Int).SetUint64(nonce)
	txOpts.GasPrice = gasPrice

	tx, err := c.portal.FinalizeReceipt(&txOpts, intentID, result.Success, result.ErrorCode,
		result.StateHash, result.ExecRefHash, result.ResultPayload)
	if err != nil {
		c.nonces.Reset(from)
		return nil, fmt.Errorf("failed to send finalizeReceipt: %w", err)
	}

	c.nonces.Track(tx.Hash(), from, nonce)
	c.nonces.CleanupOld(trackedTxMaxAge)
	c.logger.Debug("Sent finalizeReceipt tx %s (nonce %d, gas price %s)", tx.Hash().Hex(), nonce, gasPrice)
	return tx, nil
}

func (c *Client) awaitReceipt(ctx context.Context, tx *types.Transaction) error {
	waitCtx := ctx
	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return fmt.Errorf("failed waiting for receipt of %s: %w", tx.Hash().Hex(), err)
	}
	c.nonces.MarkConfirmed(tx.Hash())
	metrics.GasUsed.Observe(float64(receipt.GasUsed))

	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("%w: %s", ErrReceiptReverted, tx.Hash().Hex())
	}
	return nil
}

// ComputeIntentID asks the deployed portal for the id it would assign
func (c *Client) ComputeIntentID(ctx context.Context, sender common.Address, nonce *big.Int, action uint32, payload []byte, expiry uint64) ([32]byte, error) {
	return c.portal.ComputeIntentId(&bind.CallOpts{Context: ctx}, sender, nonce, action, payload, expiry)
}
