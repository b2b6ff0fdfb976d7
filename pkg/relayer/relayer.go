package relayer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/ledger"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/metrics"
	"github.com/clickregen/portal-workers/pkg/models"
)

const DefaultPollInterval = 2 * time.Second

// Options configures a Relayer
type Options struct {
	Policy          PolicyEngine
	Executor        Executor
	PollInterval    time.Duration
	StartupAttempts uint
	Logger          logger.Logger
	Breaker         *circuitbreaker.CircuitBreaker
}

// PollResult summarizes one PollOnce call
type PollResult struct {
	From       uint64
	To         uint64
	Observed   int
	Finalized  int
	Skipped    int
	Duplicates int
	Failed     int
}

// Relayer watches for new intents and finalizes them on the portal.
// Its position is kept in memory only: on restart it starts again from the
// chain head and intents submitted while it was down are never finalized.
type Relayer struct {
	source          ledger.Source
	finalizer       ledger.Finalizer
	policy          PolicyEngine
	executor        Executor
	pollInterval    time.Duration
	startupAttempts uint
	logger          logger.Logger
	breaker         *circuitbreaker.CircuitBreaker

	lastBlock atomic.Uint64
	head      atomic.Uint64
	started   atomic.Bool

	finalized atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64

	// pollMu serializes PollOnce and guards seen
	pollMu sync.Mutex
	seen   map[[32]byte]struct{}
}

// New creates a relayer. Unset options fall back to always finalizing with the mock executor.
func New(source ledger.Source, finalizer ledger.Finalizer, opts Options) *Relayer {
	log := opts.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	policy := opts.Policy
	if policy == nil {
		policy = AlwaysFinalize{}
	}
	executor := opts.Executor
	if executor == nil {
		executor = MockExecutor{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := opts.StartupAttempts
	if attempts == 0 {
		attempts = 1
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(false, 0, 0, 0, log)
	}

	return &Relayer{
		source:          source,
		finalizer:       finalizer,
		policy:          policy,
		executor:        executor,
		pollInterval:    interval,
		startupAttempts: attempts,
		logger:          log,
		breaker:         breaker,
		seen:            make(map[[32]byte]struct{}),
	}
}

// LastBlock returns the last block whose events have been handled
func (r *Relayer) LastBlock() uint64 { return r.lastBlock.Load() }

// Breaker returns the RPC circuit breaker
func (r *Relayer) Breaker() *circuitbreaker.CircuitBreaker { return r.breaker }

// Start positions the relayer at the current chain head. Events at or below
// the head are never handled.
func (r *Relayer) Start(ctx context.Context) error {
	var head uint64
	err := retry.Do(
		func() error {
			var err error
			head, err = r.source.BlockNumber(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.startupAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Notice("Reading start block failed (attempt %d): %v", n+1, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("read start block: %w", err)
	}

	r.lastBlock.Store(head)
	r.head.Store(head)
	r.started.Store(true)
	metrics.RelayerLastBlock.Set(float64(head))
	r.logger.Info("Relayer starting at block %d; intents submitted while the relayer is down are not finalized", head)
	return nil
}

// PollOnce handles every intent in (lastBlock, head] and then moves lastBlock to head.
// If the head or the logs cannot be read, or ctx ends during the batch, lastBlock stays where it is.
func (r *Relayer) PollOnce(ctx context.Context) (PollResult, error) {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	head, err := r.source.BlockNumber(ctx)
	if err != nil {
		metrics.RelayerPollErrors.WithLabelValues("head").Inc()
		return PollResult{}, fmt.Errorf("read head: %w", err)
	}
	r.head.Store(head)

	last := r.LastBlock()
	if head <= last {
		return PollResult{From: last + 1, To: head}, nil
	}
	from := last + 1

	intents, err := r.source.IntentLogs(ctx, from, head)
	if err != nil {
		metrics.RelayerPollErrors.WithLabelValues("logs").Inc()
		return PollResult{}, fmt.Errorf("get logs %d..%d: %w", from, head, err)
	}

	result := PollResult{From: from, To: head}
	for _, intent := range intents {
		// stop mid-batch on shutdown; lastBlock stays so the range is not marked done
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.handle(ctx, intent, &result)
	}

	r.lastBlock.Store(head)
	metrics.RelayerLastBlock.Set(float64(head))
	if result.Observed > 0 {
		r.logger.Info("Processed %d..%d: %d observed, %d finalized, %d skipped, %d failed",
			from, head, result.Observed, result.Finalized, result.Skipped, result.Failed)
	}
	return result, nil
}

func (r *Relayer) handle(ctx context.Context, intent models.Intent, result *PollResult) {
	id := intent.IDHex()
	result.Observed++
	metrics.RelayerIntentsObserved.Inc()

	if _, dup := r.seen[intent.ID]; dup {
		result.Duplicates++
		metrics.RelayerDuplicates.Inc()
		r.logger.Debug("Ignoring duplicate intent %s", id)
		return
	}
	r.seen[intent.ID] = struct{}{}

	if !intent.PayloadMatches() {
		r.logger.Notice("Intent %s payload does not match its payloadHash", id)
	}

	if !r.policy.ShouldFinalize(intent) {
		result.Skipped++
		r.skipped.Add(1)
		metrics.RelayerPolicySkipped.Inc()
		r.logger.Info("skip %s", id)
		return
	}

	start := time.Now()
	defer func() { metrics.RelayerProcessingTime.Observe(time.Since(start).Seconds()) }()

	res, err := r.executor.Execute(ctx, intent.ID)
	if err != nil {
		r.fail(id, "execute", err, result)
		return
	}

	txHash, err := r.finalizer.SubmitFinalize(ctx, intent.ID, res)
	if err != nil {
		r.fail(id, "finalize", err, result)
		return
	}

	result.Finalized++
	r.finalized.Add(1)
	status := "success"
	if !res.Success {
		status = "failure"
	}
	metrics.RelayerFinalized.WithLabelValues(status).Inc()
	r.logger.Info("finalize %s tx=%s", id, txHash.Hex())
}

// fail records an abandoned intent. It is not retried.
func (r *Relayer) fail(id, stage string, err error, result *PollResult) {
	result.Failed++
	r.failed.Add(1)

	retryable, errorType := classifyError(err)
	metrics.RelayerFinalized.WithLabelValues("error").Inc()
	metrics.RelayerFinalizeErrors.WithLabelValues(errorType).Inc()
	r.logger.Error("%s failed for %s (%s, retryable=%t): %v", stage, id, errorType, retryable, err)
}

// Run starts the relayer if needed and polls until ctx is cancelled
func (r *Relayer) Run(ctx context.Context) error {
	if !r.started.Load() {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}

	for {
		if _, err := r.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("Relayer cycle failed: %v", err)
			r.breaker.RecordFailure()
		} else {
			r.breaker.RecordSuccess()
		}
		r.reportBreaker()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Relayer) reportBreaker() {
	open := 0.0
	if r.breaker.IsOpen() {
		open = 1
	}
	metrics.CircuitBreakerOpen.WithLabelValues(string(logger.Relayer)).Set(open)
}

// Status is the JSON shape served on /status
func (r *Relayer) Status() map[string]interface{} {
	failures, _, _, _ := r.breaker.GetState()
	return map[string]interface{}{
		"role":        "relayer",
		"head":        r.head.Load(),
		"lastBlock":   r.LastBlock(),
		"finalized":   r.finalized.Load(),
		"skipped":     r.skipped.Load(),
		"failed":      r.failed.Load(),
		"circuit":     r.breaker.State(),
		"rpcFailures": failures,
	}
}
