package indexer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/ledger"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/metrics"
	"github.com/clickregen/portal-workers/pkg/models"
	"github.com/clickregen/portal-workers/pkg/store"
)

const DefaultPollInterval = 3 * time.Second

// ScanResult describes one ScanOnce call
type ScanResult struct {
	From    uint64
	To      uint64
	Events  int
	Scanned bool
}

// Scanner tails IntentSubmitted events into the leaderboard, resuming from the
// persisted cursor. The cursor only moves after the leaderboard for the range
// has been committed.
type Scanner struct {
	source       ledger.Source
	store        store.Store
	aggregator   *Aggregator
	pollInterval time.Duration
	logger       logger.Logger
	breaker      *circuitbreaker.CircuitBreaker

	cursor atomic.Uint64
	head   atomic.Uint64
}

// Options for NewScanner
type Options struct {
	FromBlock    uint64
	PollInterval time.Duration
	Logger       logger.Logger
	Breaker      *circuitbreaker.CircuitBreaker
}

// NewScanner loads the cursor and leaderboard from st. Without a saved cursor
// scanning starts at FromBlock.
func NewScanner(ctx context.Context, source ledger.Source, st store.Store, opts Options) (*Scanner, error) {
	log := opts.Logger
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(false, 0, 0, 0, log)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	saved, ok, err := st.LoadCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	lb, err := st.LoadLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	s := &Scanner{
		source:       source,
		store:        st,
		aggregator:   NewAggregator(lb),
		pollInterval: interval,
		logger:       log,
		breaker:      breaker,
	}
	s.cursor.Store(InitialCursor(saved, ok, opts.FromBlock))

	metrics.IndexerCursor.Set(float64(s.Cursor()))
	metrics.IndexerAddresses.Set(float64(s.aggregator.Len()))
	return s, nil
}

// InitialCursor is the saved cursor if present, otherwise the block before fromBlock
func InitialCursor(saved uint64, ok bool, fromBlock uint64) uint64 {
	if ok {
		return saved
	}
	if fromBlock > 0 {
		return fromBlock - 1
	}
	return 0
}

// Cursor returns the last committed block
func (s *Scanner) Cursor() uint64 { return s.cursor.Load() }

// Head returns the chain head seen by the last cycle
func (s *Scanner) Head() uint64 { return s.head.Load() }

// Aggregator exposes the leaderboard for readers
func (s *Scanner) Aggregator() *Aggregator { return s.aggregator }

// Breaker returns the RPC circuit breaker
func (s *Scanner) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

// ScanOnce processes (cursor, head]. A head at or below the cursor does nothing.
func (s *Scanner) ScanOnce(ctx context.Context) (ScanResult, error) {
	start := time.Now()
	defer func() { metrics.IndexerScanDuration.Observe(time.Since(start).Seconds()) }()

	head, err := s.source.BlockNumber(ctx)
	if err != nil {
		metrics.IndexerScanErrors.WithLabelValues("head").Inc()
		return ScanResult{}, fmt.Errorf("read head: %w", err)
	}
	s.head.Store(head)
	metrics.IndexerHead.Set(float64(head))

	cursor := s.Cursor()
	if head <= cursor {
		metrics.IndexerLag.Set(0)
		return ScanResult{From: cursor + 1, To: head}, nil
	}
	metrics.IndexerLag.Set(float64(head - cursor))
	from := cursor + 1

	intents, err := s.source.IntentLogs(ctx, from, head)
	if err != nil {
		metrics.IndexerScanErrors.WithLabelValues("logs").Inc()
		return ScanResult{}, fmt.Errorf("get logs %d..%d: %w", from, head, err)
	}

	next, n := s.aggregator.Stage(intents)
	if err := store.Commit(ctx, s.store, head, next); err != nil {
		metrics.IndexerScanErrors.WithLabelValues("commit").Inc()
		return ScanResult{}, fmt.Errorf("commit %d..%d: %w", from, head, err)
	}
	s.aggregator.Publish(next)
	s.cursor.Store(head)

	metrics.IndexerEvents.Add(float64(n))
	metrics.IndexerCursor.Set(float64(head))
	metrics.IndexerLag.Set(0)
	metrics.IndexerAddresses.Set(float64(len(next)))

	s.logger.Info("scanned %d..%d (+%d intents)", from, head, n)
	return ScanResult{From: from, To: head, Events: n, Scanned: true}, nil
}

// Run scans every poll interval until ctx is cancelled. Cycle errors are
// logged and the loop carries on.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("Indexer started at cursor %d, polling every %s", s.Cursor(), s.pollInterval)

	for {
		if _, err := s.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Indexer cycle failed: %v", err)
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
		s.reportBreaker()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Scanner) reportBreaker() {
	open := 0.0
	if s.breaker.IsOpen() {
		open = 1
	}
	metrics.CircuitBreakerOpen.WithLabelValues(string(logger.Indexer)).Set(open)
}

// Status is the JSON shape served on /status
func (s *Scanner) Status() map[string]interface{} {
	head, cursor := s.Head(), s.Cursor()
	var lag uint64
	if head > cursor {
		lag = head - cursor
	}
	failures, _, _, _ := s.breaker.GetState()
	return map[string]interface{}{
		"role":        "indexer",
		"head":        head,
		"cursor":      cursor,
		"lag":         lag,
		"addresses":   s.aggregator.Len(),
		"circuit":     s.breaker.State(),
		"rpcFailures": failures,
	}
}

// Leaderboard returns the top n entries
func (s *Scanner) Leaderboard(n int) []models.LeaderboardEntry {
	return s.aggregator.Top(n)
}
