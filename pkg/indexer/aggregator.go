package indexer

import (
	"sync"

	"github.com/clickregen/portal-workers/pkg/models"
)

// Aggregator holds the in-memory leaderboard. Counts only grow and there is no
// per-intent dedupe: folding the same events twice counts them twice.
type Aggregator struct {
	mu sync.RWMutex
	lb models.Leaderboard
}

// NewAggregator starts from a previously persisted leaderboard
func NewAggregator(initial models.Leaderboard) *Aggregator {
	if initial == nil {
		initial = models.Leaderboard{}
	}
	return &Aggregator{lb: initial.Clone()}
}

// Fold adds one per event to its sender and returns the number folded
func (a *Aggregator) Fold(events []models.Intent) int {
	next, n := a.Stage(events)
	a.Publish(next)
	return n
}

// Stage returns the leaderboard that folding events would produce without
// changing the aggregator
func (a *Aggregator) Stage(events []models.Intent) (models.Leaderboard, int) {
	next := a.Snapshot()
	for _, ev := range events {
		next.Increment(ev.Sender.Hex(), 1)
	}
	return next, len(events)
}

// Publish replaces the leaderboard with a staged one
func (a *Aggregator) Publish(lb models.Leaderboard) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lb = lb.Clone()
}

// Snapshot returns an independent copy
func (a *Aggregator) Snapshot() models.Leaderboard {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lb.Clone()
}

// Top returns the n best ranked senders, all of them when n <= 0
func (a *Aggregator) Top(n int) []models.LeaderboardEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lb.Top(n)
}

// Len returns the number of distinct senders
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.lb)
}
