package store

import (
	"context"
	"sync"

	"github.com/clickregen/portal-workers/pkg/models"
)

// MemoryStore keeps state in process memory
type MemoryStore struct {
	mu        sync.Mutex
	cursor    uint64
	hasCursor bool
	lb        models.Leaderboard
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ AtomicCommitter = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lb: models.Leaderboard{}}
}

func (s *MemoryStore) LoadCursor(_ context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.hasCursor, nil
}

func (s *MemoryStore) LoadLeaderboard(_ context.Context) (models.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lb.Clone(), nil
}

func (s *MemoryStore) SaveLeaderboard(_ context.Context, lb models.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lb = lb.Clone()
	return nil
}

func (s *MemoryStore) SaveCursor(_ context.Context, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor, s.hasCursor = cursor, true
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, cursor uint64, lb models.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lb = lb.Clone()
	s.cursor, s.hasCursor = cursor, true
	return nil
}

func (s *MemoryStore) Close() error { return nil }
