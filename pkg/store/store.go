// Package store persists the indexer's cursor and leaderboard.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
)

var ErrUnknownBackend = errors.New("unknown state backend")

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Store holds the last processed block and the leaderboard.
// Absent or malformed documents load as absent rather than failing.
type Store interface {
	// LoadCursor returns ok=false when no usable cursor has been saved
	LoadCursor(ctx context.Context) (uint64, bool, error)
	LoadLeaderboard(ctx context.Context) (models.Leaderboard, error)
	SaveLeaderboard(ctx context.Context, lb models.Leaderboard) error
	SaveCursor(ctx context.Context, cursor uint64) error
	Close() error
}

// AtomicCommitter is implemented by backends that can write the cursor and
// leaderboard as one unit.
type AtomicCommitter interface {
	Commit(ctx context.Context, cursor uint64, lb models.Leaderboard) error
}

// Commit persists the leaderboard and then the cursor, atomically when the backend allows it
func Commit(ctx context.Context, s Store, cursor uint64, lb models.Leaderboard) error {
	if ac, ok := s.(AtomicCommitter); ok {
		return ac.Commit(ctx, cursor, lb)
	}
	if err := s.SaveLeaderboard(ctx, lb); err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	if err := s.SaveCursor(ctx, cursor); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// Config selects and configures a backend
type Config struct {
	Backend string
	OutDir  string

	RedisAddr      string
	RedisUsername  string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	DatabaseURL string
}

// New opens the backend named by cfg.Backend
func New(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return NewFileStore(cfg.OutDir, log)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix, log)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
