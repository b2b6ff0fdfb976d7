package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
)

// DefaultRedisKeyPrefix namespaces the indexer keys
const DefaultRedisKeyPrefix = "clickregen:indexer"

// RedisStore keeps the cursor in a string key and the leaderboard in a hash.
//
//	"<prefix>:cursor"      -> "123"
//	"<prefix>:leaderboard" -> {address: count}
type RedisStore struct {
	conn   *redis.Client
	prefix string
	logger logger.Logger
}

var (
	_ Store           = (*RedisStore)(nil)
	_ AtomicCommitter = (*RedisStore)(nil)
)

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, addr, username, password string, db int, prefix string, log logger.Logger) (*RedisStore, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return NewRedisStoreFromClient(conn, prefix, log), nil
}

// NewRedisStoreFromClient wraps an existing connection
func NewRedisStoreFromClient(conn *redis.Client, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &RedisStore{conn: conn, prefix: prefix, logger: log}
}

func (s *RedisStore) cursorKey() string      { return s.prefix + ":cursor" }
func (s *RedisStore) leaderboardKey() string { return s.prefix + ":leaderboard" }

func (s *RedisStore) LoadCursor(ctx context.Context) (uint64, bool, error) {
	val, err := s.conn.Get(ctx, s.cursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	cursor, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		s.logger.Notice("Ignoring malformed cursor at %s: %q", s.cursorKey(), val)
		return 0, false, nil
	}
	return cursor, true, nil
}

func (s *RedisStore) LoadLeaderboard(ctx context.Context) (models.Leaderboard, error) {
	fields, err := s.conn.HGetAll(ctx, s.leaderboardKey()).Result()
	if err != nil {
		return nil, err
	}

	lb := models.Leaderboard{}
	for addr, raw := range fields {
		count, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.logger.Notice("Ignoring malformed leaderboard entry %s=%q", addr, raw)
			continue
		}
		lb.Increment(addr, count)
	}
	return lb, nil
}

func (s *RedisStore) SaveLeaderboard(ctx context.Context, lb models.Leaderboard) error {
	_, err := s.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueLeaderboard(ctx, pipe, lb)
		return nil
	})
	return err
}

func (s *RedisStore) SaveCursor(ctx context.Context, cursor uint64) error {
	return s.conn.Set(ctx, s.cursorKey(), strconv.FormatUint(cursor, 10), 0).Err()
}

// Commit writes leaderboard and cursor inside one MULTI/EXEC
func (s *RedisStore) Commit(ctx context.Context, cursor uint64, lb models.Leaderboard) error {
	_, err := s.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueLeaderboard(ctx, pipe, lb)
		pipe.Set(ctx, s.cursorKey(), strconv.FormatUint(cursor, 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (s *RedisStore) queueLeaderboard(ctx context.Context, pipe redis.Pipeliner, lb models.Leaderboard) {
	pipe.Del(ctx, s.leaderboardKey())
	if len(lb) == 0 {
		return
	}
	values := make(map[string]interface{}, len(lb))
	for addr, count := range lb {
		values[addr] = strconv.FormatUint(count, 10)
	}
	pipe.HSet(ctx, s.leaderboardKey(), values)
}

func (s *RedisStore) Close() error {
	return s.conn.Close()
}
