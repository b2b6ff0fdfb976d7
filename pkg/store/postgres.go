package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
)

// PostgresStore keeps a single cursor row and one row per leaderboard address
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ AtomicCommitter = (*PostgresStore)(nil)
)

const schema = `
	CREATE TABLE IF NOT EXISTS indexer_cursor (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS indexer_leaderboard (
		address TEXT PRIMARY KEY,
		clicks BIGINT NOT NULL
	);
`

// NewPostgresStore connects and creates the tables if missing
func NewPostgresStore(ctx context.Context, connStr string, log logger.Logger) (*PostgresStore, error) {
	if connStr == "" {
		return nil, errors.New("postgres backend requires DATABASE_URL")
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &PostgresStore{pool: pool, logger: log}, nil
}

func (s *PostgresStore) LoadCursor(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_cursor WHERE id = 1`).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if block < 0 {
		s.logger.Notice("Ignoring negative cursor %d", block)
		return 0, false, nil
	}
	return uint64(block), true, nil
}

func (s *PostgresStore) LoadLeaderboard(ctx context.Context) (models.Leaderboard, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, clicks FROM indexer_leaderboard`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lb := models.Leaderboard{}
	for rows.Next() {
		var (
			addr   string
			clicks int64
		)
		if err := rows.Scan(&addr, &clicks); err != nil {
			return nil, err
		}
		if clicks < 0 {
			s.logger.Notice("Ignoring negative count for %s", addr)
			continue
		}
		lb.Increment(addr, uint64(clicks))
	}
	return lb, rows.Err()
}

func (s *PostgresStore) SaveLeaderboard(ctx context.Context, lb models.Leaderboard) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return replaceLeaderboard(ctx, tx, lb)
	})
}

func (s *PostgresStore) SaveCursor(ctx context.Context, cursor uint64) error {
	return upsertCursor(ctx, s.pool, cursor)
}

// Commit writes cursor and leaderboard in one transaction
func (s *PostgresStore) Commit(ctx context.Context, cursor uint64, lb models.Leaderboard) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertCursor(ctx, tx, cursor); err != nil {
			return err
		}
		return replaceLeaderboard(ctx, tx, lb)
	})
	if err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsertCursor(ctx context.Context, db execer, cursor uint64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO indexer_cursor (id, last_processed_block, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET last_processed_block = EXCLUDED.last_processed_block, updated_at = NOW()`,
		int64(cursor),
	)
	return err
}

func replaceLeaderboard(ctx context.Context, tx pgx.Tx, lb models.Leaderboard) error {
	if _, err := tx.Exec(ctx, `DELETE FROM indexer_leaderboard`); err != nil {
		return err
	}
	if len(lb) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(lb))
	for addr, count := range lb {
		rows = append(rows, []any{strings.ToLower(addr), int64(count)})
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"indexer_leaderboard"}, []string{"address", "clicks"}, pgx.CopyFromRows(rows))
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
