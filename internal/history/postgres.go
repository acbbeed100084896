package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numera-app/numera/internal/task"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_history (
			task_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			settled_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (task_id, settled_at)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_settled ON task_history (settled_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveEntry(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_history (task_id, type, description, success, message, started_at, settled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (task_id, settled_at) DO NOTHING`,
		int64(entry.TaskID),
		string(entry.Type),
		entry.Description,
		entry.Success,
		entry.Message,
		entry.StartedAt,
		entry.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, type, description, success, message, started_at, settled_at
		   FROM task_history ORDER BY settled_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry Entry
			id    int64
			typ   string
		)
		if err := rows.Scan(
			&id,
			&typ,
			&entry.Description,
			&entry.Success,
			&entry.Message,
			&entry.StartedAt,
			&entry.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.TaskID = task.ID(id)
		entry.Type = task.Type(typ)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
