// Package audit persists executed tool actions. Only actions that actually
// ran are recorded; conversation history never leaves the session.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations creates the actions table.
func (s *Store) RunMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS actions (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			args JSONB,
			result TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_actions_session_id ON actions(session_id);
	`)
	return err
}

type Action struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	Result    string          `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) Record(ctx context.Context, sessionID, tool string, args []byte, result string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO actions (session_id, tool, args, result) VALUES ($1, $2, $3, $4)",
		sessionID, tool, args, result,
	)
	return err
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Action, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, session_id, tool, args, result, created_at FROM actions WHERE session_id = $1 ORDER BY created_at",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Tool, &a.Args, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}
