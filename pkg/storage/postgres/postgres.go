// Package postgres provides a PostgreSQL transport.CheckpointStore. It uses
// pgx/v5 for connection pooling and stores each ConversationState as JSONB
// alongside the columns needed to list threads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

// Store is a PostgreSQL-backed CheckpointStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.CheckpointStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	slog.Info("checkpoint store ready", "backend", "postgres", "max_conns", poolCfg.MaxConns)
	return s, nil
}

// Load retrieves the state of a thread.
func (s *Store) Load(ctx context.Context, threadID string) (*api.ConversationState, error) {
	query := "SELECT state FROM conversation_states WHERE thread_id = $1"
	args := []any{threadID}
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner = $2"
		args = append(args, owner)
	}

	var data []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}

	var st api.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	return &st, nil
}

// Save writes the state inside a transaction that locks the thread row,
// so the version check and the write are atomic.
func (s *Store) Save(ctx context.Context, state *api.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	owner := storage.GetOwner(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stored int64
	var storedOwner string
	err = tx.QueryRow(ctx,
		"SELECT version, owner FROM conversation_states WHERE thread_id = $1 FOR UPDATE",
		state.ThreadID,
	).Scan(&stored, &storedOwner)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := storage.CheckVersion(0, state.Version); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_states (
				thread_id, owner, version, route, suspended, message_count,
				state, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			state.ThreadID, owner, state.Version, string(state.Route), state.Suspended(),
			len(state.Messages), data, state.CreatedAt, state.UpdatedAt,
		)
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("inserting state: %w", err)
		}
	case err != nil:
		return fmt.Errorf("locking state: %w", err)
	default:
		if !storage.Visible(owner, storedOwner) {
			return storage.ErrNotFound
		}
		if err := storage.CheckVersion(stored, state.Version); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE conversation_states
			SET version = $2, route = $3, suspended = $4, message_count = $5,
			    state = $6, updated_at = $7
			WHERE thread_id = $1
		`,
			state.ThreadID, state.Version, string(state.Route), state.Suspended(),
			len(state.Messages), data, state.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("updating state: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	query := "DELETE FROM conversation_states WHERE thread_id = $1"
	args := []any{threadID}
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner = $2"
		args = append(args, owner)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns thread summaries ordered by last update.
func (s *Store) List(ctx context.Context, opts transport.ListOptions) (*api.ThreadList, error) {
	opts = opts.Normalize()

	query := "SELECT thread_id, route, suspended, message_count, updated_at FROM conversation_states"
	var args []any
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " WHERE owner = $1"
		args = append(args, owner)
	}
	if opts.Order == "asc" {
		query += " ORDER BY updated_at ASC, thread_id ASC"
	} else {
		query += " ORDER BY updated_at DESC, thread_id DESC"
	}
	query += fmt.Sprintf(" LIMIT %d", opts.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	result := &api.ThreadList{Object: "list", Data: []api.ThreadSummary{}}
	for rows.Next() {
		var sum api.ThreadSummary
		var route string
		var updated time.Time
		if err := rows.Scan(&sum.ThreadID, &route, &sum.Suspended, &sum.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		sum.Route = api.Route(route)
		sum.UpdatedAt = updated.Unix()
		result.Data = append(result.Data, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
