// Package sqlite provides a single-file transport.CheckpointStore backed by
// modernc.org/sqlite (pure Go, no cgo). It suits a single homebrain process
// that needs threads to survive restarts without running PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

// Store is a SQLite-backed CheckpointStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ transport.CheckpointStore = (*Store)(nil)

// New opens (creating if needed) the database at path and ensures the
// schema exists. Parent directories are created.
func New(path string) (*Store, error) {
	logger := slog.Default().With("component", "store", "backend", "sqlite")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers, which makes the version check and
	// the write in Save atomic without BEGIN IMMEDIATE.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("checkpoint store ready", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_states (
			thread_id     TEXT PRIMARY KEY,
			owner         TEXT NOT NULL DEFAULT '',
			version       INTEGER NOT NULL,
			route         TEXT NOT NULL DEFAULT '',
			suspended     INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			state         BLOB NOT NULL,
			updated_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_states_updated
			ON conversation_states(owner, updated_at);
	`)
	return err
}

// Load retrieves the state of a thread.
func (s *Store) Load(ctx context.Context, threadID string) (*api.ConversationState, error) {
	var data []byte
	var owner string
	err := s.db.QueryRowContext(ctx,
		"SELECT state, owner FROM conversation_states WHERE thread_id = ?", threadID,
	).Scan(&data, &owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !storage.Visible(storage.GetOwner(ctx), owner)) {
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

// Save writes the state after the optimistic version check.
func (s *Store) Save(ctx context.Context, state *api.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	owner := storage.GetOwner(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	var storedOwner string
	err = tx.QueryRowContext(ctx,
		"SELECT version, owner FROM conversation_states WHERE thread_id = ?", state.ThreadID,
	).Scan(&stored, &storedOwner)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := storage.CheckVersion(0, state.Version); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_states
				(thread_id, owner, version, route, suspended, message_count, state, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			state.ThreadID, owner, state.Version, string(state.Route), state.Suspended(),
			len(state.Messages), data, state.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("inserting state: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading version: %w", err)
	default:
		if !storage.Visible(owner, storedOwner) {
			return storage.ErrNotFound
		}
		if err := storage.CheckVersion(stored, state.Version); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE conversation_states
			SET version = ?, route = ?, suspended = ?, message_count = ?, state = ?, updated_at = ?
			WHERE thread_id = ?
		`,
			state.Version, string(state.Route), state.Suspended(), len(state.Messages),
			data, state.UpdatedAt.UnixNano(), state.ThreadID,
		)
		if err != nil {
			return fmt.Errorf("updating state: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	query := "DELETE FROM conversation_states WHERE thread_id = ?"
	args := []any{threadID}
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	if n == 0 {
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
		query += " WHERE owner = ?"
		args = append(args, owner)
	}
	if opts.Order == "asc" {
		query += " ORDER BY updated_at ASC, thread_id ASC"
	} else {
		query += " ORDER BY updated_at DESC, thread_id DESC"
	}
	query += " LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	result := &api.ThreadList{Object: "list", Data: []api.ThreadSummary{}}
	for rows.Next() {
		var sum api.ThreadSummary
		var route string
		var updated int64
		if err := rows.Scan(&sum.ThreadID, &route, &sum.Suspended, &sum.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		sum.Route = api.Route(route)
		sum.UpdatedAt = time.Unix(0, updated).Unix()
		result.Data = append(result.Data, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return result, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
