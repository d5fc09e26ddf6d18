// Package offline is the agent's local key/value persistence. Every
// mutation lands here first, whether or not the relay is reachable.
package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kanbansync/internal/model"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Keys of the persisted collections.
const (
	KeyTasks   = "kanban-tasks"
	KeyColumns = "kanban-columns"
	KeyLabels  = "kanban-labels"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

type Store struct {
	db       *sql.DB
	extended bool
	logger   log.FieldLogger
}

// Open opens (or creates) the SQLite file at path. Extended selects the
// larger default column set for first run.
func Open(path string, extended bool, logger log.FieldLogger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	// SQLite works best with a single writer; also keeps :memory: on one connection.
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{db: db, extended: extended, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the raw value of key; ok is false when it was never written.
func (s *Store) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

// Set overwrites key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, s.db, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func set(ctx context.Context, ex execer, key string, value []byte) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LoadBoard returns the persisted board, filling each missing or
// unreadable collection with its first-run default.
func (s *Store) LoadBoard(ctx context.Context) (model.Board, error) {
	b := model.Board{}
	if err := s.load(ctx, KeyTasks, &b.Tasks); err != nil {
		return model.Board{}, err
	}
	if err := s.load(ctx, KeyColumns, &b.Columns); err != nil {
		return model.Board{}, err
	}
	if err := s.load(ctx, KeyLabels, &b.Labels); err != nil {
		return model.Board{}, err
	}

	if b.Tasks == nil {
		b.Tasks = []model.Task{}
	}
	if len(b.Columns) == 0 {
		b.Columns = model.DefaultColumns(s.extended)
	}
	if b.Labels == nil {
		b.Labels = model.DefaultLabels()
	}
	return b, nil
}

func (s *Store) load(ctx context.Context, key string, dst any) error {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := sonic.ConfigStd.Unmarshal(raw, dst); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("⚠️  Unreadable offline value, using default")
	}
	return nil
}

// SaveBoard writes all collections in one transaction.
func (s *Store) SaveBoard(ctx context.Context, b model.Board) error {
	tasks := b.Tasks
	if tasks == nil {
		tasks = []model.Task{}
	}
	values := map[string]any{KeyTasks: tasks, KeyColumns: b.Columns}
	if b.Labels != nil {
		values[KeyLabels] = b.Labels
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for key, v := range values {
		data, err := sonic.ConfigStd.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := set(ctx, tx, key, data); err != nil {
			return err
		}
	}
	return tx.Commit()
}
