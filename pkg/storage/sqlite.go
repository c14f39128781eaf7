package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gravito-framework/quasar-stat/pkg/types"
	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

// Timestamps are stored as UTC text so they sort lexically.
const timeLayout = "2006-01-02 15:04:05"

// SQLite stores snapshots in a local database file.
type SQLite struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

// OpenSQLite opens (and migrates) the database at cfg.Path.
func OpenSQLite(cfg Config, logger *slog.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	logger.Debug("Storage opened", "driver", "sqlite", "path", path)
	return &SQLite{db: db, runID: cfg.RunID, logger: logger}, nil
}

// RecordSnapshot inserts one queue depth sample.
func (s *SQLite) RecordSnapshot(ctx context.Context, at time.Time, count int64) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quasar_queue_stat(run_id, created, queue) VALUES(?,?,?)`,
		s.runID, at.UTC().Format(timeLayout), count,
	)
	if err != nil {
		return fmt.Errorf("insert queue stat: %w", err)
	}
	return nil
}

// RecordConsumers inserts one consumer sample. PIDs are stored as a comma
// separated list.
func (s *SQLite) RecordConsumers(ctx context.Context, at time.Time, pids []int32) error {
	if s.db == nil {
		return ErrClosed
	}
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.FormatInt(int64(pid), 10)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quasar_consumer_stat(run_id, created, consumers, pids) VALUES(?,?,?,?)`,
		s.runID, at.UTC().Format(timeLayout), len(pids), strings.Join(parts, ","),
	)
	if err != nil {
		return fmt.Errorf("insert consumer stat: %w", err)
	}
	return nil
}

// Snapshots returns the newest queue samples first.
func (s *SQLite) Snapshots(ctx context.Context, limit int) ([]types.StatSnapshot, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created, queue FROM quasar_queue_stat ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.StatSnapshot
	for rows.Next() {
		var (
			snap    types.StatSnapshot
			created string
		)
		if err := rows.Scan(&snap.RunID, &created, &snap.Queue); err != nil {
			return nil, err
		}
		if snap.Created, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Consumers returns the newest consumer samples first.
func (s *SQLite) Consumers(ctx context.Context, limit int) ([]types.ConsumerSnapshot, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created, pids FROM quasar_consumer_stat ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ConsumerSnapshot
	for rows.Next() {
		var (
			snap    types.ConsumerSnapshot
			created string
			pids    string
		)
		if err := rows.Scan(&snap.RunID, &created, &pids); err != nil {
			return nil, err
		}
		if snap.Created, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		for _, p := range strings.Split(pids, ",") {
			if p == "" {
				continue
			}
			n, err := strconv.ParseInt(p, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("corrupt pid list %q: %w", pids, err)
			}
			snap.PIDs = append(snap.PIDs, int32(n))
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database. Further writes return ErrClosed.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}

var _ Sink = (*SQLite)(nil)
