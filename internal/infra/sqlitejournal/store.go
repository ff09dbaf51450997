package sqlitejournal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/osvaldoandrade/pkgmirror/internal/platform"
	_ "modernc.org/sqlite"
)

var ErrPathRequired = errors.New("sqlite path required")

// Store keeps reconciliation runs and their events in a SQLite file.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

type OpenOptions struct {
	Fast   bool
	Now    func() time.Time
	Logger *slog.Logger
}

func Open(path string) (*Store, error) {
	return OpenWithOptions(path, OpenOptions{})
}

func OpenWithOptions(path string, opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}

	if shouldCreateDir(path) {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, now: opts.Now, logger: opts.Logger}
	if store.now == nil {
		store.now = time.Now
	}
	if store.logger == nil {
		store.logger = platform.DiscardLogger()
	}
	if err := store.applyPragmas(context.Background(), opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records run as running. StartedAt defaults to the current time.
func (s *Store) StartRun(ctx context.Context, run domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, channel, architecture, started_at, finished_at, status, passes, drifts, snapshot_date, snapshot_digest, error)
		VALUES (?, ?, ?, ?, 0, ?, 0, 0, '', '', '')
	`, run.ID, run.Channel, run.Architecture, run.StartedAt.UnixMilli(), string(domain.RunRunning)); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of run. FinishedAt defaults to the current time.
func (s *Store) FinishRun(ctx context.Context, run domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, passes = ?, drifts = ?, snapshot_date = ?, snapshot_digest = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt.UnixMilli(), string(run.Status), run.Passes, run.Drifts, run.SnapshotDate, run.SnapshotDigest, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, architecture, started_at, finished_at, status, passes, drifts, snapshot_date, snapshot_digest, error
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return domain.Run{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel, architecture, started_at, finished_at, status, passes, drifts, snapshot_date, snapshot_digest, error
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
		}
		return domain.Run{}, err
	}
	return run, nil
}

// ListEvents returns the events of a run in the order they were recorded.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, pass, sub_channel, name, version, tag, drift_kind, action, exit_code, recorded_at
		FROM events
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var event domain.RunEvent
		var recordedAt int64
		if err := rows.Scan(
			&event.RunID, &event.Seq, &event.Kind, &event.Pass, &event.SubChannel, &event.Name,
			&event.Version, &event.Tag, &event.DriftKind, &event.Action, &event.ExitCode, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.RecordedAt = time.UnixMilli(recordedAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Recorder returns a sink that journals every event under runID. Write
// failures are logged and never reach the caller.
func (s *Store) Recorder(runID string) reconcile.Sink {
	return &recorder{store: s, runID: runID}
}

type recorder struct {
	store *Store
	runID string

	mu  sync.Mutex
	seq int
}

func (r *recorder) Emit(ctx context.Context, event reconcile.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if err := r.store.insertEvent(ctx, r.runID, r.seq, event); err != nil {
		r.store.logger.Warn("journal write failed", "run", r.runID, "kind", string(event.Kind), "err", err)
	}
}

func (s *Store) insertEvent(ctx context.Context, runID string, seq int, event reconcile.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, pass, sub_channel, name, version, tag, drift_kind, action, exit_code, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, seq, string(event.Kind), event.Pass, event.SubChannel, event.Name, event.Version, event.Tag,
		string(event.DriftKind), string(event.Action), event.ExitCode, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var status string
	var startedAt, finishedAt int64
	if err := row.Scan(
		&run.ID, &run.Channel, &run.Architecture, &startedAt, &finishedAt, &status,
		&run.Passes, &run.Drifts, &run.SnapshotDate, &run.SnapshotDigest, &run.Error,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, err
		}
		return domain.Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt != 0 {
		run.FinishedAt = time.UnixMilli(finishedAt).UTC()
	}
	return run, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			architecture TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			passes INTEGER NOT NULL DEFAULT 0,
			drifts INTEGER NOT NULL DEFAULT 0,
			snapshot_date TEXT NOT NULL DEFAULT '',
			snapshot_digest TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			pass INTEGER NOT NULL,
			sub_channel TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			drift_kind TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			exit_code INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)
	`); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at)"); err != nil {
		return fmt.Errorf("create runs index: %w", err)
	}
	return nil
}

func (s *Store) applyPragmas(ctx context.Context, opts OpenOptions) error {
	if !opts.Fast {
		return nil
	}
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	return nil
}

func shouldCreateDir(path string) bool {
	if path == ":memory:" {
		return false
	}
	if strings.HasPrefix(path, "file:") {
		return false
	}
	return true
}
