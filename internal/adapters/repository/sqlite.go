package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore is a durable Store. Subscriptions are in-process and see only
// writes made through this instance.
type SQLiteStore struct {
	path        string
	db          *sql.DB
	hub         *hub
	busyTimeout time.Duration
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// pending migrations.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		path:        path,
		hub:         newHub(),
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps transactions simple.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put implements pipeline.ReportStore as an upsert keyed by job_id.
func (s *SQLiteStore) Put(ctx context.Context, job model.PipelineJob) error {
	if job.JobID == "" {
		return ErrEmptyID
	}
	start := time.Now()
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, session_id, engine_id, stage, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			engine_id = excluded.engine_id,
			stage = excluded.stage,
			updated_at = excluded.updated_at,
			body = excluded.body`,
		job.JobID, job.SessionID, job.EngineID, string(job.Stage),
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", job.JobID, err)
	}
	metrics.RecordStoreOperationLatency("put", float64(time.Since(start).Microseconds())/1000)
	s.hub.publish(job)
	return nil
}

// Get implements pipeline.ReportStore.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (model.PipelineJob, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM jobs WHERE job_id = ?", jobID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PipelineJob{}, fmt.Errorf("%w: %s", pipeline.ErrJobNotFound, jobID)
	}
	if err != nil {
		return model.PipelineJob{}, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	return decodeJob(body)
}

// Subscribe implements pipeline.ReportStore.
func (s *SQLiteStore) Subscribe(jobID string, fn func(model.PipelineJob)) func() {
	return s.hub.subscribe(jobID, fn)
}

// PutSession implements pipeline.ReportStore.
func (s *SQLiteStore) PutSession(ctx context.Context, session model.MeasurementSession) error {
	if session.SessionID == "" {
		return ErrEmptyID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT body FROM sessions WHERE session_id = ?", session.SessionID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("loading session %s: %w", session.SessionID, err)
	default:
		prev, err := decodeSession(existing)
		if err != nil {
			return err
		}
		if prev.IsSealed() {
			if !prev.SameContent(session) {
				return fmt.Errorf("%w: %s", model.ErrSessionSealed, session.SessionID)
			}
			return nil
		}
	}

	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	var sealedAt sql.NullInt64
	if session.SealedAt != nil {
		sealedAt = sql.NullInt64{Int64: session.SealedAt.UnixNano(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, sealed_at, body) VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET sealed_at = excluded.sealed_at, body = excluded.body`,
		session.SessionID, sealedAt, string(body)); err != nil {
		return fmt.Errorf("upserting session %s: %w", session.SessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", session.SessionID, err)
	}
	return nil
}

// GetSession implements pipeline.ReportStore.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (model.MeasurementSession, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM sessions WHERE session_id = ?", sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MeasurementSession{}, fmt.Errorf("%w: %s", pipeline.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return model.MeasurementSession{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return decodeSession(body)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.PipelineJob, error) {
	limit, err := f.limit()
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, string(f.Stage))
	}
	query := "SELECT body FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, job_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []model.PipelineJob
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		job, err := decodeJob(body)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Count implements Store. Errors count as zero.
func (s *SQLiteStore) Count(ctx context.Context) (int, int) {
	var jobs, sessions int
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&jobs)
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessions)
	return jobs, sessions
}

func decodeJob(body string) (model.PipelineJob, error) {
	var job model.PipelineJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return model.PipelineJob{}, fmt.Errorf("decoding job: %w", err)
	}
	return job, nil
}

func decodeSession(body string) (model.MeasurementSession, error) {
	var session model.MeasurementSession
	if err := json.Unmarshal([]byte(body), &session); err != nil {
		return model.MeasurementSession{}, fmt.Errorf("decoding session: %w", err)
	}
	return session, nil
}
