package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 50

// SQLiteStore is the invocation journal. It implements engine.Journal.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ engine.Journal = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path string
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database and applies connection PRAGMAs. The pool holds
// a single connection so ":memory:" databases survive between calls.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginInvocation records that an invocation started.
func (s *SQLiteStore) BeginInvocation(ctx context.Context, result *engine.Result) error {
	query := `
		INSERT INTO invocations (id, event_type, application_id, request_id, phase, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.InvocationID,
		string(result.Event.Type),
		result.Event.ApplicationID,
		nullString(result.Event.RequestID),
		string(result.Phase),
		result.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation: %w", err)
	}

	return nil
}

// RecordStep appends a step to an invocation. Steps are numbered in the
// order they are recorded.
func (s *SQLiteStore) RecordStep(ctx context.Context, invocationID string, step engine.StepResult) error {
	query := `
		INSERT INTO steps (invocation_id, seq, name, resource, status, error, started_at, duration_ns)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?
		FROM steps WHERE invocation_id = ?
	`

	var errMsg *string
	if step.Err != nil {
		msg := step.Err.Error()
		errMsg = &msg
	}

	_, err := s.db.ExecContext(ctx, query,
		invocationID,
		step.Name,
		string(step.Resource),
		string(step.Status),
		errMsg,
		step.StartedAt.UnixNano(),
		int64(step.Duration),
		invocationID,
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", step.Name, err)
	}

	return nil
}

// CompleteInvocation records the terminal phase, outputs and error.
func (s *SQLiteStore) CompleteInvocation(ctx context.Context, result *engine.Result, invErr error) error {
	query := `
		UPDATE invocations
		SET phase = ?, stream_arn = ?, pinpoint_role_arn = ?, error = ?, error_kind = ?, completed_at = ?
		WHERE id = ?
	`

	var errMsg, errKind *string
	if invErr != nil {
		msg := invErr.Error()
		kind := string(engine.KindOf(invErr))
		errMsg, errKind = &msg, &kind
	}

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, query,
		string(result.Phase),
		nullString(result.Outputs.StreamArn),
		nullString(result.Outputs.PinpointRoleArn),
		errMsg,
		errKind,
		completedAt.UnixNano(),
		result.InvocationID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete invocation: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, result.InvocationID)
	}

	return nil
}

const invocationColumns = `id, event_type, application_id, request_id, phase, stream_arn,
	pinpoint_role_arn, error, error_kind, started_at, completed_at`

// GetInvocation retrieves an invocation and its steps by ID
func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE id = ?`

	inv, err := scanInvocation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}

	steps, err := s.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Steps = steps

	return inv, nil
}

// ListInvocations lists invocations, newest first. Steps are not loaded.
func (s *SQLiteStore) ListInvocations(ctx context.Context, opts ListOptions) ([]*Invocation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + invocationColumns + ` FROM invocations`
	args := []interface{}{}
	if opts.ApplicationID != "" {
		query += ` WHERE application_id = ?`
		args = append(args, opts.ApplicationID)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	invocations := []*Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocations: %w", err)
	}

	return invocations, nil
}

// DeleteInvocationsBefore removes invocations started before cutoff along
// with their steps.
func (s *SQLiteStore) DeleteInvocationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocations WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune invocations: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) listSteps(ctx context.Context, invocationID string) ([]Step, error) {
	query := `
		SELECT seq, name, resource, status, error, started_at, duration_ns
		FROM steps
		WHERE invocation_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, invocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var (
			step      Step
			errMsg    sql.NullString
			startedAt int64
			duration  int64
		)
		if err := rows.Scan(&step.Seq, &step.Name, &step.Resource, &step.Status, &errMsg, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.Error = stringPtr(errMsg)
		step.StartedAt = time.Unix(0, startedAt).UTC()
		step.Duration = time.Duration(duration)
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var (
		inv                           Invocation
		requestID, streamArn, roleArn sql.NullString
		errMsg, errKind               sql.NullString
		startedAt                     int64
		completedAt                   sql.NullInt64
	)

	err := row.Scan(
		&inv.ID,
		&inv.EventType,
		&inv.ApplicationID,
		&requestID,
		&inv.Phase,
		&streamArn,
		&roleArn,
		&errMsg,
		&errKind,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.RequestID = requestID.String
	inv.StreamArn = streamArn.String
	inv.PinpointRoleArn = roleArn.String
	inv.Error = stringPtr(errMsg)
	inv.ErrorKind = stringPtr(errKind)
	inv.StartedAt = time.Unix(0, startedAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		inv.CompletedAt = &t
	}

	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
