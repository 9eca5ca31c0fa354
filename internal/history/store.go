// Package history persists terminal execution records in SQLite so they
// outlive their cache TTL for cleanup and operator inspection.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/wosledon/AIReview-sub002/internal/execution"
	"github.com/wosledon/AIReview-sub002/internal/logging"
)

// Store archives execution records in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-16000", // 16MB cache
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating execution history database", logging.Fields{
			"path": dbPath,
		})
	}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			job_type TEXT NOT NULL,
			job_key TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER DEFAULT 0,
			progress_message TEXT,
			error TEXT,
			result TEXT,
			started_at TEXT NOT NULL,
			completed_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_executions_identity ON executions(job_type, job_key);
		CREATE INDEX IF NOT EXISTS idx_executions_completed_at ON executions(completed_at);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Append stores a terminal record, replacing any earlier row for the same
// execution ID.
func (s *Store) Append(ctx context.Context, rec *execution.Record) error {
	query := `
		INSERT OR REPLACE INTO executions
			(execution_id, job_type, job_key, status, progress, progress_message, error, result, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		rec.ExecutionID,
		rec.JobType,
		rec.JobKey,
		string(rec.Status),
		rec.Progress,
		nullString(rec.ProgressMessage),
		nullString(rec.ErrorMessage),
		nullString(rec.Result),
		rec.StartedAt.Format(time.RFC3339),
		nullTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}

	return nil
}

// Get retrieves the most recent record for (jobType, jobKey).
func (s *Store) Get(ctx context.Context, jobType, jobKey string) (*execution.Record, error) {
	query := `
		SELECT execution_id, job_type, job_key, status, progress, progress_message, error, result, started_at, completed_at
		FROM executions
		WHERE job_type = ? AND job_key = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	row := s.conn.QueryRowContext(ctx, query, jobType, jobKey)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListOptions filters List results.
type ListOptions struct {
	JobType string
	Status  []execution.Status
	Limit   int
	Offset  int
}

// List retrieves archived records, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*execution.Record, error) {
	var conditions []string
	var args []interface{}

	if opts.JobType != "" {
		conditions = append(conditions, "job_type = ?")
		args = append(args, opts.JobType)
	}
	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, st := range opts.Status {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT execution_id, job_type, job_key, status, progress, progress_message, error, result, started_at, completed_at
		FROM executions %s
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*execution.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Cleanup removes terminal records whose completion is older than the
// retention horizon. Returns the number of rows removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	result, err := s.conn.ExecContext(ctx, `
		DELETE FROM executions
		WHERE status IN ('completed', 'failed')
		AND completed_at IS NOT NULL
		AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup executions: %w", err)
	}

	return result.RowsAffected()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*execution.Record, error) {
	var rec execution.Record
	var status, startedAt string
	var progressMessage, errMsg, result, completedAt sql.NullString

	err := sc.Scan(
		&rec.ExecutionID,
		&rec.JobType,
		&rec.JobKey,
		&status,
		&rec.Progress,
		&progressMessage,
		&errMsg,
		&result,
		&startedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan execution record: %w", err)
	}

	rec.Status = execution.Status(status)
	rec.ProgressMessage = progressMessage.String
	rec.ErrorMessage = errMsg.String
	rec.Result = result.String

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		rec.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}

	return &rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
