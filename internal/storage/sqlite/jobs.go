package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// ErrJobNotFound is returned when no job has the requested id
var ErrJobNotFound = errors.New("job not found")

// Job statuses
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job kinds
const (
	KindAnalyze = "analyze"
	KindDebug   = "debug_transcription"
)

// JobRecord represents one processing request in the ledger
type JobRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Kind            string    `json:"kind"`
	FileName        string    `json:"file_name"`
	Fingerprint     string    `json:"fingerprint"`
	SizeBytes       int64     `json:"size_bytes"`
	Status          string    `json:"status"`
	Mode            string    `json:"mode,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	SegmentCount    int       `json:"segment_count"`
	WindowsPlanned  int       `json:"windows_planned"`
	WindowsFailed   int       `json:"windows_failed"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// JobOutcome is what a finished job reports back
type JobOutcome struct {
	Mode            string
	DurationSeconds float64
	SegmentCount    int
	WindowsPlanned  int
	WindowsFailed   int
}

// JobStorage is a SQLite-backed ledger of processing jobs
type JobStorage struct {
	db     *sql.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewJobStorage opens the ledger at dsn (":memory:" keeps it in process)
func NewJobStorage(dsn string, log *logger.Logger) (*JobStorage, error) {
	storageLogger := log.Named("sqlite-jobs")
	storageLogger.Info("Initializing job ledger", String("dsn", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: an in-memory database lives and dies with it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set journal mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &JobStorage{db: db, logger: storageLogger, now: time.Now}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initDB initializes the database tables
func (s *JobStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			file_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			status TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			duration_seconds REAL NOT NULL DEFAULT 0,
			segment_count INTEGER NOT NULL DEFAULT 0,
			windows_planned INTEGER NOT NULL DEFAULT 0,
			windows_failed INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`); err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(fingerprint)`); err != nil {
		return fmt.Errorf("failed to create fingerprint index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *JobStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *JobStorage) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Create inserts a queued job and returns its generated id
func (s *JobStorage) Create(ctx context.Context, job *JobRecord) (string, error) {
	id := uuid.NewString()
	ts := s.timestamp()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, session_id, kind, file_name, fingerprint, size_bytes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, job.SessionID, job.Kind, job.FileName, job.Fingerprint, job.SizeBytes, StatusQueued, ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	s.logger.Debug("Job created", String("id", id), String("session_id", job.SessionID))
	return id, nil
}

// MarkRunning moves a job to the running state
func (s *JobStorage) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, s.timestamp(), id)
}

// Complete records a successful outcome
func (s *JobStorage) Complete(ctx context.Context, id string, out JobOutcome) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, mode = ?, duration_seconds = ?, segment_count = ?,
		windows_planned = ?, windows_failed = ?, error = '', updated_at = ? WHERE id = ?`,
		StatusCompleted, out.Mode, out.DurationSeconds, out.SegmentCount,
		out.WindowsPlanned, out.WindowsFailed, s.timestamp(), id)
}

// Fail records a failed job with its error message
func (s *JobStorage) Fail(ctx context.Context, id string, out JobOutcome, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, mode = ?, duration_seconds = ?, segment_count = ?,
		windows_planned = ?, windows_failed = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, out.Mode, out.DurationSeconds, out.SegmentCount,
		out.WindowsPlanned, out.WindowsFailed, msg, s.timestamp(), id)
}

func (s *JobStorage) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

const jobColumns = `id, session_id, kind, file_name, fingerprint, size_bytes, status, mode,
	duration_seconds, segment_count, windows_planned, windows_failed, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var (
		job                  JobRecord
		createdAt, updatedAt string
	)
	err := row.Scan(&job.ID, &job.SessionID, &job.Kind, &job.FileName, &job.Fingerprint, &job.SizeBytes,
		&job.Status, &job.Mode, &job.DurationSeconds, &job.SegmentCount, &job.WindowsPlanned,
		&job.WindowsFailed, &job.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &job, nil
}

// Get returns a job by id
func (s *JobStorage) Get(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first with pagination
func (s *JobStorage) List(ctx context.Context, limit, offset int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	records := make([]*JobRecord, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		records = append(records, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return records, nil
}

// FindByFingerprint returns the jobs that processed the same content, newest first
func (s *JobStorage) FindByFingerprint(ctx context.Context, fingerprint string) ([]*JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE fingerprint = ? ORDER BY created_at DESC, rowid DESC`,
		fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	records := make([]*JobRecord, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		records = append(records, job)
	}
	return records, rows.Err()
}
