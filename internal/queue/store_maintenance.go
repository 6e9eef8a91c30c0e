package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Counts returns a snapshot of job counts grouped by status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// Failures lists every job in a failure status, most recent failure first.
func (s *Store) Failures(ctx context.Context) ([]Failure, error) {
	statuses := failureStatuses()
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, title, error_stage, error_message, error_at FROM jobs
         WHERE status IN (`+makePlaceholders(len(statuses))+`)
         ORDER BY error_at DESC, id`,
		statusArgs(statuses)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var (
			f       Failure
			title   *string
			stage   *string
			message *string
			atRaw   *string
		)
		if err := rows.Scan(&f.JobID, &title, &stage, &message, &atRaw); err != nil {
			return nil, err
		}
		f.Title = deref(title)
		f.Stage = Stage(deref(stage))
		f.Message = deref(message)
		if at, err := parseTimeString(deref(atRaw)); err == nil {
			f.Timestamp = at
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath         string
	DatabaseExists bool
	Readable       bool
	SchemaVersion  int
	TotalJobs      int
	IntegrityCheck bool
	Error          string
}

// CheckHealth inspects the database file, schema version, and integrity.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("job database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat job database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("job database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping job database: %w", err)
	}
	health.Readable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count jobs: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
