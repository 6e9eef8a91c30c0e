package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// maxIDSuffix bounds the search for a free id when the preferred one is taken.
const maxIDSuffix = 1000

// PutIfAbsent registers job in the initial status unless its source is already known.
func (s *Store) PutIfAbsent(ctx context.Context, job NewJob) (string, bool, error) {
	if err := job.Source.Validate(); err != nil {
		return "", false, err
	}
	preferred := strings.TrimSpace(job.ID)
	if preferred == "" {
		return "", false, errors.New("job id is required")
	}

	var (
		id      string
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = false
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE source_kind = ? AND source_ref = ?`,
			string(job.Source.Kind), job.Source.Ref,
		).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup source: %w", err)
		}

		id, err = freeID(ctx, tx, preferred)
		if err != nil {
			return err
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, source_kind, source_ref, origin, title, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			string(job.Source.Kind),
			job.Source.Ref,
			nullableString(job.Origin),
			nullableString(strings.TrimSpace(job.Title)),
			string(Initial),
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

func freeID(ctx context.Context, q queryer, preferred string) (string, error) {
	candidate := preferred
	for suffix := 2; suffix <= maxIDSuffix+1; suffix++ {
		var exists int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, candidate).Scan(&exists); err != nil {
			return "", fmt.Errorf("check job id: %w", err)
		}
		if exists == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", preferred, suffix)
	}
	return "", fmt.Errorf("no free job id for %q", preferred)
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := loadDetails(ctx, s.db, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, job := range jobs {
		if err := loadDetails(ctx, s.db, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}
