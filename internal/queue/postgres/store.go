// Package postgres implements queue.JobStore on PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so several graphmem processes can share one table.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"graphmem/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaLockID serializes schema creation across processes.
const schemaLockID = 0x6772_6d6d

const maxIDSuffix = 1000

const jobColumns = `id, source_kind, source_ref, origin, title, status,
       error_stage, error_message, error_at, created_at, updated_at, claimed_at`

// Store persists job records in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ queue.JobStore = (*Store)(nil)

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the graphmem schema under a transaction-scoped advisory lock.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	})
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PutIfAbsent inserts the job unless its source is known. A taken id with a
// different source is retried with a numeric suffix.
func (s *Store) PutIfAbsent(ctx context.Context, job queue.NewJob) (string, bool, error) {
	if err := job.Source.Validate(); err != nil {
		return "", false, err
	}
	preferred := strings.TrimSpace(job.ID)
	if preferred == "" {
		return "", false, errors.New("job id is required")
	}

	candidate := preferred
	for suffix := 2; suffix <= maxIDSuffix+1; suffix++ {
		var id string
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO graphmem.jobs (id, source_kind, source_ref, origin, title, status)
             VALUES ($1, $2, $3, $4, $5, $6)
             ON CONFLICT DO NOTHING
             RETURNING id`,
			candidate, string(job.Source.Kind), job.Source.Ref,
			nullable(job.Origin), nullable(strings.TrimSpace(job.Title)), string(queue.Initial),
		).Scan(&id)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("insert job: %w", err)
		}

		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM graphmem.jobs WHERE source_kind = $1 AND source_ref = $2`,
			string(job.Source.Kind), job.Source.Ref,
		).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("lookup source: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d", preferred, suffix)
	}
	return "", false, fmt.Errorf("no free job id for %q", preferred)
}

// ClaimNext locks up to limit eligible rows, skipping rows other claimers hold.
func (s *Store) ClaimNext(ctx context.Context, st queue.Stage, limit int) ([]string, error) {
	row, ok := queue.Lookup(st)
	if !ok {
		return nil, fmt.Errorf("claim: unknown stage %q", st)
	}
	if limit <= 0 {
		return nil, nil
	}

	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`UPDATE graphmem.jobs SET status = $1, claimed_at = now(), updated_at = now()
             WHERE status = $2 AND id IN (
                 SELECT id FROM graphmem.jobs WHERE status = $2
                 ORDER BY created_at, id LIMIT $3
                 FOR UPDATE SKIP LOCKED)
             RETURNING id`,
			string(row.InProgress), string(row.Eligible), limit,
		)
		if err != nil {
			return fmt.Errorf("claim jobs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO graphmem.stage_attempts (job_id, stage, attempts)
             SELECT unnest($1::text[]), $2, 1
             ON CONFLICT (job_id, stage) DO UPDATE SET attempts = graphmem.stage_attempts.attempts + 1`,
			pq.Array(ids), string(st),
		); err != nil {
			return fmt.Errorf("record attempts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Complete moves a claimed job to the success status of st.
func (s *Store) Complete(ctx context.Context, id string, st queue.Stage, artifact string) error {
	row, ok := queue.Lookup(st)
	if !ok {
		return fmt.Errorf("complete: unknown stage %q", st)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := guarded(ctx, tx, id, row,
			`UPDATE graphmem.jobs SET status = $1, error_stage = NULL, error_message = NULL, error_at = NULL,
                 claimed_at = NULL, updated_at = now()
             WHERE id = $2 AND status = $3`,
			string(row.Success), id, string(row.InProgress),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO graphmem.stage_outputs (job_id, stage, artifact) VALUES ($1, $2, $3)`,
			id, string(st), artifact,
		); err != nil {
			return fmt.Errorf("record stage output: %w", err)
		}
		return nil
	})
}

// Fail moves a claimed job to the failure status of st.
func (s *Store) Fail(ctx context.Context, id string, st queue.Stage, message string) error {
	row, ok := queue.Lookup(st)
	if !ok {
		return fmt.Errorf("fail: unknown stage %q", st)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return guarded(ctx, tx, id, row,
			`UPDATE graphmem.jobs SET status = $1, error_stage = $2, error_message = $3, error_at = now(),
                 claimed_at = NULL, updated_at = now()
             WHERE id = $4 AND status = $5`,
			string(row.Failure), string(st), failureMessage(message), id, string(row.InProgress),
		)
	})
}

func guarded(ctx context.Context, tx *sql.Tx, id string, row queue.Transition, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	return &queue.TransitionError{JobID: id, Stage: row.Stage, From: current, Want: row.InProgress}
}

func lockStatus(ctx context.Context, tx *sql.Tx, id string) (queue.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM graphmem.jobs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("read job status: %w", err)
	}
	return queue.Status(status), nil
}

// Reset returns a failed job to a runnable status.
func (s *Store) Reset(ctx context.Context, id string, st queue.Stage) (queue.Status, error) {
	if st != "" && !st.Valid() {
		return "", fmt.Errorf("reset: unknown stage %q", st)
	}
	var next queue.Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if next, err = queue.ResetTarget(id, current, st); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE graphmem.jobs SET status = $1, error_stage = NULL, error_message = NULL, error_at = NULL,
                 claimed_at = NULL, updated_at = now()
             WHERE id = $2`,
			string(next), id,
		); err != nil {
			return fmt.Errorf("reset job %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// Abandon fails an in-progress job whose owner has exited.
func (s *Store) Abandon(ctx context.Context, id string, message string) (queue.Stage, error) {
	var abandoned queue.Stage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		st, ok := queue.InProgressStage(current)
		if !ok {
			return fmt.Errorf("job %s is %s: %w", id, current, queue.ErrNotInProgress)
		}
		row := queue.MustLookup(st)
		if _, err := tx.ExecContext(ctx,
			`UPDATE graphmem.jobs SET status = $1, error_stage = $2, error_message = $3, error_at = now(),
                 claimed_at = NULL, updated_at = now()
             WHERE id = $4`,
			string(row.Failure), string(st), failureMessage(message), id,
		); err != nil {
			return fmt.Errorf("abandon job %s: %w", id, err)
		}
		abandoned = st
		return nil
	})
	if err != nil {
		return "", err
	}
	return abandoned, nil
}

// AbandonInProgress fails every in-progress job.
func (s *Store) AbandonInProgress(ctx context.Context, message string) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		total = 0
		for _, row := range queue.Table() {
			res, err := tx.ExecContext(ctx,
				`UPDATE graphmem.jobs SET status = $1, error_stage = $2, error_message = $3, error_at = now(),
                     claimed_at = NULL, updated_at = now()
                 WHERE status = $4`,
				string(row.Failure), string(row.Stage), failureMessage(message), string(row.InProgress),
			)
			if err != nil {
				return fmt.Errorf("abandon %s jobs: %w", row.Stage, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += affected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Counts returns job counts grouped by status.
func (s *Store) Counts(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM graphmem.jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[queue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[queue.Status(status)] = count
	}
	return counts, rows.Err()
}

// Failures lists failed jobs, most recent first.
func (s *Store) Failures(ctx context.Context) ([]queue.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(title, ''), COALESCE(error_stage, ''), COALESCE(error_message, ''), error_at
         FROM graphmem.jobs WHERE status = ANY($1)
         ORDER BY error_at DESC, id`,
		pq.Array(statusStrings(failureStatuses())),
	)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var failures []queue.Failure
	for rows.Next() {
		var (
			f     queue.Failure
			stage string
			at    sql.NullTime
		)
		if err := rows.Scan(&f.JobID, &f.Title, &stage, &f.Message, &at); err != nil {
			return nil, err
		}
		f.Stage = queue.Stage(stage)
		if at.Valid {
			f.Timestamp = at.Time.UTC()
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM graphmem.jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := s.loadDetails(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM graphmem.jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*queue.Job
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
		if err := s.loadDetails(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*queue.Job, error) {
	var (
		job          queue.Job
		kind, status string
		origin       sql.NullString
		title        sql.NullString
		errorStage   sql.NullString
		errorMessage sql.NullString
		errorAt      sql.NullTime
		claimedAt    sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID, &kind, &job.Source.Ref, &origin, &title, &status,
		&errorStage, &errorMessage, &errorAt, &job.CreatedAt, &job.UpdatedAt, &claimedAt,
	); err != nil {
		return nil, err
	}
	job.Source.Kind = queue.SourceKind(kind)
	job.Status = queue.Status(status)
	job.Origin = origin.String
	job.Title = title.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.StageOutputs = map[queue.Stage]string{}
	job.Attempts = map[queue.Stage]int{}
	if claimedAt.Valid {
		at := claimedAt.Time.UTC()
		job.ClaimedAt = &at
	}
	if errorStage.Valid && errorStage.String != "" {
		job.Error = &queue.JobError{Stage: queue.Stage(errorStage.String), Message: errorMessage.String}
		if errorAt.Valid {
			job.Error.Timestamp = errorAt.Time.UTC()
		}
	}
	return &job, nil
}

func (s *Store) loadDetails(ctx context.Context, job *queue.Job) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, artifact FROM graphmem.stage_outputs WHERE job_id = $1 ORDER BY id`, job.ID)
	if err != nil {
		return fmt.Errorf("load stage outputs: %w", err)
	}
	for rows.Next() {
		var stage, artifact string
		if err := rows.Scan(&stage, &artifact); err != nil {
			rows.Close()
			return err
		}
		job.StageOutputs[queue.Stage(stage)] = artifact
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT stage, attempts FROM graphmem.stage_attempts WHERE job_id = $1`, job.ID)
	if err != nil {
		return fmt.Errorf("load stage attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage string
		var attempts int
		if err := rows.Scan(&stage, &attempts); err != nil {
			return err
		}
		job.Attempts[queue.Stage(stage)] = attempts
	}
	return rows.Err()
}

func failureStatuses() []queue.Status {
	var out []queue.Status
	for _, row := range queue.Table() {
		out = append(out, row.Failure)
	}
	return out
}

func statusStrings(statuses []queue.Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func failureMessage(message string) string {
	if message == "" {
		return "stage failed"
	}
	return message
}
