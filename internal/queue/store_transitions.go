package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// ClaimNext atomically moves up to limit jobs from the eligible status of st
// to its in-progress status and bumps their attempt counters.
func (s *Store) ClaimNext(ctx context.Context, st Stage, limit int) ([]string, error) {
	row, ok := Lookup(st)
	if !ok {
		return nil, fmt.Errorf("claim: unknown stage %q", st)
	}
	if limit <= 0 {
		return nil, nil
	}

	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids = ids[:0]
		now := s.timestamp()
		rows, err := tx.QueryContext(ctx,
			`UPDATE jobs SET status = ?, claimed_at = ?, updated_at = ?
             WHERE id IN (SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT ?)
             RETURNING id`,
			string(row.InProgress), now, now, string(row.Eligible), limit,
		)
		if err != nil {
			return fmt.Errorf("claim jobs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stage_attempts (job_id, stage, attempts) VALUES (?, ?, 1)
                 ON CONFLICT (job_id, stage) DO UPDATE SET attempts = attempts + 1`,
				id, string(st),
			); err != nil {
				return fmt.Errorf("record attempt: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Complete moves a claimed job to the success status of st and appends artifact to its outputs.
func (s *Store) Complete(ctx context.Context, id string, st Stage, artifact string) error {
	row, ok := Lookup(st)
	if !ok {
		return fmt.Errorf("complete: unknown stage %q", st)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		if err := transition(ctx, tx, id, row,
			`UPDATE jobs SET status = ?, error_stage = NULL, error_message = NULL, error_at = NULL,
                 claimed_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(row.Success), now, id, string(row.InProgress),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_outputs (job_id, stage, artifact, recorded_at) VALUES (?, ?, ?, ?)`,
			id, string(st), artifact, now,
		); err != nil {
			return fmt.Errorf("record stage output: %w", err)
		}
		return nil
	})
}

// Fail moves a claimed job to the failure status of st and records message.
func (s *Store) Fail(ctx context.Context, id string, st Stage, message string) error {
	row, ok := Lookup(st)
	if !ok {
		return fmt.Errorf("fail: unknown stage %q", st)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		return transition(ctx, tx, id, row,
			`UPDATE jobs SET status = ?, error_stage = ?, error_message = ?, error_at = ?,
                 claimed_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(row.Failure), string(st), failureMessage(message), now, now, id, string(row.InProgress),
		)
	})
}

// transition runs a guarded UPDATE and explains a miss as not-found or an off-table change.
func transition(ctx context.Context, q queryer, id string, row Transition, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
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
	current, err := currentStatus(ctx, q, id)
	if err != nil {
		return err
	}
	return &TransitionError{JobID: id, Stage: row.Stage, From: current, Want: row.InProgress}
}

// Reset returns a failed job to a runnable status. An empty st restarts the
// whole pipeline; otherwise st must be the stage the job failed in.
func (s *Store) Reset(ctx context.Context, id string, st Stage) (Status, error) {
	if st != "" && !st.Valid() {
		return "", fmt.Errorf("reset: unknown stage %q", st)
	}
	var next Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err = ResetTarget(id, current, st)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error_stage = NULL, error_message = NULL, error_at = NULL,
                 claimed_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(next), s.timestamp(), id, string(current),
		)
		if err != nil {
			return fmt.Errorf("reset job %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// ResetTarget applies the reset rules shared by every backend: it reports
// where a job in status current moves when reset for st.
func ResetTarget(id string, current Status, st Stage) (Status, error) {
	failed, ok := FailedStage(current)
	if !ok {
		return "", fmt.Errorf("job %s is %s: %w", id, current, ErrNotFailed)
	}
	if st == "" {
		return Initial, nil
	}
	if st != failed {
		return "", fmt.Errorf("job %s failed in %s, not %s: %w", id, failed, st, ErrStageMismatch)
	}
	return MustLookup(failed).Eligible, nil
}

// Abandon fails an in-progress job in place, releasing a claim whose owner
// is known to have exited. The job can then be retried.
func (s *Store) Abandon(ctx context.Context, id string, message string) (Stage, error) {
	var abandoned Stage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		st, ok := InProgressStage(current)
		if !ok {
			return fmt.Errorf("job %s is %s: %w", id, current, ErrNotInProgress)
		}
		row := MustLookup(st)
		now := s.timestamp()
		if err := transition(ctx, tx, id, row,
			`UPDATE jobs SET status = ?, error_stage = ?, error_message = ?, error_at = ?,
                 claimed_at = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(row.Failure), string(st), failureMessage(message), now, now, id, string(row.InProgress),
		); err != nil {
			return err
		}
		abandoned = st
		return nil
	})
	if err != nil {
		return "", err
	}
	return abandoned, nil
}

// AbandonInProgress fails every in-progress job with message.
func (s *Store) AbandonInProgress(ctx context.Context, message string) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		total = 0
		now := s.timestamp()
		for _, row := range table {
			res, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, error_stage = ?, error_message = ?, error_at = ?,
                     claimed_at = NULL, updated_at = ?
                 WHERE status = ?`,
				string(row.Failure), string(row.Stage), failureMessage(message), now, now, string(row.InProgress),
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

func failureMessage(message string) string {
	if message == "" {
		return "stage failed"
	}
	return message
}
