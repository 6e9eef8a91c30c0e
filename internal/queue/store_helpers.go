package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, source_kind, source_ref, origin, title, status, error_stage, error_message, error_at, created_at, updated_at, claimed_at"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		sourceKind   string
		sourceRef    string
		origin       sql.NullString
		title        sql.NullString
		statusStr    string
		errorStage   sql.NullString
		errorMessage sql.NullString
		errorAtRaw   sql.NullString
		createdRaw   string
		updatedRaw   string
		claimedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&sourceKind,
		&sourceRef,
		&origin,
		&title,
		&statusStr,
		&errorStage,
		&errorMessage,
		&errorAtRaw,
		&createdRaw,
		&updatedRaw,
		&claimedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Title:        title.String,
		Source:       Source{Kind: SourceKind(sourceKind), Ref: sourceRef},
		Origin:       origin.String,
		Status:       Status(statusStr),
		StageOutputs: map[Stage]string{},
		Attempts:     map[Stage]int{},
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			job.ClaimedAt = &claimed
		}
	}
	if errorStage.Valid && errorStage.String != "" {
		job.Error = &JobError{Stage: Stage(errorStage.String), Message: errorMessage.String}
		if at, err := parseTimeString(errorAtRaw.String); err == nil {
			job.Error.Timestamp = at
		}
	}
	return job, nil
}

// loadDetails fills stage outputs and attempt counters. Later outputs for the
// same stage win; earlier rows stay in the table as history.
func loadDetails(ctx context.Context, q queryer, job *Job) error {
	rows, err := q.QueryContext(ctx, `SELECT stage, artifact FROM stage_outputs WHERE job_id = ? ORDER BY id`, job.ID)
	if err != nil {
		return fmt.Errorf("load stage outputs: %w", err)
	}
	for rows.Next() {
		var stageName, artifact string
		if err := rows.Scan(&stageName, &artifact); err != nil {
			rows.Close()
			return err
		}
		job.StageOutputs[Stage(stageName)] = artifact
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT stage, attempts FROM stage_attempts WHERE job_id = ?`, job.ID)
	if err != nil {
		return fmt.Errorf("load stage attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stageName string
		var attempts int
		if err := rows.Scan(&stageName, &attempts); err != nil {
			return err
		}
		job.Attempts[Stage(stageName)] = attempts
	}
	return rows.Err()
}

func currentStatus(ctx context.Context, q queryer, id string) (Status, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("lookup job status: %w", err)
	}
	return Status(status), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout keeps a fixed-width fraction so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}

func failureStatuses() []Status {
	out := make([]Status, 0, len(table))
	for _, row := range table {
		out = append(out, row.Failure)
	}
	return out
}
