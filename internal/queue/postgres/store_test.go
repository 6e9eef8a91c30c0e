package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"graphmem/internal/queue"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimNextSkipsLockedRowsAndCountsAttempts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE graphmem\.jobs SET status = \$1.*FOR UPDATE SKIP LOCKED`).
		WithArgs("downloading", "todo", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec(`INSERT INTO graphmem\.stage_attempts`).
		WithArgs(sqlmock.AnyArg(), "download").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ids, err := store.ClaimNext(context.Background(), queue.Download, 2)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
	expectMet(t, mock)
}

func TestClaimNextNothingEligible(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE graphmem\.jobs SET status`).
		WithArgs("ingesting", "transcribed", 4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	ids, err := store.ClaimNext(context.Background(), queue.Ingest, 4)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty claim, got %v, %v", ids, err)
	}
	expectMet(t, mock)
}

func TestCompleteRejectsJobNotInProgress(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE graphmem\.jobs SET status = \$1`).
		WithArgs("downloaded", "a", "downloading").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM graphmem\.jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("todo"))
	mock.ExpectRollback()

	err := store.Complete(context.Background(), "a", queue.Download, "/tmp/a.mp4")
	var terr *queue.TransitionError
	if !errors.As(err, &terr) || !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if terr.From != queue.StatusTodo {
		t.Fatalf("unexpected from status %s", terr.From)
	}
	expectMet(t, mock)
}

func TestCompleteRecordsOutput(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE graphmem\.jobs SET status = \$1`).
		WithArgs("transcribed", "a", "transcribing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO graphmem\.stage_outputs`).
		WithArgs("a", "transcribe", "/tmp/a_transcription.md").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Complete(context.Background(), "a", queue.Transcribe, "/tmp/a_transcription.md"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	expectMet(t, mock)
}

func TestResetStageMismatchLeavesJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM graphmem\.jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("download_failed"))
	mock.ExpectRollback()

	if _, err := store.Reset(context.Background(), "a", queue.Transcribe); !errors.Is(err, queue.ErrStageMismatch) {
		t.Fatalf("expected stage mismatch, got %v", err)
	}
	expectMet(t, mock)
}

func TestResetToEligibleStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM graphmem\.jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("transcribe_failed"))
	mock.ExpectExec(`UPDATE graphmem\.jobs SET status = \$1`).
		WithArgs("downloaded", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	next, err := store.Reset(context.Background(), "a", queue.Transcribe)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if next != queue.StatusDownloaded {
		t.Fatalf("expected downloaded, got %s", next)
	}
	expectMet(t, mock)
}

func TestResetUnknownJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM graphmem\.jobs`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	if _, err := store.Reset(context.Background(), "ghost", ""); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	expectMet(t, mock)
}

func TestPutIfAbsentReturnsExistingSource(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO graphmem\.jobs`).
		WithArgs("abc", "url", "https://youtu.be/abc", nil, nil, "todo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM graphmem\.jobs WHERE source_kind`).
		WithArgs("url", "https://youtu.be/abc").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("abc"))

	id, created, err := store.PutIfAbsent(context.Background(), queue.NewJob{
		ID:     "abc",
		Source: queue.Source{Kind: queue.SourceURL, Ref: "https://youtu.be/abc"},
	})
	if err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	if created || id != "abc" {
		t.Fatalf("expected existing abc, got %q created=%v", id, created)
	}
	expectMet(t, mock)
}

func TestPutIfAbsentSuffixesTakenID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO graphmem\.jobs`).
		WithArgs("talk", "local", "/media/b/talk.mp4", nil, "talk", "todo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM graphmem\.jobs WHERE source_kind`).
		WithArgs("local", "/media/b/talk.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO graphmem\.jobs`).
		WithArgs("talk-2", "local", "/media/b/talk.mp4", nil, "talk", "todo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("talk-2"))

	id, created, err := store.PutIfAbsent(context.Background(), queue.NewJob{
		ID:     "talk",
		Title:  "talk",
		Source: queue.Source{Kind: queue.SourceLocal, Ref: "/media/b/talk.mp4"},
	})
	if err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	if !created || id != "talk-2" {
		t.Fatalf("expected new talk-2, got %q created=%v", id, created)
	}
	expectMet(t, mock)
}

func TestFailuresScansRows(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, COALESCE\(title, ''\).*status = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "error_stage", "error_message", "error_at"}).
			AddRow("b", "Talk B", "ingest", "endpoint returned 503", at).
			AddRow("a", "", "download", "private video", at.Add(-time.Hour)))

	failures, err := store.Failures(context.Background())
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].JobID != "b" || failures[0].Stage != queue.Ingest || !failures[0].Timestamp.Equal(at) {
		t.Fatalf("unexpected first failure %+v", failures[0])
	}
	expectMet(t, mock)
}

func TestAbandonInProgressSumsStages(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE graphmem\.jobs`).
		WithArgs("download_failed", "download", "interrupted", "downloading").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE graphmem\.jobs`).
		WithArgs("transcribe_failed", "transcribe", "interrupted", "transcribing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE graphmem\.jobs`).
		WithArgs("ingest_failed", "ingest", "interrupted", "ingesting").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := store.AbandonInProgress(context.Background(), "interrupted")
	if err != nil {
		t.Fatalf("AbandonInProgress: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 abandoned jobs, got %d", n)
	}
	expectMet(t, mock)
}

func TestGetUnknownJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, source_kind`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	expectMet(t, mock)
}
