package calls

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

var callCols = []string{
	"id", "call_id", "caller_number", "transcript", "duration_seconds", "sentiment",
	"transferred", "email_sent", "placeholder_kind", "created_at", "updated_at",
}

func TestPostgresStore_LocksBeforeReading(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
		WithArgs("caller:+17705550100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
		WithArgs("call:c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM call_logs\s+WHERE call_id = \$1\s+FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(callCols).
			AddRow(int64(7), "c1", "+17705550100", "hi", int64(42), "neutral", false, true, "", now, now))
	mock.ExpectCommit()

	var got CallLog
	err = NewPostgresStore(db).WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.LockCallerKey(ctx, "+17705550100"); err != nil {
			return err
		}
		if err := tx.LockCallKey(ctx, "c1"); err != nil {
			return err
		}
		got, err = tx.GetCall(ctx, "c1")
		return err
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if got.ID != 7 || got.DurationSeconds == nil || *got.DurationSeconds != 42 || !got.EmailSent {
		t.Fatalf("unexpected call %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_NotFoundRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(callCols))
	mock.ExpectRollback()

	err = NewPostgresStore(db).WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.GetCall(ctx, "missing")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_ExhaustedDeadlockRetriesBecomeConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs("call:c1").WillReturnError(deadlock)
		mock.ExpectRollback()
	}

	runs := 0
	err = NewPostgresStore(db).WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		runs++
		return tx.LockCallKey(ctx, "c1")
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if runs != 3 {
		t.Fatalf("expected 3 attempts, got %d", runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_CandidateQueryDoesNotLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	since := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)WHERE caller_number = \$1\s+AND created_at >= \$2.*ORDER BY created_at DESC, id DESC\s+LIMIT 1\s*$`).
		WithArgs("+17705550100", since, true, "").
		WillReturnRows(sqlmock.NewRows(callCols).
			AddRow(int64(3), "p1", "+17705550100", EmailPlaceholderTranscript, nil, "", false, true, "email", since, since))
	mock.ExpectCommit()

	var got CallLog
	err = NewPostgresStore(db).WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		got, err = tx.FindCorrelationCandidate(ctx, CandidateQuery{CallerNumber: "+17705550100", Since: since, PlaceholdersOnly: true})
		return err
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if got.CallID != "p1" || got.PlaceholderKind != PlaceholderEmail || got.DurationSeconds != nil {
		t.Fatalf("unexpected candidate %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_SetEmailDeliveryOnlyFromPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE email_events\s+SET delivery_status = \$2, delivery_error = \$3, completed_at = \$4\s+WHERE id = \$1 AND delivery_status = 'pending'`).
		WithArgs("e1", DeliveryFailed, "timeout", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewPostgresStore(db).WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.SetEmailDelivery(ctx, "e1", DeliveryFailed, "timeout", at)
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
