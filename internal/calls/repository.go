package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/utils"
)

// NOTE: This repository assumes the tables created by the 0001 migration:
// - call_logs (UNIQUE call_id)
// - email_events, transfer_events (FK call_id -> call_logs ON DELETE CASCADE)
//
// Isolation is READ COMMITTED. Serialization per call and per caller number
// comes from transaction-scoped advisory locks, which also cover rows that do
// not exist yet, followed by SELECT ... FOR UPDATE on the row itself.

// PostgresStore implements Store on database/sql with the pgx driver.
type PostgresStore struct {
	db       *sql.DB
	attempts int
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, attempts: 3}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := utils.WithRetryableTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, s.attempts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
	if utils.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

const advisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

func (t pgTx) LockCallKey(ctx context.Context, callID string) error {
	_, err := t.tx.ExecContext(ctx, advisoryLockSQL, "call:"+callID)
	return err
}

func (t pgTx) LockCallerKey(ctx context.Context, callerNumber string) error {
	_, err := t.tx.ExecContext(ctx, advisoryLockSQL, "caller:"+callerNumber)
	return err
}

const callColumns = `id, call_id, caller_number, transcript, duration_seconds, sentiment,
       transferred, email_sent, placeholder_kind, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallLog, error) {
	var (
		c        CallLog
		caller   sql.NullString
		duration sql.NullInt64
	)
	if err := row.Scan(
		&c.ID,
		&c.CallID,
		&caller,
		&c.Transcript,
		&duration,
		&c.Sentiment,
		&c.Transferred,
		&c.EmailSent,
		&c.PlaceholderKind,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	c.CallerNumber = caller.String
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationSeconds = &d
	}
	return c, nil
}

func (t pgTx) GetCall(ctx context.Context, callID string) (CallLog, error) {
	q := `
SELECT ` + callColumns + `
FROM call_logs
WHERE call_id = $1
FOR UPDATE
`
	return scanCall(t.tx.QueryRowContext(ctx, q, callID))
}

func (t pgTx) FindCorrelationCandidate(ctx context.Context, cq CandidateQuery) (CallLog, error) {
	if cq.CallerNumber == "" {
		return CallLog{}, ErrNotFound
	}
	q := `
SELECT ` + callColumns + `
FROM call_logs
WHERE caller_number = $1
  AND created_at >= $2
  AND (NOT $3 OR placeholder_kind <> '')
  AND ($4 = '' OR placeholder_kind <> $4)
ORDER BY created_at DESC, id DESC
LIMIT 1
`
	return scanCall(t.tx.QueryRowContext(ctx, q, cq.CallerNumber, cq.Since, cq.PlaceholdersOnly, string(cq.ExcludeKind)))
}

func (t pgTx) InsertCall(ctx context.Context, c *CallLog) error {
	const q = `
INSERT INTO call_logs (
  call_id, caller_number, transcript, duration_seconds, sentiment,
  transferred, email_sent, placeholder_kind, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
RETURNING id
`
	return t.tx.QueryRowContext(ctx, q,
		c.CallID,
		nullString(c.CallerNumber),
		c.Transcript,
		nullInt(c.DurationSeconds),
		c.Sentiment,
		c.Transferred,
		c.EmailSent,
		c.PlaceholderKind,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID)
}

func (t pgTx) UpdateCall(ctx context.Context, c CallLog) error {
	const q = `
UPDATE call_logs
SET caller_number = $2,
    transcript = $3,
    duration_seconds = $4,
    sentiment = $5,
    transferred = $6,
    email_sent = $7,
    placeholder_kind = $8,
    created_at = $9,
    updated_at = $10
WHERE call_id = $1
`
	res, err := t.tx.ExecContext(ctx, q,
		c.CallID,
		nullString(c.CallerNumber),
		c.Transcript,
		nullInt(c.DurationSeconds),
		c.Sentiment,
		c.Transferred,
		c.EmailSent,
		c.PlaceholderKind,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t pgTx) DeleteCall(ctx context.Context, callID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM call_logs WHERE call_id = $1`, callID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t pgTx) InsertEmailEvent(ctx context.Context, e EmailEvent) error {
	const q = `
INSERT INTO email_events (
  id, call_id, template_type, recipient, subject, body,
  delivery_status, delivery_error, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.TemplateType,
		e.Recipient,
		e.Subject,
		e.Body,
		e.DeliveryStatus,
		e.DeliveryError,
		e.CreatedAt,
	)
	return err
}

func (t pgTx) GetEmailEvent(ctx context.Context, id string) (EmailEvent, error) {
	const q = `
SELECT id, call_id, template_type, recipient, subject, body,
       delivery_status, delivery_error, created_at, completed_at
FROM email_events
WHERE id = $1
`
	var (
		e         EmailEvent
		completed sql.NullTime
	)
	if err := t.tx.QueryRowContext(ctx, q, id).Scan(
		&e.ID,
		&e.CallID,
		&e.TemplateType,
		&e.Recipient,
		&e.Subject,
		&e.Body,
		&e.DeliveryStatus,
		&e.DeliveryError,
		&e.CreatedAt,
		&completed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EmailEvent{}, ErrNotFound
		}
		return EmailEvent{}, err
	}
	if completed.Valid {
		at := completed.Time
		e.CompletedAt = &at
	}
	return e, nil
}

// SetEmailDelivery only moves an event out of pending; a terminal status is kept.
func (t pgTx) SetEmailDelivery(ctx context.Context, id string, status DeliveryStatus, deliveryErr string, at time.Time) error {
	const q = `
UPDATE email_events
SET delivery_status = $2, delivery_error = $3, completed_at = $4
WHERE id = $1 AND delivery_status = 'pending'
`
	_, err := t.tx.ExecContext(ctx, q, id, status, deliveryErr, at)
	return err
}

func (t pgTx) InsertTransferEvent(ctx context.Context, e TransferEvent) error {
	const q = `
INSERT INTO transfer_events (id, call_id, target_number, reason, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		nullString(e.TargetNumber),
		nullString(e.Reason),
		nullString(e.Notes),
		e.CreatedAt,
	)
	return err
}

func (t pgTx) ReassignEvents(ctx context.Context, fromCallID, toCallID string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE email_events SET call_id = $2 WHERE call_id = $1`, fromCallID, toCallID); err != nil {
		return fmt.Errorf("reassign email events: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE transfer_events SET call_id = $2 WHERE call_id = $1`, fromCallID, toCallID); err != nil {
		return fmt.Errorf("reassign transfer events: %w", err)
	}
	return nil
}

func (t pgTx) EventSummary(ctx context.Context, callID string) (EventSummary, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM email_events WHERE call_id = $1 AND delivery_status NOT IN ('pending', 'failed')),
  (SELECT COUNT(*) FROM email_events WHERE call_id = $1),
  (SELECT COUNT(*) FROM transfer_events WHERE call_id = $1)
`
	var out EventSummary
	if err := t.tx.QueryRowContext(ctx, q, callID).Scan(&out.EmailsDelivered, &out.EmailsTotal, &out.Transfers); err != nil {
		return EventSummary{}, err
	}
	return out, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
