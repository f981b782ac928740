package reporting

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

// PostgresRepo reads call_logs and its event tables. It never locks rows.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, call_id, caller_number, transcript, duration_seconds, sentiment,
       transferred, email_sent, placeholder_kind, created_at, updated_at`

func (r *PostgresRepo) Stats(ctx context.Context) (Stats, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM call_logs),
  (SELECT COUNT(*) FROM email_events WHERE delivery_status NOT IN ('pending', 'failed')),
  (SELECT COUNT(*) FROM transfer_events),
  (SELECT MAX(created_at) FROM call_logs)
`
	var (
		out  Stats
		last sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, q).Scan(&out.TotalCalls, &out.EmailsSent, &out.TransfersLogged, &last); err != nil {
		return Stats{}, err
	}
	if last.Valid {
		t := last.Time
		out.LastCallAt = &t
	}
	return out, nil
}

func (r *PostgresRepo) ListCalls(ctx context.Context, offset, limit int) ([]calls.CallLog, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `
SELECT ` + callColumns + `
FROM call_logs
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectCalls(rows)
	return out, total, err
}

func (r *PostgresRepo) SearchCalls(ctx context.Context, callID, phone string, day *Range, limit int) ([]calls.CallLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", placeholder(len(args))))
	}
	if callID != "" {
		add(`call_id ILIKE ? ESCAPE '\'`, "%"+escapeLike(callID)+"%")
	}
	if phone != "" {
		add(`caller_number ILIKE ? ESCAPE '\'`, "%"+escapeLike(phone)+"%")
	}
	if day != nil {
		add(`created_at >= ?`, day.From)
		add(`created_at < ?`, day.To)
	}

	q := `SELECT ` + callColumns + ` FROM call_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	q += ` ORDER BY created_at DESC, id DESC LIMIT ` + placeholder(len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectCalls(rows)
}

func (r *PostgresRepo) GetCall(ctx context.Context, callID string) (calls.CallLog, error) {
	q := `SELECT ` + callColumns + ` FROM call_logs WHERE call_id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.CallLog{}, calls.ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) ListEmailEvents(ctx context.Context, callID string) ([]calls.EmailEvent, error) {
	const q = `
SELECT id, call_id, template_type, recipient, subject, body,
       delivery_status, delivery_error, created_at, completed_at
FROM email_events
WHERE call_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.EmailEvent
	for rows.Next() {
		var (
			e         calls.EmailEvent
			completed sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.TemplateType, &e.Recipient, &e.Subject, &e.Body,
			&e.DeliveryStatus, &e.DeliveryError, &e.CreatedAt, &completed); err != nil {
			return nil, err
		}
		if completed.Valid {
			at := completed.Time
			e.CompletedAt = &at
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListTransferEvents(ctx context.Context, callID string) ([]calls.TransferEvent, error) {
	const q = `
SELECT id, call_id, target_number, reason, notes, created_at
FROM transfer_events
WHERE call_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.TransferEvent
	for rows.Next() {
		var (
			e                     calls.TransferEvent
			target, reason, notes sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CallID, &target, &reason, &notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetNumber, e.Reason, e.Notes = target.String, reason.String, notes.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) EachCall(ctx context.Context, fn func(calls.CallLog) error) error {
	q := `SELECT ` + callColumns + ` FROM call_logs ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (calls.CallLog, error) {
	var (
		c        calls.CallLog
		caller   sql.NullString
		duration sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.CallID, &caller, &c.Transcript, &duration, &c.Sentiment,
		&c.Transferred, &c.EmailSent, &c.PlaceholderKind, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return calls.CallLog{}, err
	}
	c.CallerNumber = caller.String
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationSeconds = &d
	}
	return c, nil
}

func collectCalls(rows *sql.Rows) ([]calls.CallLog, error) {
	defer rows.Close()
	var out []calls.CallLog
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
