package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("calls: not found")
	ErrInvalidEvent = errors.New("calls: invalid event")
	// ErrConflict is returned when a unit of work lost a race it cannot
	// resolve by itself. Store implementations retry it before surfacing.
	ErrConflict = errors.New("calls: conflict")
)

// Store runs reconciliation units of work atomically.
//
// fn may be invoked more than once when the backend aborts the transaction
// with a retryable conflict, so it must not perform external side effects.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations the reconciler needs inside one transaction.
//
// Locking discipline: callers take LockCallerKey before any LockCallKey, and
// lock the addressed call_id before a correlated candidate's call_id.
// GetCall locks the returned row until commit. FindCorrelationCandidate does
// not lock; callers lock the candidate's call key and re-read it with GetCall.
type Tx interface {
	LockCallKey(ctx context.Context, callID string) error
	LockCallerKey(ctx context.Context, callerNumber string) error

	GetCall(ctx context.Context, callID string) (CallLog, error)
	FindCorrelationCandidate(ctx context.Context, q CandidateQuery) (CallLog, error)
	InsertCall(ctx context.Context, c *CallLog) error
	UpdateCall(ctx context.Context, c CallLog) error
	DeleteCall(ctx context.Context, callID string) error

	InsertEmailEvent(ctx context.Context, e EmailEvent) error
	GetEmailEvent(ctx context.Context, id string) (EmailEvent, error)
	SetEmailDelivery(ctx context.Context, id string, status DeliveryStatus, deliveryErr string, at time.Time) error
	InsertTransferEvent(ctx context.Context, e TransferEvent) error

	// ReassignEvents moves every email and transfer event from one call to another.
	ReassignEvents(ctx context.Context, fromCallID, toCallID string) error
	EventSummary(ctx context.Context, callID string) (EventSummary, error)
}

// CandidateQuery selects the most recent call for a caller number that may
// belong to the same logical call as an out-of-order webhook.
type CandidateQuery struct {
	CallerNumber string
	Since        time.Time

	// PlaceholdersOnly restricts candidates to rows awaiting a transcript.
	PlaceholdersOnly bool
	// ExcludeKind skips placeholders created by the same webhook kind.
	ExcludeKind PlaceholderKind
}

// Matches applies the query predicate to one row.
func (q CandidateQuery) Matches(c CallLog) bool {
	if q.CallerNumber == "" || c.CallerNumber != q.CallerNumber {
		return false
	}
	if c.CreatedAt.Before(q.Since) {
		return false
	}
	if q.PlaceholdersOnly && !c.IsPlaceholder() {
		return false
	}
	if q.ExcludeKind != PlaceholderNone && c.PlaceholderKind == q.ExcludeKind {
		return false
	}
	return true
}

// EmailRequest is the canonical form of an email webhook.
type EmailRequest struct {
	CallID       string
	CallerNumber string
	EmailType    string
	Recipient    string
}

// TurnEntry is one utterance of a turn-by-turn transcript.
type TurnEntry struct {
	Role    string
	Content string
}

// TranscriptEnded is the canonical form of a call_ended webhook.
type TranscriptEnded struct {
	CallID       string
	CallerNumber string
	Transcript   string
	Entries      []TurnEntry
	RecordingURL string

	// Timestamps are milliseconds since the Unix epoch.
	StartTimestampMs *int64
	EndTimestampMs   *int64

	Sentiment string
}

// TransferRequest is the canonical form of a transfer webhook.
type TransferRequest struct {
	CallID       string
	CallerNumber string
	TargetNumber string
	Reason       string
	Notes        string
}
