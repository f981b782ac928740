package calls

import (
	"strings"
	"time"
)

// CallLog is the durable record of one logical phone call.
//
// Invariant: CallID is unique. At most one row exists per call_id at any time.
//
// A row may be a placeholder, created by an email or transfer webhook that
// arrived before the transcript. PlaceholderKind records which webhook created
// it and is cleared once the real transcript is stored.
type CallLog struct {
	ID           int64  `json:"id" db:"id"`
	CallID       string `json:"call_id" db:"call_id"`
	CallerNumber string `json:"caller_number,omitempty" db:"caller_number"`
	Transcript   string `json:"transcript" db:"transcript"`

	// DurationSeconds is nil when no timing information was supplied.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	// Sentiment is empty until a transcript webhook fills it.
	Sentiment Sentiment `json:"sentiment,omitempty" db:"sentiment"`

	Transferred bool `json:"transferred" db:"transferred"`
	EmailSent   bool `json:"email_sent" db:"email_sent"`

	PlaceholderKind PlaceholderKind `json:"placeholder_kind,omitempty" db:"placeholder_kind"`

	// CreatedAt is the call end time when known, else the time the row was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsPlaceholder reports whether the row still awaits its real transcript.
func (c CallLog) IsPlaceholder() bool {
	return c.PlaceholderKind != PlaceholderNone
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment normalizes a platform-reported sentiment.
// It returns false for values outside the known set.
func ParseSentiment(v string) (Sentiment, bool) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(v))) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNeutral:
		return SentimentNeutral, true
	case SentimentNegative:
		return SentimentNegative, true
	default:
		return "", false
	}
}

type PlaceholderKind string

const (
	PlaceholderNone     PlaceholderKind = ""
	PlaceholderEmail    PlaceholderKind = "email"
	PlaceholderTransfer PlaceholderKind = "transfer"
)

const (
	EmailPlaceholderTranscript    = "Call log placeholder created automatically because the email webhook arrived before the transcript webhook."
	TransferPlaceholderTranscript = "Transfer webhook received before transcript; placeholder created."
)

// EmailEvent is one outbound email attempt attached to a call.
//
// Content fields (template type, recipient, subject, body) never change after
// insert. DeliveryStatus moves from pending to a terminal value exactly once.
type EmailEvent struct {
	ID           string `json:"id" db:"id"`
	CallID       string `json:"call_id" db:"call_id"`
	TemplateType string `json:"template_type" db:"template_type"`
	Recipient    string `json:"recipient" db:"recipient"`
	Subject      string `json:"subject" db:"subject"`
	Body         string `json:"body" db:"body"`

	DeliveryStatus DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	DeliveryError  string         `json:"delivery_error,omitempty" db:"delivery_error"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryStubbed   DeliveryStatus = "stubbed"
	DeliverySkipped   DeliveryStatus = "skipped"
	DeliveryDuplicate DeliveryStatus = "duplicate"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivered reports whether the status counts towards CallLog.EmailSent.
func (s DeliveryStatus) Delivered() bool {
	return s != DeliveryPending && s != DeliveryFailed && s != ""
}

// TransferEvent is one transfer attempt attached to a call. Immutable.
type TransferEvent struct {
	ID           string    `json:"id" db:"id"`
	CallID       string    `json:"call_id" db:"call_id"`
	TargetNumber string    `json:"target_number,omitempty" db:"target_number"`
	Reason       string    `json:"reason,omitempty" db:"reason"`
	Notes        string    `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EventSummary aggregates the events owned by one call.
type EventSummary struct {
	EmailsDelivered int
	EmailsTotal     int
	Transfers       int
}
