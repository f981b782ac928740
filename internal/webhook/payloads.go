package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

// EventCallEnded is the only transcript webhook event that is recorded.
const EventCallEnded = "call_ended"

var ErrMalformed = errors.New("webhook: malformed payload")

// The voice platform nests the same fields differently depending on whether
// the webhook came from a tool call (args) or a call lifecycle event (call).
// Each payload is normalized here into one canonical struct before it reaches
// the reconciler.

type emailFields struct {
	CallID       string `json:"call_id"`
	EmailType    string `json:"email_type"`
	UserEmail    string `json:"user_email"`
	CallerPhone  string `json:"caller_phone"`
	CallerNumber string `json:"caller_number"`
	FromNumber   string `json:"from_number"`
}

type callRef struct {
	CallID     string `json:"call_id"`
	FromNumber string `json:"from_number"`
}

type emailPayload struct {
	emailFields
	Args *emailFields `json:"args"`
	Call *callRef     `json:"call"`
}

// ParseEmail normalizes an email webhook body.
func ParseEmail(raw []byte) (calls.EmailRequest, error) {
	var p emailPayload
	if err := decode(raw, &p); err != nil {
		return calls.EmailRequest{}, err
	}
	f := p.emailFields
	if p.Args != nil {
		f = *p.Args
	}
	req := calls.EmailRequest{
		CallID:       f.CallID,
		EmailType:    f.EmailType,
		Recipient:    f.UserEmail,
		CallerNumber: firstNonEmpty(f.CallerPhone, f.CallerNumber, f.FromNumber),
	}
	if p.Call != nil {
		req.CallID = firstNonEmpty(req.CallID, p.Call.CallID)
		req.CallerNumber = firstNonEmpty(req.CallerNumber, p.Call.FromNumber)
	}
	return req, nil
}

type turn struct {
	Role string `json:"role"`
	// Content is raw because tool-call entries carry objects here.
	Content json.RawMessage `json:"content"`
}

type transcriptPayload struct {
	Event string `json:"event"`
	Call  struct {
		CallID                  string   `json:"call_id"`
		FromNumber              string   `json:"from_number"`
		Transcript              string   `json:"transcript"`
		TranscriptWithToolCalls []turn   `json:"transcript_with_tool_calls"`
		TranscriptObject        []turn   `json:"transcript_object"`
		RecordingURL            string   `json:"recording_url"`
		PublicLogURL            string   `json:"public_log_url"`
		StartTimestamp          *float64 `json:"start_timestamp"`
		EndTimestamp            *float64 `json:"end_timestamp"`
		CallAnalysis            struct {
			UserSentiment string `json:"user_sentiment"`
		} `json:"call_analysis"`
	} `json:"call"`
}

// ParseTranscript normalizes a call lifecycle webhook body. It returns the
// event name so callers can acknowledge events other than call_ended.
func ParseTranscript(raw []byte) (string, calls.TranscriptEnded, error) {
	var p transcriptPayload
	if err := decode(raw, &p); err != nil {
		return "", calls.TranscriptEnded{}, err
	}
	turns := p.Call.TranscriptWithToolCalls
	if len(turns) == 0 {
		turns = p.Call.TranscriptObject
	}
	ev := calls.TranscriptEnded{
		CallID:           p.Call.CallID,
		CallerNumber:     p.Call.FromNumber,
		Transcript:       p.Call.Transcript,
		Entries:          entries(turns),
		RecordingURL:     firstNonEmpty(p.Call.RecordingURL, p.Call.PublicLogURL),
		StartTimestampMs: millis(p.Call.StartTimestamp),
		EndTimestampMs:   millis(p.Call.EndTimestamp),
		Sentiment:        p.Call.CallAnalysis.UserSentiment,
	}
	return strings.TrimSpace(p.Event), ev, nil
}

type transferPayload struct {
	CallID       string   `json:"call_id"`
	TargetNumber string   `json:"target_number"`
	Reason       string   `json:"reason"`
	Notes        string   `json:"notes"`
	Details      string   `json:"details"`
	FromNumber   string   `json:"from_number"`
	CallerNumber string   `json:"caller_number"`
	Call         *callRef `json:"call"`
}

// ParseTransfer normalizes a transfer webhook body.
func ParseTransfer(raw []byte) (calls.TransferRequest, error) {
	var p transferPayload
	if err := decode(raw, &p); err != nil {
		return calls.TransferRequest{}, err
	}
	req := calls.TransferRequest{
		CallID:       p.CallID,
		CallerNumber: firstNonEmpty(p.FromNumber, p.CallerNumber),
		TargetNumber: p.TargetNumber,
		Reason:       strings.TrimSpace(p.Reason),
		Notes:        strings.TrimSpace(firstNonEmpty(p.Notes, p.Details)),
	}
	if p.Call != nil {
		req.CallID = firstNonEmpty(req.CallID, p.Call.CallID)
		req.CallerNumber = firstNonEmpty(req.CallerNumber, p.Call.FromNumber)
	}
	return req, nil
}

// decode treats an empty body as an empty object so that missing fields are
// reported by name rather than as a decode failure.
func decode(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func entries(turns []turn) []calls.TurnEntry {
	if len(turns) == 0 {
		return nil
	}
	out := make([]calls.TurnEntry, 0, len(turns))
	for _, t := range turns {
		var content string
		if len(t.Content) > 0 && json.Unmarshal(t.Content, &content) != nil {
			continue
		}
		out = append(out, calls.TurnEntry{Role: t.Role, Content: content})
	}
	return out
}

func millis(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	ms := int64(*v)
	return &ms
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
