package calls

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/notify"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/templates"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

const (
	DefaultEmailType         = templates.TypePaymentLink
	DefaultCorrelationWindow = 30 * time.Minute

	provisionalPrefix = "provisional-"
	// correlateAttempts bounds re-reads when a candidate changes between
	// FindCorrelationCandidate and locking its call key.
	correlateAttempts = 3
)

// Renderer produces the subject and body for an email type.
type Renderer interface {
	Render(ctx context.Context, emailType string, data map[string]any) (templates.Rendered, error)
}

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, msg notify.Message) (notify.Outcome, error)
}

// TransferDirectory resolves a transfer target (a phone number or a phone
// book label) and names the staff address to notify, if any.
type TransferDirectory interface {
	ResolveTransfer(ctx context.Context, target string) (number string, notifyEmail string, err error)
}

type Options struct {
	CorrelationWindow time.Duration
	Templates         Renderer
	Mailer            Mailer
	// Directory is optional; without it transfer targets are stored verbatim.
	Directory TransferDirectory
}

// Service is the reconciliation engine. It is the only writer of call logs
// and their events.
type Service struct {
	store     Store
	templates Renderer
	mailer    Mailer
	directory TransferDirectory
	window    time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, opts Options) *Service {
	if opts.CorrelationWindow <= 0 {
		opts.CorrelationWindow = DefaultCorrelationWindow
	}
	return &Service{
		store:     store,
		templates: opts.Templates,
		mailer:    opts.Mailer,
		directory: opts.Directory,
		window:    opts.CorrelationWindow,
		clock:     time.Now,
	}
}

type TranscriptStatus string

const (
	TranscriptStored    TranscriptStatus = "ok"
	TranscriptUpdated   TranscriptStatus = "updated"
	TranscriptDuplicate TranscriptStatus = "already_exists"
)

type TranscriptResult struct {
	Status TranscriptStatus
	Call   CallLog
	// MergedFrom is the call_id of a placeholder folded into Call, if any.
	MergedFrom string
}

type EmailResult struct {
	Call      CallLog
	Event     EmailEvent
	EmailType string
	Outcome   notify.Outcome
}

type TransferResult struct {
	Call  CallLog
	Event TransferEvent
}

// HandleTranscriptEnded records a completed call.
//
// A redelivered payload for a call that already holds its real transcript
// returns TranscriptDuplicate without touching state. A placeholder with the
// same call_id is upgraded in place; a placeholder found through the caller
// number is merged into a new row keyed by this call_id.
func (s *Service) HandleTranscriptEnded(ctx context.Context, ev TranscriptEnded) (TranscriptResult, error) {
	ev.CallID = strings.TrimSpace(ev.CallID)
	ev.CallerNumber = strings.TrimSpace(ev.CallerNumber)
	if ev.CallID == "" {
		return TranscriptResult{}, fmt.Errorf("%w: call.call_id is required", ErrInvalidEvent)
	}

	transcript := ResolveTranscript(ev.Transcript, ev.Entries, ev.RecordingURL)
	duration, endedAt := CallTiming(ev.StartTimestampMs, ev.EndTimestampMs)
	sentiment, ok := ParseSentiment(ev.Sentiment)
	if !ok {
		sentiment = SentimentNeutral
	}
	log := logger.From(ctx).With("call_id", ev.CallID)

	var out TranscriptResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		out = TranscriptResult{}
		now := s.clock().UTC()

		if ev.CallerNumber != "" {
			if err := tx.LockCallerKey(ctx, ev.CallerNumber); err != nil {
				return err
			}
		}
		if err := tx.LockCallKey(ctx, ev.CallID); err != nil {
			return err
		}

		existing, err := tx.GetCall(ctx, ev.CallID)
		switch {
		case err == nil:
			// A generated "not provided" note gives way to a later delivery
			// that carries the transcript; anything else is a redelivery.
			if !existing.IsPlaceholder() && (!IsGeneratedTranscript(existing.Transcript) || IsGeneratedTranscript(transcript)) {
				out = TranscriptResult{Status: TranscriptDuplicate, Call: existing}
				return nil
			}
			applyTranscript(&existing, ev.CallerNumber, transcript, duration, endedAt, sentiment, now)
			if err := tx.UpdateCall(ctx, existing); err != nil {
				return err
			}
			out = TranscriptResult{Status: TranscriptUpdated, Call: existing}
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}

		created := CallLog{CallID: ev.CallID, CreatedAt: now}
		applyTranscript(&created, ev.CallerNumber, transcript, duration, endedAt, sentiment, now)

		var placeholder CallLog
		merging := false
		if ev.CallerNumber != "" {
			placeholder, merging, err = s.correlate(ctx, tx, CandidateQuery{
				CallerNumber:     ev.CallerNumber,
				Since:            now.Add(-s.window),
				PlaceholdersOnly: true,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.InsertCall(ctx, &created); err != nil {
			return err
		}
		if merging {
			if err := s.merge(ctx, tx, placeholder, &created); err != nil {
				return err
			}
		}
		out = TranscriptResult{Status: TranscriptStored, Call: created}
		if merging {
			out.MergedFrom = placeholder.CallID
		}
		return nil
	})
	if err != nil {
		return TranscriptResult{}, err
	}

	switch {
	case out.Status == TranscriptDuplicate:
		log.Info("transcript already recorded; ignoring redelivery")
	case out.MergedFrom != "":
		log.Info("transcript merged placeholder", "placeholder_call_id", out.MergedFrom,
			"email_sent", out.Call.EmailSent, "transferred", out.Call.Transferred)
	default:
		log.Info("transcript stored", "status", out.Status, "duration_seconds", derefInt(out.Call.DurationSeconds))
	}
	return out, nil
}

// applyTranscript fills the fields a transcript webhook is authoritative for.
// Existing sentiment is kept.
func applyTranscript(c *CallLog, caller, transcript string, duration *int, endedAt *time.Time, sentiment Sentiment, now time.Time) {
	c.Transcript = transcript
	c.PlaceholderKind = PlaceholderNone
	if caller != "" {
		c.CallerNumber = caller
	}
	if duration != nil {
		d := *duration
		c.DurationSeconds = &d
	}
	if endedAt != nil {
		c.CreatedAt = *endedAt
	}
	if c.Sentiment == "" {
		c.Sentiment = sentiment
	}
	c.UpdatedAt = now
}

// merge moves a placeholder's events onto canonical, recomputes its flags
// from the combined events, and deletes the placeholder row.
func (s *Service) merge(ctx context.Context, tx Tx, placeholder CallLog, canonical *CallLog) error {
	if err := tx.ReassignEvents(ctx, placeholder.CallID, canonical.CallID); err != nil {
		return err
	}
	if err := tx.DeleteCall(ctx, placeholder.CallID); err != nil {
		return fmt.Errorf("delete placeholder %s: %w", placeholder.CallID, err)
	}
	sum, err := tx.EventSummary(ctx, canonical.CallID)
	if err != nil {
		return err
	}
	canonical.EmailSent = sum.EmailsDelivered > 0
	canonical.Transferred = sum.Transfers > 0
	if canonical.CallerNumber == "" {
		canonical.CallerNumber = placeholder.CallerNumber
	}
	return tx.UpdateCall(ctx, *canonical)
}

// HandleEmailRequest renders and sends a templated email, recording it on the
// call in two steps: a pending event is committed before sending, and its
// delivery status is committed after. EmailSent reflects only delivered events.
func (s *Service) HandleEmailRequest(ctx context.Context, req EmailRequest) (EmailResult, error) {
	req.CallID = strings.TrimSpace(req.CallID)
	req.CallerNumber = strings.TrimSpace(req.CallerNumber)
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.EmailType = strings.TrimSpace(req.EmailType)
	if req.EmailType == "" {
		req.EmailType = DefaultEmailType
	}
	if req.Recipient == "" {
		return EmailResult{}, fmt.Errorf("%w: user_email is required", ErrInvalidEvent)
	}
	addr, err := mail.ParseAddress(req.Recipient)
	if err != nil {
		return EmailResult{}, fmt.Errorf("%w: user_email is not a valid address", ErrInvalidEvent)
	}
	req.Recipient = addr.Address
	if req.CallID == "" && req.CallerNumber == "" {
		return EmailResult{}, fmt.Errorf("%w: call_id or caller number is required", ErrInvalidEvent)
	}
	if s.templates == nil || s.mailer == nil {
		return EmailResult{}, errors.New("calls: email delivery not configured")
	}

	rendered, err := s.templates.Render(ctx, req.EmailType, map[string]any{
		"call_id":       req.CallID,
		"caller_number": req.CallerNumber,
		"recipient":     req.Recipient,
		"email_type":    req.EmailType,
	})
	if err != nil {
		return EmailResult{}, fmt.Errorf("render template: %w", err)
	}

	var out EmailResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.clock().UTC()
		call, err := s.attach(ctx, tx, req.CallID, req.CallerNumber, CandidateQuery{
			CallerNumber:     req.CallerNumber,
			Since:            now.Add(-s.window),
			PlaceholdersOnly: req.CallID != "",
			ExcludeKind:      PlaceholderEmail,
		}, PlaceholderEmail, EmailPlaceholderTranscript, now)
		if err != nil {
			return err
		}
		ev := EmailEvent{
			ID:             uuid.NewString(),
			CallID:         call.CallID,
			TemplateType:   rendered.TemplateType,
			Recipient:      req.Recipient,
			Subject:        rendered.Subject,
			Body:           rendered.Body,
			DeliveryStatus: DeliveryPending,
			CreatedAt:      now,
		}
		if err := tx.InsertEmailEvent(ctx, ev); err != nil {
			return err
		}
		out = EmailResult{Call: call, Event: ev, EmailType: req.EmailType}
		return nil
	})
	if err != nil {
		return EmailResult{}, err
	}

	log := logger.From(ctx).With("call_id", out.Call.CallID, "email_event_id", out.Event.ID)
	if out.Call.CallID != req.CallID {
		log.Info("email request attached to correlated call", "requested_call_id", req.CallID)
	}

	outcome, sendErr := s.mailer.Send(ctx, notify.Message{
		To:        req.Recipient,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
		DedupeKey: out.Call.CallID + "|" + req.EmailType + "|" + strings.ToLower(req.Recipient),
	})
	status, errText := deliveryStatus(outcome, sendErr)

	// The message is already out; record the result even if the caller went away.
	call, ev, err := s.completeEmail(context.WithoutCancel(ctx), out.Event.ID, status, errText)
	if err != nil {
		log.Error("email delivery status not recorded", "delivery_status", status, "err", err)
		return out, fmt.Errorf("record email delivery: %w", err)
	}
	out.Call, out.Event, out.Outcome = call, ev, outcome

	if sendErr != nil {
		return out, fmt.Errorf("send email: %w", sendErr)
	}
	log.Info("email request handled", "delivery_status", status, "to", logger.MaskEmail(req.Recipient))
	return out, nil
}

func deliveryStatus(outcome notify.Outcome, err error) (DeliveryStatus, string) {
	if err != nil {
		return DeliveryFailed, err.Error()
	}
	switch outcome {
	case notify.OutcomeStubbed:
		return DeliveryStubbed, ""
	case notify.OutcomeSkipped:
		return DeliverySkipped, ""
	case notify.OutcomeDuplicate:
		return DeliveryDuplicate, ""
	default:
		return DeliverySent, ""
	}
}

// completeEmail sets an event's terminal status and recomputes EmailSent on
// whichever call owns the event now. A merge may have moved the event since
// it was inserted, so ownership is re-checked under the call lock.
func (s *Service) completeEmail(ctx context.Context, eventID string, status DeliveryStatus, errText string) (CallLog, EmailEvent, error) {
	var (
		call CallLog
		ev   EmailEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		callID := ""
		for i := 0; i < correlateAttempts; i++ {
			cur, err := tx.GetEmailEvent(ctx, eventID)
			if err != nil {
				return err
			}
			if cur.CallID == callID {
				break
			}
			callID = cur.CallID
			if err := tx.LockCallKey(ctx, callID); err != nil {
				return err
			}
		}

		now := s.clock().UTC()
		if err := tx.SetEmailDelivery(ctx, eventID, status, errText, now); err != nil {
			return err
		}
		var err error
		if ev, err = tx.GetEmailEvent(ctx, eventID); err != nil {
			return err
		}
		if ev.CallID != callID {
			return fmt.Errorf("email event %s moved during completion: %w", eventID, ErrConflict)
		}
		if call, err = tx.GetCall(ctx, callID); err != nil {
			return err
		}
		sum, err := tx.EventSummary(ctx, callID)
		if err != nil {
			return err
		}
		call.EmailSent = sum.EmailsDelivered > 0
		call.UpdatedAt = now
		return tx.UpdateCall(ctx, call)
	})
	return call, ev, err
}

// HandleTransfer records a transfer attempt and marks the call transferred.
// Staff are notified after commit when the phone configuration names an address.
func (s *Service) HandleTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	req.CallID = strings.TrimSpace(req.CallID)
	req.CallerNumber = strings.TrimSpace(req.CallerNumber)
	req.TargetNumber = strings.TrimSpace(req.TargetNumber)
	if req.CallID == "" {
		return TransferResult{}, fmt.Errorf("%w: call_id is required", ErrInvalidEvent)
	}
	log := logger.From(ctx).With("call_id", req.CallID)

	target, notifyEmail := req.TargetNumber, ""
	if s.directory != nil {
		number, staff, err := s.directory.ResolveTransfer(ctx, req.TargetNumber)
		if err != nil {
			log.Warn("transfer target lookup failed; storing as given", "err", err)
		} else {
			target, notifyEmail = number, staff
		}
	}

	var out TransferResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.clock().UTC()
		call, err := s.attach(ctx, tx, req.CallID, req.CallerNumber, CandidateQuery{
			CallerNumber:     req.CallerNumber,
			Since:            now.Add(-s.window),
			PlaceholdersOnly: true,
			ExcludeKind:      PlaceholderTransfer,
		}, PlaceholderTransfer, TransferPlaceholderTranscript, now)
		if err != nil {
			return err
		}
		ev := TransferEvent{
			ID:           uuid.NewString(),
			CallID:       call.CallID,
			TargetNumber: target,
			Reason:       req.Reason,
			Notes:        req.Notes,
			CreatedAt:    now,
		}
		if err := tx.InsertTransferEvent(ctx, ev); err != nil {
			return err
		}
		call.Transferred = true
		call.UpdatedAt = now
		if err := tx.UpdateCall(ctx, call); err != nil {
			return err
		}
		out = TransferResult{Call: call, Event: ev}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	log.Info("transfer recorded", "target", target, "recorded_on", out.Call.CallID)

	if notifyEmail != "" && s.mailer != nil {
		s.notifyTransfer(ctx, notifyEmail, out)
	}
	return out, nil
}

func (s *Service) notifyTransfer(ctx context.Context, to string, res TransferResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "A caller asked to be transferred.\n\n")
	fmt.Fprintf(&b, "Call ID: %s\n", res.Call.CallID)
	fmt.Fprintf(&b, "Caller: %s\n", orUnknown(res.Call.CallerNumber))
	fmt.Fprintf(&b, "Target: %s\n", orUnknown(res.Event.TargetNumber))
	fmt.Fprintf(&b, "Reason: %s\n", orUnknown(res.Event.Reason))
	if res.Event.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", res.Event.Notes)
	}
	_, err := s.mailer.Send(ctx, notify.Message{
		To:        to,
		Subject:   "Transfer request for call " + res.Call.CallID,
		Body:      b.String(),
		DedupeKey: "transfer|" + res.Event.ID,
	})
	if err != nil {
		logger.From(ctx).Warn("transfer staff notification failed", "call_id", res.Call.CallID, "err", err)
	}
}

// attach finds the call an email or transfer event belongs to, creating a
// placeholder when none exists. Lookup order: call_id, then the most recent
// call for the caller number that matches q. Callers that name a call_id
// restrict q to placeholders, so a finished call from the same number is
// never borrowed.
func (s *Service) attach(ctx context.Context, tx Tx, callID, caller string, q CandidateQuery, kind PlaceholderKind, placeholderText string, now time.Time) (CallLog, error) {
	if caller != "" {
		if err := tx.LockCallerKey(ctx, caller); err != nil {
			return CallLog{}, err
		}
	}
	if callID != "" {
		if err := tx.LockCallKey(ctx, callID); err != nil {
			return CallLog{}, err
		}
		c, err := tx.GetCall(ctx, callID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return CallLog{}, err
		}
	}

	if caller != "" {
		c, ok, err := s.correlate(ctx, tx, q)
		if err != nil {
			return CallLog{}, err
		}
		if ok {
			return c, nil
		}
	}

	if callID == "" {
		callID = provisionalPrefix + uuid.NewString()
		if err := tx.LockCallKey(ctx, callID); err != nil {
			return CallLog{}, err
		}
	}
	c := CallLog{
		CallID:          callID,
		CallerNumber:    caller,
		Transcript:      placeholderText,
		PlaceholderKind: kind,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertCall(ctx, &c); err != nil {
		return CallLog{}, err
	}
	logger.From(ctx).Warn("created placeholder call log", "call_id", callID, "placeholder_kind", kind)
	return c, nil
}

// correlate returns the locked, still-eligible candidate for q.
func (s *Service) correlate(ctx context.Context, tx Tx, q CandidateQuery) (CallLog, bool, error) {
	for i := 0; i < correlateAttempts; i++ {
		cand, err := tx.FindCorrelationCandidate(ctx, q)
		if errors.Is(err, ErrNotFound) {
			return CallLog{}, false, nil
		}
		if err != nil {
			return CallLog{}, false, err
		}
		if err := tx.LockCallKey(ctx, cand.CallID); err != nil {
			return CallLog{}, false, err
		}
		cur, err := tx.GetCall(ctx, cand.CallID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return CallLog{}, false, err
		}
		if q.Matches(cur) {
			return cur, true, nil
		}
	}
	return CallLog{}, false, nil
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
