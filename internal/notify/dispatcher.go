package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

// ErrTransport wraps every confirmed delivery failure.
var ErrTransport = errors.New("notify: transport failure")

// Message is one plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string

	// DedupeKey identifies logically identical sends. Empty disables dedupe.
	DedupeKey string
}

// Outcome describes how a successful Send was satisfied.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeStubbed   Outcome = "stubbed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

// Transport delivers a message to a provider.
type Transport interface {
	Name() string
	// Configured reports whether the credentials needed to send are present.
	Configured() bool
	Deliver(ctx context.Context, from string, msg Message) error
}

type Options struct {
	From     string
	StubMode bool
	Timeout  time.Duration
	// Guard is optional; nil disables dedupe and the concurrency cap.
	Guard *Guard
}

// Dispatcher sends email through one transport.
//
// It never fails on missing configuration: stub mode logs and returns
// OutcomeStubbed, incomplete credentials log a warning and return
// OutcomeSkipped. Only a transport error is returned as an error.
type Dispatcher struct {
	transport Transport
	opts      Options
}

func NewDispatcher(t Transport, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Dispatcher{transport: t, opts: opts}
}

func (d *Dispatcher) Send(ctx context.Context, msg Message) (Outcome, error) {
	log := logger.From(ctx).With("to", logger.MaskEmail(msg.To))

	if d.opts.StubMode {
		log.Info("email stub mode enabled; not sending", "subject", msg.Subject)
		return OutcomeStubbed, nil
	}
	if d.transport == nil || !d.transport.Configured() || d.opts.From == "" {
		log.Warn("email credentials incomplete; skipping send")
		return OutcomeSkipped, nil
	}

	guard := d.opts.Guard
	claimed := false
	if guard != nil && msg.DedupeKey != "" {
		ok, err := guard.Claim(ctx, msg.DedupeKey)
		switch {
		case err != nil:
			log.Warn("send guard unavailable; sending without dedupe", "err", err)
		case !ok:
			log.Info("duplicate email suppressed")
			return OutcomeDuplicate, nil
		default:
			claimed = true
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	err := d.deliver(sendCtx, guard, msg)
	if err != nil {
		if claimed {
			if ferr := guard.Forget(context.WithoutCancel(ctx), msg.DedupeKey); ferr != nil {
				log.Warn("send guard forget failed", "err", ferr)
			}
		}
		log.Error("email send failed", "transport", d.transport.Name(), "err", err)
		return "", fmt.Errorf("%w: %s: %v", ErrTransport, d.transport.Name(), err)
	}
	log.Info("email sent", "transport", d.transport.Name())
	return OutcomeSent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, guard *Guard, msg Message) error {
	if guard != nil {
		release, err := guard.Acquire(ctx)
		switch {
		case errors.Is(err, errCapExhausted):
			return err
		case err != nil:
			logger.From(ctx).Warn("send guard unavailable; sending without concurrency cap", "err", err)
		default:
			defer release()
		}
	}
	return d.transport.Deliver(ctx, d.opts.From, msg)
}
