package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeTransport struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []Message
}

func (f *fakeTransport) Name() string     { return "fake" }
func (f *fakeTransport) Configured() bool { return f.configured }

func (f *fakeTransport) Deliver(ctx context.Context, from string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newGuard(t *testing.T, opts GuardOptions) *Guard {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewGuard(rdb, opts)
}

var testMsg = Message{To: "resident@example.com", Subject: "s", Body: "b", DedupeKey: "c1|payment_link|resident@example.com"}

func TestDispatcher_StubModeDoesNotSend(t *testing.T) {
	tr := &fakeTransport{configured: true}
	d := NewDispatcher(tr, Options{From: "town@example.com", StubMode: true})
	out, err := d.Send(context.Background(), testMsg)
	if err != nil || out != OutcomeStubbed {
		t.Fatalf("expected stubbed, got %q err=%v", out, err)
	}
	if tr.count() != 0 {
		t.Fatalf("stub mode must not deliver")
	}
}

func TestDispatcher_SkipsWhenUnconfigured(t *testing.T) {
	tr := &fakeTransport{configured: false, err: errors.New("should not be called")}
	d := NewDispatcher(tr, Options{From: "town@example.com"})
	out, err := d.Send(context.Background(), testMsg)
	if err != nil || out != OutcomeSkipped {
		t.Fatalf("expected skipped, got %q err=%v", out, err)
	}
}

func TestDispatcher_WrapsTransportFailure(t *testing.T) {
	tr := &fakeTransport{configured: true, err: errors.New("421 try later")}
	d := NewDispatcher(tr, Options{From: "town@example.com"})
	_, err := d.Send(context.Background(), testMsg)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !strings.Contains(err.Error(), "421") {
		t.Fatalf("expected cause in message, got %v", err)
	}
}

func TestDispatcher_DedupeSuppressesIdenticalSend(t *testing.T) {
	tr := &fakeTransport{configured: true}
	d := NewDispatcher(tr, Options{From: "town@example.com", Guard: newGuard(t, GuardOptions{DedupeWindow: time.Minute})})

	if out, err := d.Send(context.Background(), testMsg); err != nil || out != OutcomeSent {
		t.Fatalf("first send: %q %v", out, err)
	}
	if out, err := d.Send(context.Background(), testMsg); err != nil || out != OutcomeDuplicate {
		t.Fatalf("second send: %q %v", out, err)
	}
	if tr.count() != 1 {
		t.Fatalf("expected one delivery, got %d", tr.count())
	}
}

func TestDispatcher_FailedSendReleasesDedupeClaim(t *testing.T) {
	tr := &fakeTransport{configured: true, err: errors.New("boom")}
	d := NewDispatcher(tr, Options{From: "town@example.com", Guard: newGuard(t, GuardOptions{DedupeWindow: time.Minute})})

	if _, err := d.Send(context.Background(), testMsg); err == nil {
		t.Fatalf("expected failure")
	}
	tr.mu.Lock()
	tr.err = nil
	tr.mu.Unlock()
	if out, err := d.Send(context.Background(), testMsg); err != nil || out != OutcomeSent {
		t.Fatalf("retry after failure should send, got %q %v", out, err)
	}
}

func TestDispatcher_SendsWithoutCapWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	tr := &fakeTransport{configured: true}
	d := NewDispatcher(tr, Options{From: "town@example.com", Guard: NewGuard(rdb, GuardOptions{MaxConcurrent: 1})})
	out, err := d.Send(context.Background(), testMsg)
	if err != nil || out != OutcomeSent {
		t.Fatalf("expected send despite unavailable guard, got %q %v", out, err)
	}
	if tr.count() != 1 {
		t.Fatalf("expected one delivery, got %d", tr.count())
	}
}

func TestGuard_AcquireTimesOutWhenFull(t *testing.T) {
	g := newGuard(t, GuardOptions{MaxConcurrent: 1})
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); err == nil {
		t.Fatalf("expected second acquire to fail while the only slot is held")
	}
}

func TestBuildMessage_Headers(t *testing.T) {
	raw := string(buildMessage("utilitybilling@braselton.net", Message{To: "a@b.com", Subject: "Hello", Body: "line1\nline2"}, time.Unix(1700000000, 0).UTC()))
	for _, want := range []string{"From: utilitybilling@braselton.net\r\n", "To: a@b.com\r\n", "Subject: Hello\r\n", "@braselton.net>\r\n", "\r\n\r\nline1\r\nline2"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected %q in message:\n%s", want, raw)
		}
	}
}

func TestSMTPTransport_Configured(t *testing.T) {
	if NewSMTPTransport(SMTPConfig{Host: "smtp.smtp2go.com", Port: 587}).Configured() {
		t.Fatalf("missing credentials must not count as configured")
	}
	if !NewSMTPTransport(SMTPConfig{Host: "smtp.smtp2go.com", Port: 587, Username: "u", Password: "p"}).Configured() {
		t.Fatalf("expected configured")
	}
}
