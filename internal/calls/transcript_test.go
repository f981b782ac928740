package calls

import (
	"testing"
	"time"
)

func TestResolveTranscript_PrefersDirect(t *testing.T) {
	got := ResolveTranscript("  Hello there ", []TurnEntry{{Role: "agent", Content: "ignored"}}, "https://rec")
	if got != "Hello there" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestResolveTranscript_StitchesEntries(t *testing.T) {
	got := ResolveTranscript("", []TurnEntry{
		{Role: "agent", Content: "Town of Braselton utilities."},
		{Role: "", Content: "dropped"},
		{Role: "user", Content: "  "},
		{Role: "USER", Content: "I need a payment link."},
	}, "")
	want := "Agent: Town of Braselton utilities.\nUser: I need a payment link."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolveTranscript_FallsBackToRecording(t *testing.T) {
	got := ResolveTranscript("", nil, "https://rec/1")
	if got != "Transcript not provided by Retell. Reference recording: https://rec/1" {
		t.Fatalf("unexpected transcript %q", got)
	}
	got = ResolveTranscript("", nil, "")
	if got != "Transcript not provided by Retell. No recording URL supplied." {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestCallTiming(t *testing.T) {
	start, end := int64(1000), int64(16999)
	d, e := CallTiming(&start, &end)
	if d == nil || *d != 15 {
		t.Fatalf("expected 15s, got %v", d)
	}
	if e == nil || !e.Equal(time.UnixMilli(16999)) {
		t.Fatalf("unexpected end %v", e)
	}

	backwards := int64(0)
	d, _ = CallTiming(&start, &backwards)
	if d == nil || *d != 0 {
		t.Fatalf("negative durations clamp to 0, got %v", d)
	}

	d, e = CallTiming(nil, &end)
	if d != nil || e == nil {
		t.Fatalf("expected end only, got d=%v e=%v", d, e)
	}
	d, e = CallTiming(&start, nil)
	if d != nil || e != nil {
		t.Fatalf("expected nothing without end, got d=%v e=%v", d, e)
	}
}
