package calls

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	transcriptMissingPrefix = "Transcript not provided by Retell. "
	transcriptNoRecording   = "No recording URL supplied."
)

// ResolveTranscript picks the first non-empty of: the direct transcript, the
// stitched turn entries, or a generated note referencing the recording.
func ResolveTranscript(direct string, entries []TurnEntry, recordingURL string) string {
	if t := strings.TrimSpace(direct); t != "" {
		return t
	}
	if t := stitchEntries(entries); t != "" {
		return t
	}
	if u := strings.TrimSpace(recordingURL); u != "" {
		return transcriptMissingPrefix + "Reference recording: " + u
	}
	return transcriptMissingPrefix + transcriptNoRecording
}

func stitchEntries(entries []TurnEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		role := strings.TrimSpace(e.Role)
		content := strings.TrimSpace(e.Content)
		if role == "" || content == "" {
			continue
		}
		lines = append(lines, capitalize(role)+": "+content)
	}
	return strings.Join(lines, "\n")
}

// capitalize upper-cases the first rune and lower-cases the rest ("agent" -> "Agent").
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// CallTiming derives the duration and end time from millisecond timestamps.
// Duration is nil unless both timestamps are present; end is nil when the end
// timestamp is absent.
func CallTiming(startMs, endMs *int64) (duration *int, end *time.Time) {
	if startMs != nil && endMs != nil {
		d := int((*endMs - *startMs) / 1000)
		if d < 0 {
			d = 0
		}
		duration = &d
	}
	if endMs != nil {
		t := time.UnixMilli(*endMs).UTC()
		end = &t
	}
	return duration, end
}

// IsGeneratedTranscript reports whether s is the note ResolveTranscript
// writes when a payload carried no transcript.
func IsGeneratedTranscript(s string) bool {
	return strings.HasPrefix(s, transcriptMissingPrefix)
}
