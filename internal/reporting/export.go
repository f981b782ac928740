package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

const ExportFilename = "braselton_call_logs.csv"

var exportHeader = []string{
	"id", "call_id", "caller_number", "transcript", "duration_seconds",
	"sentiment", "transferred", "email_sent", "created_at",
}

// ExportCSV streams every call to w, newest first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	if s.repo == nil {
		return errors.New("reporting: repository not configured")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	err := s.repo.EachCall(ctx, func(c calls.CallLog) error {
		return cw.Write(exportRow(c))
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(c calls.CallLog) []string {
	duration := ""
	if c.DurationSeconds != nil {
		duration = strconv.Itoa(*c.DurationSeconds)
	}
	return []string{
		strconv.FormatInt(c.ID, 10),
		c.CallID,
		c.CallerNumber,
		c.Transcript,
		duration,
		string(c.Sentiment),
		strconv.FormatBool(c.Transferred),
		strconv.FormatBool(c.EmailSent),
		c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
